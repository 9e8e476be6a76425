package domain

import (
	"context"
	"errors"
	"time"

	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
)

// Service is the invoice generator and lifecycle owner.
type Service interface {
	// GenerateForCampaign creates one invoice per committed pledge of a
	// locked campaign at the final bracket's unit price. Safe to call
	// repeatedly: pledges that already carry an invoice are skipped.
	GenerateForCampaign(ctx context.Context, campaignID string, finalBracket bracketdomain.DiscountBracket) ([]Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]Invoice, error)
	Send(ctx context.Context, id string) (*Invoice, error)
	Cancel(ctx context.Context, id string) (*Invoice, error)
	// ConfirmPaid moves a PENDING_CONFIRMATION invoice to PAID once the
	// supplier acknowledges an offline settlement.
	ConfirmPaid(ctx context.Context, id string) (*Invoice, error)
	// MarkOverdue flips every SENT invoice whose due date passed before
	// now to OVERDUE and returns how many rows changed.
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrNotFound          = errors.New("invoice_not_found")
	ErrInvalidID         = errors.New("invalid_invoice_id")
	ErrCampaignNotLocked = errors.New("campaign_not_locked")
	ErrBracketMismatch   = errors.New("bracket_campaign_mismatch")
)
