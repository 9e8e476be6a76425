package domain

import (
	"context"
	"errors"

	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
)

// CreateRequest opens a new draft campaign for a supplier.
type CreateRequest struct {
	SupplierOrgID string `json:"supplier_org_id"`
	Title         string `json:"title"`
}

// LockResult reports the outcome of locking a campaign.
type LockResult struct {
	Campaign          Campaign                       `json:"campaign"`
	FinalBracket      bracketdomain.DiscountBracket  `json:"final_bracket"`
	CommittedQuantity int64                          `json:"committed_quantity"`
	CommittedPledges  int                            `json:"committed_pledges"`
}

// QuoteResult prices a quantity against the campaign's live aggregate.
type QuoteResult struct {
	CommittedQuantity int64                          `json:"committed_quantity"`
	Bracket           bracketdomain.DiscountBracket  `json:"bracket"`
	NextBracket       *bracketdomain.DiscountBracket `json:"next_bracket,omitempty"`
	UnitPriceCents    int64                          `json:"unit_price_cents"`
}

// Service manages the campaign lifecycle. Locking commits all pending
// pledges and freezes the final price bracket.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Campaign, error)
	GetByID(ctx context.Context, id string) (*Campaign, error)
	Open(ctx context.Context, id string) (*Campaign, error)
	Lock(ctx context.Context, id string) (*LockResult, error)
	Cancel(ctx context.Context, id string) (*Campaign, error)
	Quote(ctx context.Context, id string) (*QuoteResult, error)
}

var (
	ErrNotFound        = errors.New("campaign_not_found")
	ErrInvalidID       = errors.New("invalid_campaign_id")
	ErrInvalidSupplier = errors.New("invalid_supplier")
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrNotDraft        = errors.New("campaign_not_draft")
	ErrNotOpen         = errors.New("campaign_not_open")
	ErrAlreadyLocked   = errors.New("campaign_already_locked")
	ErrCancelled       = errors.New("campaign_cancelled")
	ErrNoBrackets      = errors.New("campaign_has_no_brackets")
)
