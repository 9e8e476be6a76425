package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest places a new pledge on an open campaign.
type CreateRequest struct {
	CampaignID string `json:"campaign_id"`
	BuyerOrgID string `json:"buyer_org_id"`
	Quantity   int64  `json:"quantity"`
}

// Service is the pledge ledger consumed by campaign locking and invoicing.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Pledge, error)
	UpdateQuantity(ctx context.Context, pledgeID string, buyerOrgID string, quantity int64) (*Pledge, error)
	Withdraw(ctx context.Context, pledgeID string, buyerOrgID string) (*Pledge, error)
	FindCommittedPledges(ctx context.Context, campaignID snowflake.ID) ([]Pledge, error)
	CommittedQuantity(ctx context.Context, campaignID snowflake.ID) (int64, error)
}

var (
	ErrNotFound          = errors.New("pledge_not_found")
	ErrInvalidID         = errors.New("invalid_pledge_id")
	ErrInvalidBuyer      = errors.New("invalid_buyer")
	ErrInvalidQuantity   = errors.New("invalid_pledge_quantity")
	ErrDuplicatePledge   = errors.New("duplicate_pledge")
	ErrNotPending        = errors.New("pledge_not_pending")
	ErrOwnershipMismatch = errors.New("pledge_ownership_mismatch")
	ErrCampaignNotOpen   = errors.New("campaign_not_open")
)
