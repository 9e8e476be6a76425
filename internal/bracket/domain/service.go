package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest adds one tier to a draft campaign.
type CreateRequest struct {
	CampaignID     string `json:"campaign_id"`
	MinQuantity    int64  `json:"min_quantity"`
	MaxQuantity    *int64 `json:"max_quantity,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Service manages campaign discount brackets.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*DiscountBracket, error)
	ListByCampaign(ctx context.Context, campaignID snowflake.ID) ([]DiscountBracket, error)
}
