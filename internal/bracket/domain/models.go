// Package domain contains discount bracket models for campaign pricing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DiscountBracket is one price tier of a campaign. Brackets partition
// [0, inf) by quantity when sorted by BracketOrder; a nil MaxQuantity means
// the bracket is unbounded and must be the last tier.
type DiscountBracket struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	CampaignID     snowflake.ID `json:"campaign_id" gorm:"not null;index;uniqueIndex:ux_brackets_campaign_order,priority:1"`
	MinQuantity    int64        `json:"min_quantity" gorm:"not null"`
	MaxQuantity    *int64       `json:"max_quantity,omitempty" gorm:""`
	UnitPriceCents int64        `json:"unit_price_cents" gorm:"not null"`
	BracketOrder   int          `json:"bracket_order" gorm:"not null;uniqueIndex:ux_brackets_campaign_order,priority:2"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DiscountBracket) TableName() string { return "discount_brackets" }

// Contains reports whether quantity falls inside the bracket range.
// Both bounds are inclusive.
func (b DiscountBracket) Contains(quantity int64) bool {
	if quantity < b.MinQuantity {
		return false
	}
	return b.MaxQuantity == nil || quantity <= *b.MaxQuantity
}

// Unbounded reports whether the bracket has no upper quantity bound.
func (b DiscountBracket) Unbounded() bool { return b.MaxQuantity == nil }
