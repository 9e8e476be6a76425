// Package domain contains pledge models for the commitment ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PledgeStatus represents pledge lifecycle states.
type PledgeStatus string

const (
	PledgeStatusPending   PledgeStatus = "PENDING"
	PledgeStatusCommitted PledgeStatus = "COMMITTED"
	PledgeStatusWithdrawn PledgeStatus = "WITHDRAWN"
)

// Pledge is one buyer organization's quantity commitment to a campaign.
// A buyer holds at most one non-withdrawn pledge per campaign.
type Pledge struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CampaignID snowflake.ID `json:"campaign_id" gorm:"not null;index"`
	BuyerOrgID snowflake.ID `json:"buyer_org_id" gorm:"not null;index"`
	Quantity   int64        `json:"quantity" gorm:"not null"`
	Status     PledgeStatus `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Pledge) TableName() string { return "pledges" }
