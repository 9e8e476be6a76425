// Package domain contains campaign lifecycle models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CampaignStatus represents campaign lifecycle states.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusOpen      CampaignStatus = "OPEN"
	CampaignStatusLocked    CampaignStatus = "LOCKED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

// Campaign is a supplier's bulk-purchase campaign. Brackets are mutable only
// while the campaign is DRAFT; locking freezes the final bracket.
type Campaign struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	SupplierOrgID  snowflake.ID      `json:"supplier_org_id" gorm:"not null;index"`
	Title          string            `json:"title" gorm:"type:text;not null"`
	Slug           string            `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Status         CampaignStatus    `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	FinalBracketID *snowflake.ID     `json:"final_bracket_id,omitempty" gorm:"index"`
	LockedAt       *time.Time        `json:"locked_at,omitempty" gorm:""`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Campaign) TableName() string { return "campaigns" }
