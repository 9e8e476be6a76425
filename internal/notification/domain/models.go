// Package domain contains notification models and the dispatcher contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Notification kinds emitted by the commitment-to-cash pipeline.
const (
	KindInvoiceIssued    = "invoice.issued"
	KindInvoiceOverdue   = "invoice.overdue"
	KindInvoiceCancelled = "invoice.cancelled"
	KindPaymentSucceeded = "payment.succeeded"
	KindPaymentFailed    = "payment.failed"
	KindCampaignLocked   = "campaign.locked"
)

// Notification is one message to a recipient organization.
type Notification struct {
	Kind           string
	RecipientOrgID snowflake.ID
	Payload        map[string]any
}

// Dispatcher delivers notifications. Dispatch is fire-and-forget: delivery
// failures must never surface into the transition that triggered them.
type Dispatcher interface {
	Send(ctx context.Context, notification Notification) error
}

// OutboxMessage is a queued notification awaiting delivery.
type OutboxMessage struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	RecipientOrgID snowflake.ID   `json:"recipient_org_id" gorm:"not null;index"`
	Kind           string         `json:"kind" gorm:"type:text;not null"`
	Payload        datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Published      bool           `json:"published" gorm:"not null;default:false"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxMessage) TableName() string { return "notification_outbox" }
