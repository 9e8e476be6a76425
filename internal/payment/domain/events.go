package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent is the durable record of one gateway event. The unique
// (provider, provider_event_id) pair deduplicates redelivered webhooks.
type WebhookEvent struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider          string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID   string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderPaymentID string         `json:"provider_payment_id" gorm:"type:text;not null;default:''"`
	PaymentID         *snowflake.ID  `json:"payment_id,omitempty" gorm:"index"`
	EventType         string         `json:"event_type" gorm:"type:text;not null"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "payment_events" }
