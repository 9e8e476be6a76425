// Package domain contains the order produced for each settled invoice.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus represents fulfillment states.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the fulfillment record materialized from a successful payment.
// The unique payment_id index makes materialization exactly-once no matter
// how many times the trigger fires.
type Order struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderNumber    string       `json:"order_number" gorm:"type:text;not null;uniqueIndex"`
	PaymentID      snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex"`
	InvoiceID      snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	CampaignID     snowflake.ID `json:"campaign_id" gorm:"not null;index"`
	BuyerOrgID     snowflake.ID `json:"buyer_org_id" gorm:"not null;index"`
	Quantity       int64        `json:"quantity" gorm:"not null"`
	UnitPriceCents int64        `json:"unit_price_cents" gorm:"not null"`
	TotalCents     int64        `json:"total_cents" gorm:"not null"`
	Status         OrderStatus  `json:"status" gorm:"type:text;not null;default:'CREATED'"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Service materializes and serves orders.
type Service interface {
	// CreateFromPayment materializes the order for one successful
	// payment. Calling it again for the same payment returns the
	// already-materialized order.
	CreateFromPayment(ctx context.Context, paymentID string) (*Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]Order, error)
	// MaterializeMissing backfills orders for successful payments whose
	// post-commit trigger was lost, and returns how many were created.
	MaterializeMissing(ctx context.Context) (int, error)
}

var (
	ErrNotFound            = errors.New("order_not_found")
	ErrInvalidID           = errors.New("invalid_order_id")
	ErrPaymentNotSucceeded = errors.New("payment_not_succeeded")
)
