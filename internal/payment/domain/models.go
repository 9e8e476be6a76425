// Package domain contains payment models and the payment status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus represents payment attempt lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// PaymentMethod is how the money moved.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodGateway      PaymentMethod = "PAYMENT_GATEWAY"
)

// Offline reports whether the method settles outside any gateway.
func (m PaymentMethod) Offline() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheck:
		return true
	default:
		return false
	}
}

// Payment is one settlement attempt against an invoice. Gateway attempts
// carry a provider checkout session; offline ones carry a free-form
// reference. Retries are new rows, never resurrections.
type Payment struct {
	ID                    snowflake.ID  `json:"id" gorm:"primaryKey"`
	InvoiceID             snowflake.ID  `json:"invoice_id" gorm:"not null;index"`
	BuyerOrgID            snowflake.ID  `json:"buyer_org_id" gorm:"not null;index"`
	Method                PaymentMethod `json:"method" gorm:"type:text;not null"`
	Provider              string        `json:"provider" gorm:"type:text;not null;default:''"`
	ProviderCheckoutID    string        `json:"provider_checkout_id" gorm:"type:text;not null;default:'';index"`
	ProviderTransactionID string        `json:"provider_transaction_id" gorm:"type:text;not null;default:''"`
	AmountCents           int64         `json:"amount_cents" gorm:"not null"`
	Currency              string        `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Status                PaymentStatus `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	IdempotencyKey        string        `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	CheckoutURL           string        `json:"checkout_url,omitempty" gorm:"type:text;not null;default:''"`
	Reference             string        `json:"reference,omitempty" gorm:"type:text;not null;default:''"`
	ErrorCode             string        `json:"error_code,omitempty" gorm:"type:text;not null;default:''"`
	ErrorMessage          string        `json:"error_message,omitempty" gorm:"type:text;not null;default:''"`
	SettledAt             *time.Time    `json:"settled_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Terminal reports whether no transition leaves the payment's status.
func (p Payment) Terminal() bool { return p.Status.Terminal() }

// Retryable reports whether a new attempt may replace this one.
func (p Payment) Retryable() bool {
	return p.Status == PaymentStatusFailed || p.Status == PaymentStatusExpired
}
