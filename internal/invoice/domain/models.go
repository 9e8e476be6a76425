// Package domain contains invoice models and the invoice status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft               InvoiceStatus = "DRAFT"
	InvoiceStatusSent                InvoiceStatus = "SENT"
	InvoiceStatusPendingConfirmation InvoiceStatus = "PENDING_CONFIRMATION"
	InvoiceStatusPaid                InvoiceStatus = "PAID"
	InvoiceStatusOverdue             InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled           InvoiceStatus = "CANCELLED"
)

// Invoice bills one committed pledge at the campaign's final bracket price.
// Exactly one invoice exists per pledge; invoices are never deleted.
type Invoice struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	PledgeID      snowflake.ID  `json:"pledge_id" gorm:"not null;uniqueIndex"`
	CampaignID    snowflake.ID  `json:"campaign_id" gorm:"not null;index"`
	BuyerOrgID    snowflake.ID  `json:"buyer_org_id" gorm:"not null;index"`
	InvoiceNumber string        `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	SubtotalCents int64         `json:"subtotal_cents" gorm:"not null"`
	TaxCents      int64         `json:"tax_cents" gorm:"not null"`
	TotalCents    int64         `json:"total_cents" gorm:"not null"`
	Status        InvoiceStatus `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	IssueDate     time.Time     `json:"issue_date" gorm:"not null"`
	DueDate       time.Time     `json:"due_date" gorm:"not null"`
	PaidDate      *time.Time    `json:"paid_date,omitempty" gorm:""`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Payable reports whether the invoice can accept a payment attempt.
func (i Invoice) Payable() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPendingConfirmation:
		return true
	default:
		return false
	}
}
