package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// OfflinePaymentRequest records a settlement that happened outside any
// gateway (bank transfer, check). The amount must match the invoice
// total exactly.
type OfflinePaymentRequest struct {
	InvoiceID   string        `json:"invoice_id"`
	Method      PaymentMethod `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	Reference   string        `json:"reference"`
}

// Service owns payment attempts and drives invoice settlement.
type Service interface {
	// InitiateOnlinePayment opens a gateway checkout for a payable
	// invoice. Repeat calls from the same buyer inside the idempotency
	// window return the already-open attempt instead of a new one.
	InitiateOnlinePayment(ctx context.Context, invoiceID, buyerOrgID string) (*Payment, error)
	// ProcessGatewayReturn reconciles the attempt identified by the
	// provider's payment id against the gateway's current state. Safe
	// to race with HandleWebhook for the same attempt.
	ProcessGatewayReturn(ctx context.Context, providerPaymentID string) (*Payment, error)
	// HandleWebhook verifies, parses and applies one gateway event.
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*Payment, error)
	RecordOfflinePayment(ctx context.Context, req OfflinePaymentRequest) (*Payment, error)
	// RetryPayment opens a fresh checkout after a FAILED or EXPIRED
	// attempt. Only the buyer who owns the attempt may retry it.
	RetryPayment(ctx context.Context, paymentID, buyerOrgID string) (*Payment, error)
	// ExpireStale moves PROCESSING attempts older than the session TTL
	// to EXPIRED and returns how many rows changed.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	GetByID(ctx context.Context, id string) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
}

var (
	ErrNotFound                   = errors.New("payment_not_found")
	ErrInvalidID                  = errors.New("invalid_payment_id")
	ErrInvoiceNotPayable          = errors.New("invoice_not_payable")
	ErrAmountMismatch             = errors.New("payment_amount_mismatch")
	ErrDuplicateSuccessfulPayment = errors.New("duplicate_successful_payment")
	ErrNotRetryable               = errors.New("payment_not_retryable")
	ErrOwnershipMismatch          = errors.New("payment_ownership_mismatch")
	ErrInvalidReference           = errors.New("invalid_payment_reference")
	ErrInvalidMethod              = errors.New("invalid_payment_method")
	ErrUnknownProviderPayment     = errors.New("unknown_provider_payment")
)
