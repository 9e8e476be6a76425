// Package gateway defines the payment gateway contract and adapter registry.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
	ErrInvalidEvent     = errors.New("invalid_webhook_event")
	ErrEventIgnored     = errors.New("webhook_event_ignored")
	ErrUnavailable      = errors.New("gateway_unavailable")
	ErrSessionNotFound  = errors.New("gateway_session_not_found")
)

// PaymentState is the gateway-side view of a payment attempt.
type PaymentState string

const (
	StatePending   PaymentState = "PENDING"
	StateSucceeded PaymentState = "SUCCEEDED"
	StateFailed    PaymentState = "FAILED"
	StateCancelled PaymentState = "CANCELLED"
	StateExpired   PaymentState = "EXPIRED"
)

// Event types reported by webhooks.
const (
	EventTypeSucceeded = "payment_succeeded"
	EventTypeFailed    = "payment_failed"
	EventTypeRefunded  = "payment_refunded"
)

// CheckoutRequest asks the provider for a hosted payment session.
type CheckoutRequest struct {
	PaymentID   snowflake.ID
	InvoiceID   snowflake.ID
	BuyerOrgID  snowflake.ID
	AmountCents int64
	Currency    string
	ReturnURL   string
	Description string
}

// CheckoutSession is the provider's handle for one payment attempt.
type CheckoutSession struct {
	ProviderPaymentID string
	CheckoutURL       string
}

// Event is the canonical webhook event parsed by adapters.
type Event struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              string
	AmountCents       int64
	Currency          string
	OccurredAt        time.Time
	PaymentID         *snowflake.ID
	InvoiceID         *snowflake.ID
	FailureReason     string
	RawPayload        []byte
}

// Gateway is one configured payment provider.
type Gateway interface {
	Provider() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (PaymentState, error)
	VerifyWebhookSignature(payload []byte, headers http.Header) error
	ParseWebhook(payload []byte) (*Event, error)
}

// Config carries provider credentials from the environment.
type Config struct {
	APIKey        string
	WebhookSecret string
	ReturnURL     string
	Timeout       time.Duration
}

// Factory builds a Gateway for one provider.
type Factory interface {
	Provider() string
	NewGateway(cfg Config) (Gateway, error)
}

// Registry resolves provider names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry(factories ...Factory) *Registry {
	registry := &Registry{factories: map[string]Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.factories[provider]
	return ok
}

func (r *Registry) NewGateway(provider string, cfg Config) (Gateway, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	factory, ok := r.factories[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return factory.NewGateway(cfg)
}
