// Package sandbox is a deterministic in-process gateway for development
// and tests. Every checkout settles immediately unless its invoice
// description asks for failure.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groupcart/groupcart/internal/payment/gateway"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewGateway(cfg gateway.Config) (gateway.Gateway, error) {
	return &Gateway{
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		returnURL:     strings.TrimSpace(cfg.ReturnURL),
		sessions:      map[string]gateway.PaymentState{},
	}, nil
}

type Gateway struct {
	webhookSecret string
	returnURL     string

	mu       sync.Mutex
	sessions map[string]gateway.PaymentState
}

func (g *Gateway) Provider() string { return "sandbox" }

func (g *Gateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	providerID := fmt.Sprintf("sandbox_pi_%s", req.PaymentID)

	state := gateway.StateSucceeded
	if strings.Contains(strings.ToLower(req.Description), "decline") {
		state = gateway.StateFailed
	}

	g.mu.Lock()
	g.sessions[providerID] = state
	g.mu.Unlock()

	return &gateway.CheckoutSession{
		ProviderPaymentID: providerID,
		CheckoutURL:       fmt.Sprintf("%s?provider=sandbox&payment_intent=%s", g.returnURL, url.QueryEscape(providerID)),
	}, nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, providerPaymentID string) (gateway.PaymentState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.sessions[strings.TrimSpace(providerPaymentID)]
	if !ok {
		return "", gateway.ErrSessionNotFound
	}
	return state, nil
}

// VerifyWebhookSignature checks an hex HMAC-SHA256 of the body in the
// Sandbox-Signature header. An empty configured secret disables the check.
func (g *Gateway) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	if g.webhookSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(headers.Get("Sandbox-Signature"))
	if signature == "" {
		return gateway.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return gateway.ErrInvalidSignature
	}
	return nil
}

type sandboxEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	ProviderPaymentID string `json:"payment_intent"`
	PaymentID         string `json:"payment_id"`
	InvoiceID         string `json:"invoice_id"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	FailureReason     string `json:"failure_reason"`
	OccurredAt        int64  `json:"occurred_at"`
}

func (g *Gateway) ParseWebhook(payload []byte) (*gateway.Event, error) {
	var event sandboxEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, gateway.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.ProviderPaymentID) == "" {
		return nil, gateway.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "payment.succeeded":
		eventType = gateway.EventTypeSucceeded
	case "payment.failed":
		eventType = gateway.EventTypeFailed
	case "payment.refunded":
		eventType = gateway.EventTypeRefunded
	default:
		return nil, gateway.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if event.OccurredAt > 0 {
		occurredAt = time.Unix(event.OccurredAt, 0).UTC()
	}

	return &gateway.Event{
		Provider:          "sandbox",
		ProviderEventID:   event.ID,
		ProviderPaymentID: event.ProviderPaymentID,
		Type:              eventType,
		AmountCents:       event.AmountCents,
		Currency:          strings.ToUpper(strings.TrimSpace(event.Currency)),
		OccurredAt:        occurredAt,
		PaymentID:         parseID(event.PaymentID),
		InvoiceID:         parseID(event.InvoiceID),
		FailureReason:     strings.TrimSpace(event.FailureReason),
		RawPayload:        payload,
	}, nil
}

func parseID(raw string) *snowflake.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}
