// Package stripe implements the payment gateway contract against the
// Stripe PaymentIntents API.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groupcart/groupcart/internal/payment/gateway"
)

const apiBaseURL = "https://api.stripe.com/v1"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewGateway(cfg gateway.Config) (gateway.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if apiKey == "" || secret == "" {
		return nil, gateway.ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gateway{
		apiKey:        apiKey,
		webhookSecret: secret,
		returnURL:     strings.TrimSpace(cfg.ReturnURL),
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type Gateway struct {
	apiKey        string
	webhookSecret string
	returnURL     string
	client        *http.Client
}

func (g *Gateway) Provider() string { return "stripe" }

// CreateCheckout opens a PaymentIntent carrying our payment and invoice
// identifiers in its metadata, so webhooks can be correlated back.
func (g *Gateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", strings.ToLower(strings.TrimSpace(req.Currency)))
	form.Set("description", req.Description)
	form.Set("metadata[payment_id]", req.PaymentID.String())
	form.Set("metadata[invoice_id]", req.InvoiceID.String())
	form.Set("metadata[buyer_org_id]", req.BuyerOrgID.String())

	var intent stripePaymentIntent
	if err := g.do(ctx, http.MethodPost, "/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, gateway.ErrUnavailable
	}

	returnURL := g.returnURL
	if req.ReturnURL != "" {
		returnURL = req.ReturnURL
	}
	checkoutURL := fmt.Sprintf("%s?provider=stripe&payment_intent=%s", returnURL, url.QueryEscape(intent.ID))

	return &gateway.CheckoutSession{
		ProviderPaymentID: intent.ID,
		CheckoutURL:       checkoutURL,
	}, nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, providerPaymentID string) (gateway.PaymentState, error) {
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return "", gateway.ErrSessionNotFound
	}

	var intent stripePaymentIntent
	err := g.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(providerPaymentID), nil, &intent)
	if err != nil {
		return "", err
	}
	return mapIntentStatus(intent.Status), nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return gateway.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return gateway.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return gateway.ErrInvalidSignature
}

func (g *Gateway) ParseWebhook(payload []byte) (*gateway.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, gateway.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, gateway.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return g.parseIntent(event, payload, gateway.EventTypeSucceeded)
	case "payment_intent.payment_failed":
		return g.parseIntent(event, payload, gateway.EventTypeFailed)
	case "charge.refunded":
		return g.parseIntent(event, payload, gateway.EventTypeRefunded)
	default:
		return nil, gateway.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *stripeError      `json:"last_payment_error"`
}

type stripeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) parseIntent(event stripeEvent, payload []byte, eventType string) (*gateway.Event, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, gateway.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, gateway.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	failureReason := ""
	if intent.LastPaymentError != nil {
		failureReason = strings.TrimSpace(intent.LastPaymentError.Code)
		if failureReason == "" {
			failureReason = strings.TrimSpace(intent.LastPaymentError.Message)
		}
	}

	return &gateway.Event{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		ProviderPaymentID: intent.ID,
		Type:              eventType,
		AmountCents:       amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
		PaymentID:         metadataID(intent.Metadata, "payment_id"),
		InvoiceID:         metadataID(intent.Metadata, "invoice_id"),
		FailureReason:     failureReason,
		RawPayload:        payload,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return gateway.ErrSessionNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: stripe responded %d", gateway.ErrUnavailable, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

func mapIntentStatus(status string) gateway.PaymentState {
	switch strings.TrimSpace(status) {
	case "succeeded":
		return gateway.StateSucceeded
	case "canceled":
		return gateway.StateCancelled
	case "requires_payment_method", "requires_confirmation", "requires_action", "processing", "requires_capture":
		return gateway.StatePending
	default:
		return gateway.StateFailed
	}
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func metadataID(metadata map[string]string, key string) *snowflake.ID {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}
