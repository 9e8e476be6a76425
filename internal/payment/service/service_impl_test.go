package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/groupcart/groupcart/internal/config"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	"github.com/groupcart/groupcart/internal/payment/gateway"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gatewayStub is a scriptable gateway: checkouts hand out sequential
// session ids and webhooks parse from a preloaded event.
type gatewayStub struct {
	mu        sync.Mutex
	createErr error
	sessions  int
	states    map[string]gateway.PaymentState
	event     *gateway.Event
	verifyErr error
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{states: map[string]gateway.PaymentState{}}
}

func (g *gatewayStub) Provider() string { return "stub" }

func (g *gatewayStub) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.sessions++
	id := fmt.Sprintf("stub_pi_%d", g.sessions)
	g.states[id] = gateway.StatePending
	return &gateway.CheckoutSession{
		ProviderPaymentID: id,
		CheckoutURL:       "https://pay.example.com/" + id,
	}, nil
}

func (g *gatewayStub) GetPaymentStatus(ctx context.Context, providerPaymentID string) (gateway.PaymentState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.states[providerPaymentID]
	if !ok {
		return "", gateway.ErrSessionNotFound
	}
	return state, nil
}

func (g *gatewayStub) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	return g.verifyErr
}

func (g *gatewayStub) ParseWebhook(payload []byte) (*gateway.Event, error) {
	if g.event == nil {
		return nil, gateway.ErrEventIgnored
	}
	return g.event, nil
}

func (g *gatewayStub) setState(id string, state gateway.PaymentState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[id] = state
}

type orderStub struct {
	mu    sync.Mutex
	calls int
}

func (o *orderStub) CreateFromPayment(ctx context.Context, paymentID string) (*orderdomain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return &orderdomain.Order{}, nil
}

func (o *orderStub) GetByID(ctx context.Context, id string) (*orderdomain.Order, error) {
	return nil, orderdomain.ErrNotFound
}

func (o *orderStub) ListByCampaign(ctx context.Context, campaignID string) ([]orderdomain.Order, error) {
	return nil, nil
}

func (o *orderStub) MaterializeMissing(ctx context.Context) (int, error) {
	return 0, nil
}

func (o *orderStub) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type paymentFixture struct {
	svc     paymentdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	gateway *gatewayStub
	orders  *orderStub
	invoice invoicedomain.Invoice
}

func setupPaymentService(t *testing.T, cfg config.Config) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&paymentdomain.WebhookEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	if cfg.PaymentIdempotencyBucketSeconds == 0 {
		cfg.PaymentIdempotencyBucketSeconds = 3600
	}
	if cfg.PaymentSessionTTLSeconds == 0 {
		cfg.PaymentSessionTTLSeconds = 1800
	}

	gw := newGatewayStub()
	orders := &orderStub{}
	svc := NewService(Params{
		Config:   cfg,
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Gateway:  gw,
		OrderSvc: orders,
	})

	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:            node.Generate(),
		PledgeID:      node.Generate(),
		CampaignID:    node.Generate(),
		BuyerOrgID:    node.Generate(),
		InvoiceNumber: "INV-202608-0001",
		SubtotalCents: 240000,
		TaxCents:      48000,
		TotalCents:    288000,
		Status:        invoicedomain.InvoiceStatusSent,
		IssueDate:     now,
		DueDate:       now.AddDate(0, 0, 14),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	return &paymentFixture{
		svc:     svc,
		db:      db,
		node:    node,
		gateway: gw,
		orders:  orders,
		invoice: invoice,
	}
}

func (f *paymentFixture) invoiceStatus(t *testing.T) invoicedomain.InvoiceStatus {
	t.Helper()
	var status invoicedomain.InvoiceStatus
	if err := f.db.Raw(`SELECT status FROM invoices WHERE id = ?`, f.invoice.ID).Scan(&status).Error; err != nil {
		t.Fatalf("invoice status: %v", err)
	}
	return status
}

func TestInitiateOnlinePayment(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if payment.Status != paymentdomain.PaymentStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", payment.Status)
	}
	if payment.AmountCents != 288000 {
		t.Fatalf("expected amount 288000, got %d", payment.AmountCents)
	}
	if payment.CheckoutURL == "" || payment.ProviderCheckoutID == "" {
		t.Fatalf("expected checkout session on payment, got %+v", payment)
	}
}

func TestInitiateIsIdempotentWithinBucket(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	first, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("first initiate: %v", err)
	}
	second, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("second initiate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same attempt, got %s and %s", first.ID, second.ID)
	}

	var count int64
	if err := f.db.Raw(`SELECT COUNT(1) FROM payments`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}
	if f.gateway.sessions != 1 {
		t.Fatalf("expected 1 checkout session, got %d", f.gateway.sessions)
	}
}

func TestInitiateRejectsWrongBuyer(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	_, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.node.Generate().String())
	if !errors.Is(err, paymentdomain.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}
}

func TestInitiateRejectsUnpayableInvoice(t *testing.T) {
	f := setupPaymentService(t, config.Config{})
	if err := f.db.Exec(
		`UPDATE invoices SET status = ? WHERE id = ?`,
		invoicedomain.InvoiceStatusPaid, f.invoice.ID,
	).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	_, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if !errors.Is(err, paymentdomain.ErrInvoiceNotPayable) {
		t.Fatalf("expected ErrInvoiceNotPayable, got %v", err)
	}
}

func TestGatewayOutageMarksAttemptFailed(t *testing.T) {
	f := setupPaymentService(t, config.Config{})
	f.gateway.createErr = gateway.ErrUnavailable

	_, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	var payment paymentdomain.Payment
	if err := f.db.Raw(`SELECT id, status, error_code FROM payments LIMIT 1`).Scan(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != paymentdomain.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", payment.Status)
	}
	if payment.ErrorCode != "gateway_unavailable" {
		t.Fatalf("expected gateway_unavailable, got %s", payment.ErrorCode)
	}
}

func TestWebhookSettlesPaymentAndInvoice(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_1",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeSucceeded,
		AmountCents:       payment.AmountCents,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}

	settled, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if settled.Status != paymentdomain.PaymentStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", settled.Status)
	}
	if settled.SettledAt == nil {
		t.Fatalf("expected settled_at to be set")
	}
	if got := f.invoiceStatus(t); got != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected invoice PAID, got %s", got)
	}
	if f.orders.Calls() != 1 {
		t.Fatalf("expected 1 order materialization, got %d", f.orders.Calls())
	}
}

func TestWebhookRedeliveryIsNoOp(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_dup",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeSucceeded,
		AmountCents:       payment.AmountCents,
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}

	if _, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	var eventCount int64
	if err := f.db.Raw(`SELECT COUNT(1) FROM payment_events`).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 recorded event, got %d", eventCount)
	}
	if f.orders.Calls() != 1 {
		t.Fatalf("expected 1 order materialization, got %d", f.orders.Calls())
	}
}

func TestWebhookAmountMismatchFailsAttempt(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_bad_amount",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeSucceeded,
		AmountCents:       payment.AmountCents - 1,
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}

	failed, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if failed == nil || failed.Status != paymentdomain.PaymentStatusFailed {
		t.Fatalf("expected FAILED attempt, got %+v", failed)
	}
	if failed.ErrorCode != "amount_mismatch" {
		t.Fatalf("expected amount_mismatch, got %s", failed.ErrorCode)
	}
	if got := f.invoiceStatus(t); got != invoicedomain.InvoiceStatusSent {
		t.Fatalf("expected invoice still SENT, got %s", got)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := setupPaymentService(t, config.Config{})
	f.gateway.verifyErr = gateway.ErrInvalidSignature

	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestProcessGatewayReturn(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	f.gateway.setState(payment.ProviderCheckoutID, gateway.StateSucceeded)
	settled, err := f.svc.ProcessGatewayReturn(context.Background(), payment.ProviderCheckoutID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if settled.Status != paymentdomain.PaymentStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", settled.Status)
	}
	if got := f.invoiceStatus(t); got != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected invoice PAID, got %s", got)
	}

	// The webhook landing afterwards finds a terminal attempt and leaves it.
	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_late",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeSucceeded,
		AmountCents:       payment.AmountCents,
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}
	late, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	if err != nil {
		t.Fatalf("late webhook: %v", err)
	}
	if late.Status != paymentdomain.PaymentStatusSucceeded {
		t.Fatalf("expected SUCCEEDED to stand, got %s", late.Status)
	}
	if f.orders.Calls() != 1 {
		t.Fatalf("expected 1 order materialization, got %d", f.orders.Calls())
	}
}

func TestWebhookRefundAfterSettlement(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_settle",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeSucceeded,
		AmountCents:       payment.AmountCents,
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}
	if _, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("settle webhook: %v", err)
	}

	f.gateway.event = &gateway.Event{
		Provider:          "stub",
		ProviderEventID:   "evt_refund",
		ProviderPaymentID: payment.ProviderCheckoutID,
		Type:              gateway.EventTypeRefunded,
		AmountCents:       payment.AmountCents,
		OccurredAt:        time.Now().UTC(),
		RawPayload:        []byte(`{}`),
	}
	refunded, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	if err != nil {
		t.Fatalf("refund webhook: %v", err)
	}
	if refunded.Status != paymentdomain.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", refunded.Status)
	}
	if refunded.SettledAt == nil {
		t.Fatalf("expected settled_at to survive the refund")
	}
	if f.orders.Calls() != 1 {
		t.Fatalf("expected 1 order materialization, got %d", f.orders.Calls())
	}
}

func TestProcessGatewayReturnUnknownSession(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	_, err := f.svc.ProcessGatewayReturn(context.Background(), "stub_pi_missing")
	if !errors.Is(err, paymentdomain.ErrUnknownProviderPayment) {
		t.Fatalf("expected ErrUnknownProviderPayment, got %v", err)
	}
}

func TestRecordOfflinePayment(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	req := paymentdomain.OfflinePaymentRequest{
		InvoiceID:   f.invoice.ID.String(),
		Method:      paymentdomain.PaymentMethodBankTransfer,
		AmountCents: 288000,
		Reference:   "WIRE-4711",
	}
	payment, err := f.svc.RecordOfflinePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("record offline: %v", err)
	}
	if payment.Status != paymentdomain.PaymentStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", payment.Status)
	}
	if got := f.invoiceStatus(t); got != invoicedomain.InvoiceStatusPendingConfirmation {
		t.Fatalf("expected PENDING_CONFIRMATION, got %s", got)
	}

	// Same reference replays the recorded payment.
	replay, err := f.svc.RecordOfflinePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("replay offline: %v", err)
	}
	if replay.ID != payment.ID {
		t.Fatalf("expected same payment, got %s and %s", payment.ID, replay.ID)
	}

	// A second settlement with a fresh reference is blocked.
	req.Reference = "WIRE-4712"
	if _, err := f.svc.RecordOfflinePayment(context.Background(), req); !errors.Is(err, paymentdomain.ErrDuplicateSuccessfulPayment) {
		t.Fatalf("expected ErrDuplicateSuccessfulPayment, got %v", err)
	}
}

func TestRecordOfflinePaymentMarksPaidWhenConfigured(t *testing.T) {
	f := setupPaymentService(t, config.Config{OfflinePaymentMarksPaid: true})

	req := paymentdomain.OfflinePaymentRequest{
		InvoiceID:   f.invoice.ID.String(),
		Method:      paymentdomain.PaymentMethodCheck,
		AmountCents: 288000,
		Reference:   "CHK-1",
	}
	payment, err := f.svc.RecordOfflinePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("record offline: %v", err)
	}
	if got := f.invoiceStatus(t); got != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID, got %s", got)
	}

	// The invoice is no longer payable, but replaying the same reference
	// still resolves to the recorded payment.
	replay, err := f.svc.RecordOfflinePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("replay offline: %v", err)
	}
	if replay.ID != payment.ID {
		t.Fatalf("expected same payment, got %s and %s", payment.ID, replay.ID)
	}
}

func TestRecordOfflinePaymentValidation(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	_, err := f.svc.RecordOfflinePayment(context.Background(), paymentdomain.OfflinePaymentRequest{
		InvoiceID:   f.invoice.ID.String(),
		Method:      paymentdomain.PaymentMethodCash,
		AmountCents: 288001,
		Reference:   "CASH-1",
	})
	if !errors.Is(err, paymentdomain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	_, err = f.svc.RecordOfflinePayment(context.Background(), paymentdomain.OfflinePaymentRequest{
		InvoiceID:   f.invoice.ID.String(),
		Method:      paymentdomain.PaymentMethodGateway,
		AmountCents: 288000,
		Reference:   "X",
	})
	if !errors.Is(err, paymentdomain.ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}

	_, err = f.svc.RecordOfflinePayment(context.Background(), paymentdomain.OfflinePaymentRequest{
		InvoiceID:   f.invoice.ID.String(),
		Method:      paymentdomain.PaymentMethodCash,
		AmountCents: 288000,
		Reference:   "   ",
	})
	if !errors.Is(err, paymentdomain.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestRetryPayment(t *testing.T) {
	f := setupPaymentService(t, config.Config{})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// PROCESSING attempts are not retryable.
	if _, err := f.svc.RetryPayment(context.Background(), payment.ID.String(), f.invoice.BuyerOrgID.String()); !errors.Is(err, paymentdomain.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}

	if err := f.db.Exec(
		`UPDATE payments SET status = ? WHERE id = ?`,
		paymentdomain.PaymentStatusFailed, payment.ID,
	).Error; err != nil {
		t.Fatalf("fail payment: %v", err)
	}

	if _, err := f.svc.RetryPayment(context.Background(), payment.ID.String(), f.node.Generate().String()); !errors.Is(err, paymentdomain.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}

	retried, err := f.svc.RetryPayment(context.Background(), payment.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID == payment.ID {
		t.Fatalf("expected a fresh attempt, got the dead one")
	}
	if retried.Status != paymentdomain.PaymentStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", retried.Status)
	}
}

func TestExpireStale(t *testing.T) {
	f := setupPaymentService(t, config.Config{PaymentSessionTTLSeconds: 1800})

	payment, err := f.svc.InitiateOnlinePayment(context.Background(), f.invoice.ID.String(), f.invoice.BuyerOrgID.String())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	count, err := f.svc.ExpireStale(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("expire fresh: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 expired, got %d", count)
	}

	count, err = f.svc.ExpireStale(context.Background(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired, got %d", count)
	}

	expired, err := f.svc.GetByID(context.Background(), payment.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if expired.Status != paymentdomain.PaymentStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", expired.Status)
	}
	if !expired.Retryable() {
		t.Fatalf("expected expired attempt to be retryable")
	}
}
