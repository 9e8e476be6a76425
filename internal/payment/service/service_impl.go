package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groupcart/groupcart/internal/audit/domain"
	"github.com/groupcart/groupcart/internal/config"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	"github.com/groupcart/groupcart/internal/notification"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	obsmetrics "github.com/groupcart/groupcart/internal/observability/metrics"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	"github.com/groupcart/groupcart/internal/payment/gateway"
	pkgdb "github.com/groupcart/groupcart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Gateway    gateway.Gateway
	AuditSvc   auditdomain.Service
	OrderSvc   orderdomain.Service
	Dispatcher notificationdomain.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	gateway    gateway.Gateway
	auditSvc   auditdomain.Service
	orderSvc   orderdomain.Service
	dispatcher notificationdomain.Dispatcher
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		gateway:    p.Gateway,
		auditSvc:   p.AuditSvc,
		orderSvc:   p.OrderSvc,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

// InitiateOnlinePayment opens a gateway checkout for a payable invoice.
// The idempotency key buckets requests per buyer per invoice into
// fixed windows, so double-clicks land on the same attempt.
func (s *Service) InitiateOnlinePayment(ctx context.Context, invoiceID, buyerOrgID string) (*paymentdomain.Payment, error) {
	invID, err := parseID(invoiceID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	buyerID, err := parseID(buyerOrgID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	bucket := time.Now().Unix() / s.bucketSeconds()
	key := fmt.Sprintf("inv:%s:buyer:%s:ts:%d", invID, buyerID, bucket)
	return s.openCheckout(ctx, invID, buyerID, key)
}

// RetryPayment opens a fresh attempt after a FAILED or EXPIRED one. The
// retry key is derived from the dead attempt so it never collides with
// the initiation window of the original.
func (s *Service) RetryPayment(ctx context.Context, paymentID, buyerOrgID string) (*paymentdomain.Payment, error) {
	payID, err := parseID(paymentID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	buyerID, err := parseID(buyerOrgID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	previous, err := s.loadByID(ctx, s.db, payID, false)
	if err != nil {
		return nil, err
	}
	if previous.BuyerOrgID != buyerID {
		return nil, paymentdomain.ErrOwnershipMismatch
	}
	if !previous.Retryable() {
		return nil, paymentdomain.ErrNotRetryable
	}

	bucket := time.Now().Unix() / s.bucketSeconds()
	key := fmt.Sprintf("retry:%s:ts:%d", payID, bucket)
	return s.openCheckout(ctx, previous.InvoiceID, buyerID, key)
}

// openCheckout inserts the attempt row first, then talks to the gateway.
// Losing the idempotency-key race means another request already owns the
// attempt; the loser returns the winner's row untouched.
func (s *Service) openCheckout(ctx context.Context, invID, buyerID snowflake.ID, key string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	var fresh bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, invID)
		if err != nil {
			return err
		}
		if invoice.BuyerOrgID != buyerID {
			return paymentdomain.ErrOwnershipMismatch
		}
		if !invoice.Payable() {
			return paymentdomain.ErrInvoiceNotPayable
		}

		now := time.Now().UTC()
		payment = paymentdomain.Payment{
			ID:             s.genID.Generate(),
			InvoiceID:      invID,
			BuyerOrgID:     buyerID,
			Method:         paymentdomain.PaymentMethodGateway,
			Provider:       s.gateway.Provider(),
			AmountCents:    invoice.TotalCents,
			Currency:       "USD",
			Status:         paymentdomain.PaymentStatusPending,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		result := tx.WithContext(ctx).Exec(
			`INSERT INTO payments
			   (id, invoice_id, buyer_org_id, method, provider, provider_checkout_id,
			    provider_transaction_id, amount_cents, currency, status, idempotency_key,
			    checkout_url, reference, error_code, error_message, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, '', '', ?, ?, ?, ?, '', '', '', '', ?, ?)
			 ON CONFLICT (idempotency_key) DO NOTHING`,
			payment.ID, payment.InvoiceID, payment.BuyerOrgID, payment.Method,
			payment.Provider, payment.AmountCents, payment.Currency, payment.Status,
			payment.IdempotencyKey, payment.CreatedAt, payment.UpdatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			existing, err := s.loadByKey(ctx, tx, key)
			if err != nil {
				return err
			}
			payment = *existing
			return nil
		}
		fresh = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return &payment, nil
	}

	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		PaymentID:   payment.ID,
		InvoiceID:   payment.InvoiceID,
		BuyerOrgID:  payment.BuyerOrgID,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
		ReturnURL:   s.cfg.GatewayReturnURL,
		Description: fmt.Sprintf("invoice %s", payment.InvoiceID),
	})
	if err != nil {
		s.log.Warn("gateway checkout failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		if _, markErr := s.markFailed(ctx, payment.ID, "gateway_unavailable", err.Error()); markErr != nil {
			s.log.Error("failed to mark payment failed",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, provider_checkout_id = ?, checkout_url = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		paymentdomain.PaymentStatusProcessing,
		session.ProviderPaymentID,
		session.CheckoutURL,
		now,
		payment.ID,
		paymentdomain.PaymentStatusPending,
	).Error
	if err != nil {
		return nil, err
	}

	payment.Status = paymentdomain.PaymentStatusProcessing
	payment.ProviderCheckoutID = session.ProviderPaymentID
	payment.CheckoutURL = session.CheckoutURL
	payment.UpdatedAt = now

	s.emitAudit(ctx, "payment.initiated", &payment, nil)
	return &payment, nil
}

// ProcessGatewayReturn polls the gateway for the attempt's current state.
// The buyer's browser and the webhook race here; whichever path settles
// first wins and the other becomes a no-op.
func (s *Service) ProcessGatewayReturn(ctx context.Context, providerPaymentID string) (*paymentdomain.Payment, error) {
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return nil, paymentdomain.ErrUnknownProviderPayment
	}

	state, err := s.gateway.GetPaymentStatus(ctx, providerPaymentID)
	if err != nil {
		if errors.Is(err, gateway.ErrSessionNotFound) {
			return nil, paymentdomain.ErrUnknownProviderPayment
		}
		return nil, err
	}

	var toStatus paymentdomain.PaymentStatus
	switch state {
	case gateway.StateSucceeded:
		toStatus = paymentdomain.PaymentStatusSucceeded
	case gateway.StateFailed:
		toStatus = paymentdomain.PaymentStatusFailed
	case gateway.StateCancelled:
		toStatus = paymentdomain.PaymentStatusCancelled
	case gateway.StateExpired:
		toStatus = paymentdomain.PaymentStatusExpired
	default:
		return s.findByCheckoutID(ctx, providerPaymentID)
	}

	return s.reconcile(ctx, providerPaymentID, nil, toStatus, "", "", 0)
}

// HandleWebhook verifies, parses, deduplicates and applies one gateway
// event. Redelivered events return the current payment without touching it.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.Payment, error) {
	if err := s.gateway.VerifyWebhookSignature(payload, headers); err != nil {
		return nil, err
	}

	event, err := s.gateway.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}

	var toStatus paymentdomain.PaymentStatus
	switch event.Type {
	case gateway.EventTypeSucceeded:
		toStatus = paymentdomain.PaymentStatusSucceeded
	case gateway.EventTypeFailed:
		toStatus = paymentdomain.PaymentStatusFailed
	case gateway.EventTypeRefunded:
		toStatus = paymentdomain.PaymentStatusRefunded
	default:
		return nil, gateway.ErrEventIgnored
	}

	return s.reconcile(ctx, event.ProviderPaymentID, event, toStatus, event.FailureReason, "", event.AmountCents)
}

// RecordOfflinePayment books a settlement that happened outside the
// gateway. The amount must match the invoice total to the cent.
func (s *Service) RecordOfflinePayment(ctx context.Context, req paymentdomain.OfflinePaymentRequest) (*paymentdomain.Payment, error) {
	invID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	if !req.Method.Offline() {
		return nil, paymentdomain.ErrInvalidMethod
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	key := fmt.Sprintf("offline:%s:ref:%s", invID, reference)

	var payment paymentdomain.Payment
	var fresh bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A replayed reference resolves to the recorded payment before
		// any guard runs: the first recording may already have moved
		// the invoice past payable.
		if existing, err := s.loadByKey(ctx, tx, key); err == nil {
			payment = *existing
			return nil
		} else if !errors.Is(err, paymentdomain.ErrNotFound) {
			return err
		}

		invoice, err := s.lockInvoice(ctx, tx, invID)
		if err != nil {
			return err
		}
		if !invoice.Payable() {
			return paymentdomain.ErrInvoiceNotPayable
		}
		if req.AmountCents != invoice.TotalCents {
			return paymentdomain.ErrAmountMismatch
		}
		if err := s.guardSingleSuccess(ctx, tx, invID, 0); err != nil {
			return err
		}

		now := time.Now().UTC()
		payment = paymentdomain.Payment{
			ID:             s.genID.Generate(),
			InvoiceID:      invID,
			BuyerOrgID:     invoice.BuyerOrgID,
			Method:         req.Method,
			AmountCents:    req.AmountCents,
			Currency:       "USD",
			Status:         paymentdomain.PaymentStatusSucceeded,
			IdempotencyKey: key,
			Reference:      reference,
			SettledAt:      &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		result := tx.WithContext(ctx).Exec(
			`INSERT INTO payments
			   (id, invoice_id, buyer_org_id, method, provider, provider_checkout_id,
			    provider_transaction_id, amount_cents, currency, status, idempotency_key,
			    checkout_url, reference, error_code, error_message, settled_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, '', '', '', ?, ?, ?, ?, '', ?, '', '', ?, ?, ?)
			 ON CONFLICT (idempotency_key) DO NOTHING`,
			payment.ID, payment.InvoiceID, payment.BuyerOrgID, payment.Method,
			payment.AmountCents, payment.Currency, payment.Status, payment.IdempotencyKey,
			payment.Reference, payment.SettledAt, payment.CreatedAt, payment.UpdatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			existing, err := s.loadByKey(ctx, tx, payment.IdempotencyKey)
			if err != nil {
				return err
			}
			payment = *existing
			return nil
		}

		target := invoicedomain.InvoiceStatusPendingConfirmation
		if s.cfg.OfflinePaymentMarksPaid {
			target = invoicedomain.InvoiceStatusPaid
		}
		if err := s.advanceInvoice(ctx, tx, invoice, target, now); err != nil {
			return err
		}
		fresh = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fresh {
		s.afterSettlement(ctx, &payment)
	}
	return &payment, nil
}

// ExpireStale abandons PROCESSING attempts whose checkout session
// outlived the configured TTL.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.cfg.PaymentSessionTTLSeconds) * time.Second)

	result := s.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		paymentdomain.PaymentStatusExpired,
		now.UTC(),
		paymentdomain.PaymentStatusProcessing,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*paymentdomain.Payment, error) {
	payID, err := parseID(id)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	return s.loadByID(ctx, s.db, payID, false)
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]paymentdomain.Payment, error) {
	invID, err := parseID(invoiceID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	var payments []paymentdomain.Payment
	err = s.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE invoice_id = ?
		 ORDER BY created_at`,
		invID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// reconcile applies one observed gateway outcome to the attempt under a
// row lock. Terminal attempts are returned untouched, which is what makes
// the webhook and return paths safe to race.
func (s *Service) reconcile(
	ctx context.Context,
	providerPaymentID string,
	event *gateway.Event,
	toStatus paymentdomain.PaymentStatus,
	errorCode string,
	errorMessage string,
	reportedAmount int64,
) (*paymentdomain.Payment, error) {

	var payment *paymentdomain.Payment
	var settled bool
	var failed bool
	var mismatch bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.lockByCheckoutID(ctx, tx, providerPaymentID, event)
		if err != nil {
			return err
		}

		if event != nil {
			duplicate, err := s.recordEvent(ctx, tx, event, payment.ID)
			if err != nil {
				return err
			}
			if duplicate {
				return nil
			}
		}

		// SUCCEEDED is settled even though a refund may still leave it:
		// whichever of the webhook and return paths lands second must
		// see the done attempt and no-op instead of re-transitioning.
		if payment.Terminal() || payment.Status == paymentdomain.PaymentStatusSucceeded {
			if toStatus == paymentdomain.PaymentStatusRefunded && payment.Status == paymentdomain.PaymentStatusSucceeded {
				return s.applyTransition(ctx, tx, payment, paymentdomain.PaymentStatusRefunded, "", "", payment.SettledAt)
			}
			return nil
		}

		if err := paymentdomain.CheckTransition(payment.Status, toStatus); err != nil {
			return err
		}

		now := time.Now().UTC()
		switch toStatus {
		case paymentdomain.PaymentStatusSucceeded:
			if reportedAmount > 0 && reportedAmount != payment.AmountCents {
				// Commit the event record, then fail the attempt outside
				// this transaction.
				mismatch = true
				return nil
			}
			if err := s.guardSingleSuccess(ctx, tx, payment.InvoiceID, payment.ID); err != nil {
				return err
			}

			transactionID := providerPaymentID
			if event != nil && event.ProviderPaymentID != "" {
				transactionID = event.ProviderPaymentID
			}
			if err := s.applyTransition(ctx, tx, payment, paymentdomain.PaymentStatusSucceeded, "", "", &now); err != nil {
				return err
			}
			payment.ProviderTransactionID = transactionID
			if err := tx.WithContext(ctx).Exec(
				`UPDATE payments SET provider_transaction_id = ? WHERE id = ?`,
				transactionID,
				payment.ID,
			).Error; err != nil {
				return err
			}

			invoice, err := s.lockInvoice(ctx, tx, payment.InvoiceID)
			if err != nil {
				return err
			}
			if err := s.advanceInvoice(ctx, tx, invoice, invoicedomain.InvoiceStatusPaid, now); err != nil {
				return err
			}
			settled = true
			return nil

		case paymentdomain.PaymentStatusFailed:
			if errorCode == "" {
				errorCode = "gateway_declined"
			}
			failed = true
			return s.applyTransition(ctx, tx, payment, toStatus, errorCode, errorMessage, nil)

		default:
			return s.applyTransition(ctx, tx, payment, toStatus, errorCode, errorMessage, nil)
		}
	})
	if err != nil {
		return nil, err
	}

	if mismatch {
		message := fmt.Sprintf("gateway reported %d, expected %d", reportedAmount, payment.AmountCents)
		if marked, markErr := s.markFailed(ctx, payment.ID, "amount_mismatch", message); markErr != nil {
			s.log.Error("failed to mark amount mismatch",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(markErr),
			)
		} else {
			payment = marked
		}
		s.afterFailure(ctx, payment)
		return payment, paymentdomain.ErrAmountMismatch
	}

	if settled {
		s.afterSettlement(ctx, payment)
	} else if failed {
		s.afterFailure(ctx, payment)
	}
	return payment, nil
}

// applyTransition mutates the locked payment row. Callers hold the row
// lock and have already validated the move.
func (s *Service) applyTransition(
	ctx context.Context,
	tx *gorm.DB,
	payment *paymentdomain.Payment,
	to paymentdomain.PaymentStatus,
	errorCode string,
	errorMessage string,
	settledAt *time.Time,
) error {
	now := time.Now().UTC()
	err := tx.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, error_code = ?, error_message = ?, settled_at = ?, updated_at = ?
		 WHERE id = ?`,
		to,
		errorCode,
		errorMessage,
		settledAt,
		now,
		payment.ID,
	).Error
	if err != nil {
		return err
	}
	payment.Status = to
	payment.ErrorCode = errorCode
	payment.ErrorMessage = errorMessage
	payment.SettledAt = settledAt
	payment.UpdatedAt = now
	return nil
}

// markFailed is the out-of-band failure path for attempts that never
// reached the gateway.
func (s *Service) markFailed(ctx context.Context, id snowflake.ID, code, message string) (*paymentdomain.Payment, error) {
	var payment *paymentdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.loadByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if payment.Terminal() {
			return nil
		}
		if err := paymentdomain.CheckTransition(payment.Status, paymentdomain.PaymentStatusFailed); err != nil {
			return err
		}
		return s.applyTransition(ctx, tx, payment, paymentdomain.PaymentStatusFailed, code, message, nil)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// guardSingleSuccess enforces at most one SUCCEEDED payment per invoice.
// Callers hold the invoice row lock.
func (s *Service) guardSingleSuccess(ctx context.Context, tx *gorm.DB, invoiceID, excludePaymentID snowflake.ID) error {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE invoice_id = ? AND status = ? AND id != ?`,
		invoiceID,
		paymentdomain.PaymentStatusSucceeded,
		excludePaymentID,
	).Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return paymentdomain.ErrDuplicateSuccessfulPayment
	}
	return nil
}

func (s *Service) advanceInvoice(
	ctx context.Context,
	tx *gorm.DB,
	invoice *invoicedomain.Invoice,
	to invoicedomain.InvoiceStatus,
	now time.Time,
) error {
	if err := invoicedomain.CheckTransition(invoice.Status, to); err != nil {
		return err
	}

	var paidDate *time.Time
	if to == invoicedomain.InvoiceStatusPaid {
		paidDate = &now
	}
	err := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, paid_date = ?, updated_at = ? WHERE id = ?`,
		to,
		paidDate,
		now,
		invoice.ID,
	).Error
	if err != nil {
		return err
	}
	invoice.Status = to
	invoice.PaidDate = paidDate
	invoice.UpdatedAt = now
	return nil
}

// recordEvent persists the webhook event. A duplicate provider event id
// means the gateway redelivered; the caller must not re-apply it.
func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, event *gateway.Event, paymentID snowflake.ID) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_events
		   (id, provider, provider_event_id, provider_payment_id, payment_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		s.genID.Generate(),
		event.Provider,
		event.ProviderEventID,
		event.ProviderPaymentID,
		paymentID,
		event.Type,
		string(event.RawPayload),
		time.Now().UTC(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

// afterSettlement runs outside the transaction: order materialization,
// audit, buyer notification. Failures here are logged, never surfaced.
func (s *Service) afterSettlement(ctx context.Context, payment *paymentdomain.Payment) {
	s.metrics.RecordPaymentEvent(ctx, payment.Provider, "succeeded")
	if _, err := s.orderSvc.CreateFromPayment(ctx, payment.ID.String()); err != nil {
		s.log.Warn("order materialization failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}

	s.emitAudit(ctx, "payment.succeeded", payment, nil)
	notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
		Kind:           notificationdomain.KindPaymentSucceeded,
		RecipientOrgID: payment.BuyerOrgID,
		Payload: map[string]any{
			"payment_id":   payment.ID.String(),
			"invoice_id":   payment.InvoiceID.String(),
			"amount_cents": payment.AmountCents,
			"method":       string(payment.Method),
		},
	})
}

func (s *Service) afterFailure(ctx context.Context, payment *paymentdomain.Payment) {
	s.metrics.RecordPaymentEvent(ctx, payment.Provider, "failed")
	s.emitAudit(ctx, "payment.failed", payment, map[string]any{
		"error_code": payment.ErrorCode,
	})
	notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
		Kind:           notificationdomain.KindPaymentFailed,
		RecipientOrgID: payment.BuyerOrgID,
		Payload: map[string]any{
			"payment_id":   payment.ID.String(),
			"invoice_id":   payment.InvoiceID.String(),
			"amount_cents": payment.AmountCents,
			"error_code":   payment.ErrorCode,
		},
	})
}

const paymentColumns = `id, invoice_id, buyer_org_id, method, provider, provider_checkout_id,
	provider_transaction_id, amount_cents, currency, status, idempotency_key, checkout_url,
	reference, error_code, error_message, settled_at, created_at, updated_at`

func (s *Service) loadByID(ctx context.Context, tx *gorm.DB, id snowflake.ID, forUpdate bool) (*paymentdomain.Payment, error) {
	lock := ""
	if forUpdate {
		lock = pkgdb.ForUpdate(tx)
	}

	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`+lock,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrNotFound
	}
	return &payment, nil
}

func (s *Service) loadByKey(ctx context.Context, tx *gorm.DB, key string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ?`,
		key,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrNotFound
	}
	return &payment, nil
}

func (s *Service) findByCheckoutID(ctx context.Context, providerPaymentID string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := s.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE provider_checkout_id = ?`,
		providerPaymentID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrUnknownProviderPayment
	}
	return &payment, nil
}

// lockByCheckoutID resolves the attempt a gateway event refers to. The
// metadata payment id wins when present; the provider's session id is
// the fallback.
func (s *Service) lockByCheckoutID(ctx context.Context, tx *gorm.DB, providerPaymentID string, event *gateway.Event) (*paymentdomain.Payment, error) {
	if event != nil && event.PaymentID != nil {
		payment, err := s.loadByID(ctx, tx, *event.PaymentID, true)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, paymentdomain.ErrNotFound) {
			return nil, err
		}
	}

	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE provider_checkout_id = ?`+pkgdb.ForUpdate(tx),
		providerPaymentID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrUnknownProviderPayment
	}
	return &payment, nil
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT id, pledge_id, campaign_id, buyer_org_id, invoice_number, subtotal_cents,
		        tax_cents, total_cents, status, issue_date, due_date, paid_date, created_at, updated_at
		 FROM invoices
		 WHERE id = ?`+pkgdb.ForUpdate(tx),
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrNotFound
	}
	return &invoice, nil
}

func (s *Service) bucketSeconds() int64 {
	if s.cfg.PaymentIdempotencyBucketSeconds > 0 {
		return s.cfg.PaymentIdempotencyBucketSeconds
	}
	return 60
}

func (s *Service) emitAudit(ctx context.Context, action string, payment *paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	metadata := map[string]any{
		"invoice_id":   payment.InvoiceID.String(),
		"method":       string(payment.Method),
		"status":       string(payment.Status),
		"amount_cents": payment.AmountCents,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := payment.ID.String()
	orgID := payment.BuyerOrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "payment", &targetID, metadata)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
