package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groupcart/groupcart/internal/audit/domain"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	obsmetrics "github.com/groupcart/groupcart/internal/observability/metrics"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	pkgdb "github.com/groupcart/groupcart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) CreateFromPayment(ctx context.Context, paymentID string) (*orderdomain.Order, error) {
	id, err := parseID(paymentID)
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	var order *orderdomain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = s.materialize(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*orderdomain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	var order orderdomain.Order
	err = s.db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		orderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, orderdomain.ErrNotFound
	}
	return &order, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID string) ([]orderdomain.Order, error) {
	id, err := parseID(campaignID)
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	var orders []orderdomain.Order
	err = s.db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE campaign_id = ?
		 ORDER BY created_at`,
		id,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// MaterializeMissing is the safety net behind the post-commit trigger:
// any successful payment that lost its trigger gets its order here.
func (s *Service) MaterializeMissing(ctx context.Context) (int, error) {
	var paymentIDs []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT p.id
		 FROM payments p
		 LEFT JOIN orders o ON o.payment_id = p.id
		 WHERE p.status = ? AND o.id IS NULL`,
		paymentdomain.PaymentStatusSucceeded,
	).Scan(&paymentIDs).Error
	if err != nil {
		return 0, err
	}

	created := 0
	for _, paymentID := range paymentIDs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.materialize(ctx, tx, paymentID)
			return err
		})
		if err != nil {
			s.log.Warn("order backfill failed",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err),
			)
			continue
		}
		created++
	}
	return created, nil
}

func (s *Service) materialize(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) (*orderdomain.Order, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT id, invoice_id, buyer_org_id, amount_cents, status
		 FROM payments
		 WHERE id = ?`+pkgdb.ForUpdate(tx),
		paymentID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrNotFound
	}
	if payment.Status != paymentdomain.PaymentStatusSucceeded {
		return nil, orderdomain.ErrPaymentNotSucceeded
	}

	var invoice invoicedomain.Invoice
	err = tx.WithContext(ctx).Raw(
		`SELECT id, pledge_id, campaign_id, buyer_org_id, subtotal_cents, total_cents
		 FROM invoices
		 WHERE id = ?`,
		payment.InvoiceID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrNotFound
	}

	var pledge pledgedomain.Pledge
	err = tx.WithContext(ctx).Raw(
		`SELECT id, campaign_id, buyer_org_id, quantity
		 FROM pledges
		 WHERE id = ?`,
		invoice.PledgeID,
	).Scan(&pledge).Error
	if err != nil {
		return nil, err
	}
	if pledge.ID == 0 {
		return nil, pledgedomain.ErrNotFound
	}

	unitPrice := int64(0)
	if pledge.Quantity > 0 {
		unitPrice = invoice.SubtotalCents / pledge.Quantity
	}

	now := time.Now().UTC()
	order := orderdomain.Order{
		ID:             s.genID.Generate(),
		OrderNumber:    fmt.Sprintf("ORD-%s", s.genID.Generate()),
		PaymentID:      payment.ID,
		InvoiceID:      invoice.ID,
		CampaignID:     invoice.CampaignID,
		BuyerOrgID:     invoice.BuyerOrgID,
		Quantity:       pledge.Quantity,
		UnitPriceCents: unitPrice,
		TotalCents:     invoice.TotalCents,
		Status:         orderdomain.OrderStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO orders
		   (id, order_number, payment_id, invoice_id, campaign_id, buyer_org_id,
		    quantity, unit_price_cents, total_cents, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (payment_id) DO NOTHING`,
		order.ID, order.OrderNumber, order.PaymentID, order.InvoiceID,
		order.CampaignID, order.BuyerOrgID, order.Quantity, order.UnitPriceCents,
		order.TotalCents, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var existing orderdomain.Order
		err := tx.WithContext(ctx).Raw(
			`SELECT `+orderColumns+` FROM orders WHERE payment_id = ?`,
			payment.ID,
		).Scan(&existing).Error
		if err != nil {
			return nil, err
		}
		if existing.ID == 0 {
			return nil, orderdomain.ErrNotFound
		}
		return &existing, nil
	}

	s.metrics.RecordOrderCreated(ctx)
	s.emitAudit(ctx, &order)
	return &order, nil
}

const orderColumns = `id, order_number, payment_id, invoice_id, campaign_id, buyer_org_id,
	quantity, unit_price_cents, total_cents, status, created_at, updated_at`

func (s *Service) emitAudit(ctx context.Context, order *orderdomain.Order) {
	if s.auditSvc == nil || order == nil {
		return
	}
	targetID := order.ID.String()
	orgID := order.BuyerOrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, "order.created", "order", &targetID, map[string]any{
		"order_number": order.OrderNumber,
		"payment_id":   order.PaymentID.String(),
		"invoice_id":   order.InvoiceID.String(),
		"campaign_id":  order.CampaignID.String(),
		"quantity":     order.Quantity,
		"total_cents":  order.TotalCents,
	})
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
