package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groupcart/groupcart/internal/audit/domain"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	"github.com/groupcart/groupcart/internal/config"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	"github.com/groupcart/groupcart/internal/notification"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	obsmetrics "github.com/groupcart/groupcart/internal/observability/metrics"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
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
	AuditSvc   auditdomain.Service
	Dispatcher notificationdomain.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	dispatcher notificationdomain.Dispatcher
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

// GenerateForCampaign bills every committed pledge of a locked campaign.
// The campaign row is locked for the duration of the transaction so two
// concurrent invocations serialize; pledges already invoiced are skipped
// by the unique index on pledge_id.
func (s *Service) GenerateForCampaign(
	ctx context.Context,
	campaignID string,
	finalBracket bracketdomain.DiscountBracket,
) ([]invoicedomain.Invoice, error) {

	id, err := parseID(campaignID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	if finalBracket.CampaignID != id {
		return nil, invoicedomain.ErrBracketMismatch
	}

	var created []invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := s.lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if campaign.Status != campaigndomain.CampaignStatusLocked {
			return invoicedomain.ErrCampaignNotLocked
		}

		// Read through the open transaction so the committed set is
		// consistent with the campaign row lock held above.
		pledges, err := s.listCommittedPledges(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		dueDate := now.AddDate(0, 0, s.cfg.InvoiceGraceDays)
		status := invoicedomain.InvoiceStatusSent
		if s.cfg.InvoiceIssueAsDraft {
			status = invoicedomain.InvoiceStatusDraft
		}

		seq, err := s.nextInvoiceSequence(ctx, tx, now)
		if err != nil {
			return err
		}

		for _, pledge := range pledges {
			subtotal := finalBracket.UnitPriceCents * pledge.Quantity
			tax := subtotal * s.cfg.VatRateBps / 10000

			invoice := invoicedomain.Invoice{
				ID:            s.genID.Generate(),
				PledgeID:      pledge.ID,
				CampaignID:    id,
				BuyerOrgID:    pledge.BuyerOrgID,
				InvoiceNumber: formatInvoiceNumber(s.cfg.InvoiceNumberPrefix, now, seq),
				SubtotalCents: subtotal,
				TaxCents:      tax,
				TotalCents:    subtotal + tax,
				Status:        status,
				IssueDate:     now,
				DueDate:       dueDate,
				CreatedAt:     now,
				UpdatedAt:     now,
			}

			result := tx.WithContext(ctx).Exec(
				`INSERT INTO invoices
				   (id, pledge_id, campaign_id, buyer_org_id, invoice_number,
				    subtotal_cents, tax_cents, total_cents, status,
				    issue_date, due_date, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (pledge_id) DO NOTHING`,
				invoice.ID, invoice.PledgeID, invoice.CampaignID, invoice.BuyerOrgID,
				invoice.InvoiceNumber, invoice.SubtotalCents, invoice.TaxCents,
				invoice.TotalCents, invoice.Status, invoice.IssueDate, invoice.DueDate,
				invoice.CreatedAt, invoice.UpdatedAt,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Pledge already invoiced; the reserved number is reused
				// for the next pledge so the sequence stays dense.
				continue
			}

			created = append(created, invoice)
			seq++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoicesGenerated(ctx, len(created))
	for i := range created {
		s.emitAudit(ctx, "invoice.generated", &created[i], nil)
		notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
			Kind:           notificationdomain.KindInvoiceIssued,
			RecipientOrgID: created[i].BuyerOrgID,
			Payload: map[string]any{
				"invoice_id":     created[i].ID.String(),
				"invoice_number": created[i].InvoiceNumber,
				"total_cents":    created[i].TotalCents,
				"due_date":       created[i].DueDate.Format(time.RFC3339),
			},
		})
	}
	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	return s.load(ctx, s.db, invoiceID, false)
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID string) ([]invoicedomain.Invoice, error) {
	id, err := parseID(campaignID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var invoices []invoicedomain.Invoice
	err = s.db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE campaign_id = ?
		 ORDER BY invoice_number`,
		id,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) Send(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusSent, "invoice.sent")
}

func (s *Service) Cancel(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.transition(ctx, id, invoicedomain.InvoiceStatusCancelled, "invoice.cancelled")
	if err != nil {
		return nil, err
	}
	notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
		Kind:           notificationdomain.KindInvoiceCancelled,
		RecipientOrgID: invoice.BuyerOrgID,
		Payload: map[string]any{
			"invoice_id":     invoice.ID.String(),
			"invoice_number": invoice.InvoiceNumber,
		},
	})
	return invoice, nil
}

// ConfirmPaid acknowledges an offline settlement previously recorded
// against the invoice.
func (s *Service) ConfirmPaid(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var mutated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, invoiceID, true)
		if err != nil {
			return err
		}
		if err := invoicedomain.CheckTransition(invoice.Status, invoicedomain.InvoiceStatusPaid); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, paid_date = ?, updated_at = ? WHERE id = ?`,
			invoicedomain.InvoiceStatusPaid,
			now,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}
		invoice.Status = invoicedomain.InvoiceStatusPaid
		invoice.PaidDate = &now
		invoice.UpdatedAt = now
		mutated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, "invoice.paid", mutated, nil)
	return mutated, nil
}

// MarkOverdue flips every SENT invoice past its due date in a single
// statement. Re-running with the same clock is a no-op.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	var overdue []invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Raw(
			`SELECT `+invoiceColumns+`
			 FROM invoices
			 WHERE status = ? AND due_date < ?`+pkgdb.ForUpdate(tx),
			invoicedomain.InvoiceStatusSent,
			now,
		).Scan(&overdue).Error; err != nil {
			return err
		}
		if len(overdue) == 0 {
			return nil
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, updated_at = ?
			 WHERE status = ? AND due_date < ?`,
			invoicedomain.InvoiceStatusOverdue,
			now.UTC(),
			invoicedomain.InvoiceStatusSent,
			now,
		).Error
	})
	if err != nil {
		return 0, err
	}

	for i := range overdue {
		overdue[i].Status = invoicedomain.InvoiceStatusOverdue
		s.emitAudit(ctx, "invoice.overdue", &overdue[i], nil)
		notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
			Kind:           notificationdomain.KindInvoiceOverdue,
			RecipientOrgID: overdue[i].BuyerOrgID,
			Payload: map[string]any{
				"invoice_id":     overdue[i].ID.String(),
				"invoice_number": overdue[i].InvoiceNumber,
				"total_cents":    overdue[i].TotalCents,
				"due_date":       overdue[i].DueDate.Format(time.RFC3339),
			},
		})
	}
	return len(overdue), nil
}

func (s *Service) transition(
	ctx context.Context,
	id string,
	to invoicedomain.InvoiceStatus,
	action string,
) (*invoicedomain.Invoice, error) {

	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var mutated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, invoiceID, true)
		if err != nil {
			return err
		}
		if err := invoicedomain.CheckTransition(invoice.Status, to); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
			to,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}
		invoice.Status = to
		invoice.UpdatedAt = now
		mutated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, action, mutated, nil)
	return mutated, nil
}

const invoiceColumns = `id, pledge_id, campaign_id, buyer_org_id, invoice_number,
	subtotal_cents, tax_cents, total_cents, status, issue_date, due_date, paid_date,
	created_at, updated_at`

func (s *Service) load(ctx context.Context, tx *gorm.DB, id snowflake.ID, forUpdate bool) (*invoicedomain.Invoice, error) {
	lock := ""
	if forUpdate {
		lock = pkgdb.ForUpdate(tx)
	}

	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE id = ?`+lock,
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

func (s *Service) listCommittedPledges(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) ([]pledgedomain.Pledge, error) {
	var pledges []pledgedomain.Pledge
	err := tx.WithContext(ctx).Raw(
		`SELECT id, campaign_id, buyer_org_id, quantity, status, created_at, updated_at
		 FROM pledges
		 WHERE campaign_id = ? AND status = ?
		 ORDER BY created_at`,
		campaignID,
		pledgedomain.PledgeStatusCommitted,
	).Scan(&pledges).Error
	if err != nil {
		return nil, err
	}
	return pledges, nil
}

func (s *Service) lockCampaign(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*campaigndomain.Campaign, error) {
	var campaign campaigndomain.Campaign
	err := tx.WithContext(ctx).Raw(
		`SELECT id, supplier_org_id, title, slug, status, final_bracket_id, locked_at, created_at, updated_at
		 FROM campaigns
		 WHERE id = ?`+pkgdb.ForUpdate(tx),
		id,
	).Scan(&campaign).Error
	if err != nil {
		return nil, err
	}
	if campaign.ID == 0 {
		return nil, campaigndomain.ErrNotFound
	}
	return &campaign, nil
}

// nextInvoiceSequence scans the current month's numbers inside the open
// transaction. Callers must hold the campaign row lock; cross-campaign
// collisions in the same month are absorbed by the unique index on
// invoice_number and surface as a retryable error.
func (s *Service) nextInvoiceSequence(ctx context.Context, tx *gorm.DB, now time.Time) (int, error) {
	prefix := fmt.Sprintf("%s-%s-", s.cfg.InvoiceNumberPrefix, now.Format("200601"))

	// Compare the numeric suffix, not the formatted string: once the
	// counter outgrows its zero padding, "-10000" sorts below "-9999".
	var last int
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, ?) AS INTEGER)), 0)
		 FROM invoices
		 WHERE invoice_number LIKE ?`,
		len(prefix)+1,
		prefix+"%",
	).Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func formatInvoiceNumber(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, at.Format("200601"), seq)
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"campaign_id":    invoice.CampaignID.String(),
		"pledge_id":      invoice.PledgeID.String(),
		"status":         string(invoice.Status),
		"total_cents":    invoice.TotalCents,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	orgID := invoice.BuyerOrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "invoice", &targetID, metadata)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
