package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/groupcart/groupcart/internal/audit/domain"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	"github.com/groupcart/groupcart/internal/bracket/resolver"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	"github.com/groupcart/groupcart/internal/notification"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	pkgdb "github.com/groupcart/groupcart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service
	PledgeSvc  pledgedomain.Service
	BracketSvc bracketdomain.Service
	Dispatcher notificationdomain.Dispatcher
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	pledgeSvc  pledgedomain.Service
	bracketSvc bracketdomain.Service
	dispatcher notificationdomain.Dispatcher
}

func NewService(p Params) campaigndomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("campaign.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		pledgeSvc:  p.PledgeSvc,
		bracketSvc: p.BracketSvc,
		dispatcher: p.Dispatcher,
	}
}

func (s *Service) Create(ctx context.Context, req campaigndomain.CreateRequest) (*campaigndomain.Campaign, error) {
	supplierID, err := parseID(req.SupplierOrgID)
	if err != nil {
		return nil, campaigndomain.ErrInvalidSupplier
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, campaigndomain.ErrInvalidTitle
	}

	now := time.Now().UTC()
	id := s.genID.Generate()
	campaign := campaigndomain.Campaign{
		ID:            id,
		SupplierOrgID: supplierID,
		Title:         title,
		Slug:          fmt.Sprintf("%s-%s", slug.Make(title), id.String()),
		Status:        campaigndomain.CampaignStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&campaign).Error; err != nil {
		return nil, err
	}

	s.emitAudit(ctx, "campaign.created", &campaign, nil)
	return &campaign, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*campaigndomain.Campaign, error) {
	campaignID, err := parseID(id)
	if err != nil {
		return nil, campaigndomain.ErrInvalidID
	}
	return s.load(ctx, s.db, campaignID, false)
}

func (s *Service) Open(ctx context.Context, id string) (*campaigndomain.Campaign, error) {
	return s.transition(ctx, id, "campaign.opened", func(campaign *campaigndomain.Campaign) error {
		if campaign.Status != campaigndomain.CampaignStatusDraft {
			return campaigndomain.ErrNotDraft
		}
		campaign.Status = campaigndomain.CampaignStatusOpen
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*campaigndomain.Campaign, error) {
	return s.transition(ctx, id, "campaign.cancelled", func(campaign *campaigndomain.Campaign) error {
		switch campaign.Status {
		case campaigndomain.CampaignStatusLocked:
			return campaigndomain.ErrAlreadyLocked
		case campaigndomain.CampaignStatusCancelled:
			return campaigndomain.ErrCancelled
		}
		campaign.Status = campaigndomain.CampaignStatusCancelled
		return nil
	})
}

// Lock freezes the campaign: all pending pledges become COMMITTED and the
// final bracket is resolved from the total committed quantity. Calling Lock
// on an already locked campaign returns the recorded outcome.
func (s *Service) Lock(ctx context.Context, id string) (*campaigndomain.LockResult, error) {
	campaignID, err := parseID(id)
	if err != nil {
		return nil, campaigndomain.ErrInvalidID
	}

	var result *campaigndomain.LockResult
	var freshlyLocked bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := s.load(ctx, tx, campaignID, true)
		if err != nil {
			return err
		}

		switch campaign.Status {
		case campaigndomain.CampaignStatusCancelled:
			return campaigndomain.ErrCancelled
		case campaigndomain.CampaignStatusDraft:
			return campaigndomain.ErrNotOpen
		case campaigndomain.CampaignStatusLocked:
			locked, err := s.lockedResult(ctx, tx, campaign)
			if err != nil {
				return err
			}
			result = locked
			return nil
		}

		brackets, err := s.listBrackets(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if len(brackets) == 0 {
			return campaigndomain.ErrNoBrackets
		}

		committed, pledgeCount, err := s.aggregateNonWithdrawn(ctx, tx, campaignID)
		if err != nil {
			return err
		}

		finalBracket, err := resolver.Resolve(brackets, committed)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE pledges
			 SET status = ?, updated_at = ?
			 WHERE campaign_id = ? AND status = ?`,
			pledgedomain.PledgeStatusCommitted,
			now,
			campaignID,
			pledgedomain.PledgeStatusPending,
		).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE campaigns
			 SET status = ?, final_bracket_id = ?, locked_at = ?, updated_at = ?
			 WHERE id = ?`,
			campaigndomain.CampaignStatusLocked,
			finalBracket.ID,
			now,
			now,
			campaignID,
		).Error; err != nil {
			return err
		}

		campaign.Status = campaigndomain.CampaignStatusLocked
		campaign.FinalBracketID = &finalBracket.ID
		campaign.LockedAt = &now
		result = &campaigndomain.LockResult{
			Campaign:          *campaign,
			FinalBracket:      *finalBracket,
			CommittedQuantity: committed,
			CommittedPledges:  pledgeCount,
		}
		freshlyLocked = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if freshlyLocked {
		s.emitAudit(ctx, "campaign.locked", &result.Campaign, map[string]any{
			"final_bracket_id":   result.FinalBracket.ID.String(),
			"unit_price_cents":   result.FinalBracket.UnitPriceCents,
			"committed_quantity": result.CommittedQuantity,
			"committed_pledges":  result.CommittedPledges,
		})
		notification.Dispatch(ctx, s.log, s.dispatcher, notificationdomain.Notification{
			Kind:           notificationdomain.KindCampaignLocked,
			RecipientOrgID: result.Campaign.SupplierOrgID,
			Payload: map[string]any{
				"campaign_id":        result.Campaign.ID.String(),
				"committed_quantity": result.CommittedQuantity,
				"unit_price_cents":   result.FinalBracket.UnitPriceCents,
			},
		})
	}
	return result, nil
}

// Quote resolves the bracket the campaign currently sits in. The committed
// aggregate is recomputed on every call; concurrent pledges may move the
// answer between two invocations.
func (s *Service) Quote(ctx context.Context, id string) (*campaigndomain.QuoteResult, error) {
	campaignID, err := parseID(id)
	if err != nil {
		return nil, campaigndomain.ErrInvalidID
	}
	if _, err := s.load(ctx, s.db, campaignID, false); err != nil {
		return nil, err
	}

	brackets, err := s.bracketSvc.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	committed, err := s.pledgeSvc.CommittedQuantity(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	bracket, err := resolver.Resolve(brackets, committed)
	if err != nil {
		return nil, err
	}

	return &campaigndomain.QuoteResult{
		CommittedQuantity: committed,
		Bracket:           *bracket,
		NextBracket:       resolver.Next(brackets, bracket),
		UnitPriceCents:    bracket.UnitPriceCents,
	}, nil
}

func (s *Service) transition(
	ctx context.Context,
	id string,
	action string,
	mutate func(campaign *campaigndomain.Campaign) error,
) (*campaigndomain.Campaign, error) {

	campaignID, err := parseID(id)
	if err != nil {
		return nil, campaigndomain.ErrInvalidID
	}

	var mutated *campaigndomain.Campaign
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := s.load(ctx, tx, campaignID, true)
		if err != nil {
			return err
		}
		if err := mutate(campaign); err != nil {
			return err
		}
		now := time.Now().UTC()
		campaign.UpdatedAt = now
		if err := tx.WithContext(ctx).Exec(
			`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
			campaign.Status,
			now,
			campaignID,
		).Error; err != nil {
			return err
		}
		mutated = campaign
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, action, mutated, nil)
	return mutated, nil
}

func (s *Service) lockedResult(ctx context.Context, tx *gorm.DB, campaign *campaigndomain.Campaign) (*campaigndomain.LockResult, error) {
	if campaign.FinalBracketID == nil {
		return nil, bracketdomain.ErrNoPricing
	}

	var bracket bracketdomain.DiscountBracket
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, campaign_id, min_quantity, max_quantity, unit_price_cents, bracket_order, created_at, updated_at
		 FROM discount_brackets
		 WHERE id = ?`,
		*campaign.FinalBracketID,
	).Scan(&bracket).Error; err != nil {
		return nil, err
	}
	if bracket.ID == 0 {
		return nil, bracketdomain.ErrNotFound
	}

	committed, pledgeCount, err := s.aggregateCommitted(ctx, tx, campaign.ID)
	if err != nil {
		return nil, err
	}

	return &campaigndomain.LockResult{
		Campaign:          *campaign,
		FinalBracket:      bracket,
		CommittedQuantity: committed,
		CommittedPledges:  pledgeCount,
	}, nil
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id snowflake.ID, forUpdate bool) (*campaigndomain.Campaign, error) {
	lock := ""
	if forUpdate {
		lock = pkgdb.ForUpdate(tx)
	}

	var campaign campaigndomain.Campaign
	err := tx.WithContext(ctx).Raw(
		`SELECT id, supplier_org_id, title, slug, status, final_bracket_id, locked_at, created_at, updated_at
		 FROM campaigns
		 WHERE id = ?`+lock,
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

func (s *Service) listBrackets(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) ([]bracketdomain.DiscountBracket, error) {
	var brackets []bracketdomain.DiscountBracket
	err := tx.WithContext(ctx).Raw(
		`SELECT id, campaign_id, min_quantity, max_quantity, unit_price_cents, bracket_order, created_at, updated_at
		 FROM discount_brackets
		 WHERE campaign_id = ?
		 ORDER BY bracket_order`,
		campaignID,
	).Scan(&brackets).Error
	if err != nil {
		return nil, err
	}
	return brackets, nil
}

func (s *Service) aggregateNonWithdrawn(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) (int64, int, error) {
	var row struct {
		Total int64
		Count int
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0) AS total, COUNT(1) AS count
		 FROM pledges
		 WHERE campaign_id = ? AND status != ?`,
		campaignID,
		pledgedomain.PledgeStatusWithdrawn,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

func (s *Service) aggregateCommitted(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) (int64, int, error) {
	var row struct {
		Total int64
		Count int
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0) AS total, COUNT(1) AS count
		 FROM pledges
		 WHERE campaign_id = ? AND status = ?`,
		campaignID,
		pledgedomain.PledgeStatusCommitted,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, campaign *campaigndomain.Campaign, extra map[string]any) {
	if s.auditSvc == nil || campaign == nil {
		return
	}
	metadata := map[string]any{
		"supplier_org_id": campaign.SupplierOrgID.String(),
		"status":          string(campaign.Status),
		"slug":            campaign.Slug,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := campaign.ID.String()
	orgID := campaign.SupplierOrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "campaign", &targetID, metadata)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
