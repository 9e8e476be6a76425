package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	obsmetrics "github.com/groupcart/groupcart/internal/observability/metrics"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	pkgdb "github.com/groupcart/groupcart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *obsmetrics.Metrics
}

func NewService(p Params) pledgedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pledge.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req pledgedomain.CreateRequest) (*pledgedomain.Pledge, error) {
	campaignID, err := parseID(req.CampaignID)
	if err != nil {
		return nil, campaigndomain.ErrInvalidID
	}
	buyerOrgID, err := parseID(req.BuyerOrgID)
	if err != nil {
		return nil, pledgedomain.ErrInvalidBuyer
	}
	if req.Quantity <= 0 {
		return nil, pledgedomain.ErrInvalidQuantity
	}

	var created *pledgedomain.Pledge
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, err := s.lockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if status != campaigndomain.CampaignStatusOpen {
			return pledgedomain.ErrCampaignNotOpen
		}

		// The partial-unique index on (campaign_id, buyer_org_id) over
		// non-withdrawn rows backstops this check under concurrency.
		var existingID snowflake.ID
		if err := tx.WithContext(ctx).Raw(
			`SELECT id
			 FROM pledges
			 WHERE campaign_id = ? AND buyer_org_id = ? AND status != ?
			 LIMIT 1`,
			campaignID,
			buyerOrgID,
			pledgedomain.PledgeStatusWithdrawn,
		).Scan(&existingID).Error; err != nil {
			return err
		}
		if existingID != 0 {
			return pledgedomain.ErrDuplicatePledge
		}

		now := time.Now().UTC()
		pledge := pledgedomain.Pledge{
			ID:         s.genID.Generate(),
			CampaignID: campaignID,
			BuyerOrgID: buyerOrgID,
			Quantity:   req.Quantity,
			Status:     pledgedomain.PledgeStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.WithContext(ctx).Create(&pledge).Error; err != nil {
			if pkgdb.IsUniqueViolation(err) {
				return pledgedomain.ErrDuplicatePledge
			}
			return err
		}
		created = &pledge
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPledge(ctx, "created")
	return created, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, pledgeID string, buyerOrgID string, quantity int64) (*pledgedomain.Pledge, error) {
	if quantity <= 0 {
		return nil, pledgedomain.ErrInvalidQuantity
	}
	return s.mutatePending(ctx, pledgeID, buyerOrgID, func(tx *gorm.DB, pledge *pledgedomain.Pledge) error {
		pledge.Quantity = quantity
		pledge.UpdatedAt = time.Now().UTC()
		return tx.WithContext(ctx).Exec(
			`UPDATE pledges SET quantity = ?, updated_at = ? WHERE id = ?`,
			pledge.Quantity,
			pledge.UpdatedAt,
			pledge.ID,
		).Error
	})
}

func (s *Service) Withdraw(ctx context.Context, pledgeID string, buyerOrgID string) (*pledgedomain.Pledge, error) {
	pledge, err := s.mutatePending(ctx, pledgeID, buyerOrgID, func(tx *gorm.DB, pledge *pledgedomain.Pledge) error {
		pledge.Status = pledgedomain.PledgeStatusWithdrawn
		pledge.UpdatedAt = time.Now().UTC()
		return tx.WithContext(ctx).Exec(
			`UPDATE pledges SET status = ?, updated_at = ? WHERE id = ?`,
			pledge.Status,
			pledge.UpdatedAt,
			pledge.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPledge(ctx, "withdrawn")
	return pledge, nil
}

func (s *Service) FindCommittedPledges(ctx context.Context, campaignID snowflake.ID) ([]pledgedomain.Pledge, error) {
	var pledges []pledgedomain.Pledge
	err := s.db.WithContext(ctx).Raw(
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

// CommittedQuantity sums non-withdrawn quantities. Read path for bracket
// quoting; callers resolve the bracket immediately after this aggregate.
func (s *Service) CommittedQuantity(ctx context.Context, campaignID snowflake.ID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM pledges
		 WHERE campaign_id = ? AND status != ?`,
		campaignID,
		pledgedomain.PledgeStatusWithdrawn,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) mutatePending(
	ctx context.Context,
	pledgeID string,
	buyerOrgID string,
	mutate func(tx *gorm.DB, pledge *pledgedomain.Pledge) error,
) (*pledgedomain.Pledge, error) {

	id, err := parseID(pledgeID)
	if err != nil {
		return nil, pledgedomain.ErrInvalidID
	}
	buyerID, err := parseID(buyerOrgID)
	if err != nil {
		return nil, pledgedomain.ErrInvalidBuyer
	}

	var mutated *pledgedomain.Pledge
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pledge, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if pledge == nil {
			return pledgedomain.ErrNotFound
		}
		if pledge.BuyerOrgID != buyerID {
			return pledgedomain.ErrOwnershipMismatch
		}
		if pledge.Status != pledgedomain.PledgeStatusPending {
			return pledgedomain.ErrNotPending
		}
		if err := mutate(tx, pledge); err != nil {
			return err
		}
		mutated = pledge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mutated, nil
}

func (s *Service) lockCampaign(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) (campaigndomain.CampaignStatus, error) {
	var row struct {
		ID     snowflake.ID
		Status campaigndomain.CampaignStatus
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT id, status
		 FROM campaigns
		 WHERE id = ?`+pkgdb.ForUpdate(tx),
		campaignID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if row.ID == 0 {
		return "", campaigndomain.ErrNotFound
	}
	return row.Status, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*pledgedomain.Pledge, error) {
	var pledge pledgedomain.Pledge
	err := tx.WithContext(ctx).Raw(
		`SELECT id, campaign_id, buyer_org_id, quantity, status, created_at, updated_at
		 FROM pledges
		 WHERE id = ?`+pkgdb.ForUpdate(tx),
		id,
	).Scan(&pledge).Error
	if err != nil {
		return nil, err
	}
	if pledge.ID == 0 {
		return nil, nil
	}
	return &pledge, nil
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
