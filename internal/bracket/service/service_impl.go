package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	pkgdb "github.com/groupcart/groupcart/pkg/db"
	"github.com/groupcart/groupcart/pkg/db/option"
	"github.com/groupcart/groupcart/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[bracketdomain.DiscountBracket]
}

func NewService(p Params) bracketdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("bracket.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[bracketdomain.DiscountBracket](p.DB),
	}
}

// Create appends one tier to a draft campaign. Tiers must be contiguous:
// the first starts at zero and each subsequent tier starts one unit above
// the previous bound. An unbounded tier closes the partition.
func (s *Service) Create(ctx context.Context, req bracketdomain.CreateRequest) (*bracketdomain.DiscountBracket, error) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(req.CampaignID))
	if err != nil {
		return nil, bracketdomain.ErrInvalidCampaign
	}
	if req.MinQuantity < 0 {
		return nil, bracketdomain.ErrInvalidQuantity
	}
	if req.UnitPriceCents <= 0 {
		return nil, bracketdomain.ErrInvalidUnitPrice
	}
	if req.MaxQuantity != nil && *req.MaxQuantity < req.MinQuantity {
		return nil, bracketdomain.ErrInvalidRange
	}

	var created *bracketdomain.DiscountBracket
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, err := s.lockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if status != campaigndomain.CampaignStatusDraft {
			return bracketdomain.ErrCampaignNotDraft
		}

		existing, err := s.listForUpdate(ctx, tx, campaignID)
		if err != nil {
			return err
		}

		order := 1
		if len(existing) == 0 {
			if req.MinQuantity != 0 {
				return bracketdomain.ErrFirstBracketNotZero
			}
		} else {
			last := existing[len(existing)-1]
			if last.MaxQuantity == nil {
				return bracketdomain.ErrUnboundedNotLast
			}
			if req.MinQuantity != *last.MaxQuantity+1 {
				return bracketdomain.ErrRangeGap
			}
			order = last.BracketOrder + 1
		}

		now := time.Now().UTC()
		bracket := bracketdomain.DiscountBracket{
			ID:             s.genID.Generate(),
			CampaignID:     campaignID,
			MinQuantity:    req.MinQuantity,
			MaxQuantity:    req.MaxQuantity,
			UnitPriceCents: req.UnitPriceCents,
			BracketOrder:   order,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.WithTrx(tx).Create(ctx, &bracket); err != nil {
			return err
		}
		created = &bracket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID snowflake.ID) ([]bracketdomain.DiscountBracket, error) {
	items, err := s.repo.Find(ctx,
		&bracketdomain.DiscountBracket{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{Field: "bracket_order", Allow: map[string]bool{"bracket_order": true}}),
	)
	if err != nil {
		return nil, err
	}

	brackets := make([]bracketdomain.DiscountBracket, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		brackets = append(brackets, *item)
	}
	return brackets, nil
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

func (s *Service) listForUpdate(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) ([]bracketdomain.DiscountBracket, error) {
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
