package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	pledgeservice "github.com/groupcart/groupcart/internal/pledge/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// bracketStub serves brackets straight from the table, without the draft
// state validation the real service performs.
type bracketStub struct {
	db *gorm.DB
}

func (b *bracketStub) Create(ctx context.Context, req bracketdomain.CreateRequest) (*bracketdomain.DiscountBracket, error) {
	return nil, errors.New("not implemented")
}

func (b *bracketStub) ListByCampaign(ctx context.Context, campaignID snowflake.ID) ([]bracketdomain.DiscountBracket, error) {
	var brackets []bracketdomain.DiscountBracket
	err := b.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("bracket_order").
		Find(&brackets).Error
	return brackets, err
}

func setupCampaignService(t *testing.T) (campaigndomain.Service, pledgedomain.Service, *gorm.DB, *snowflake.Node) {
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
		&campaigndomain.Campaign{},
		&bracketdomain.DiscountBracket{},
		&pledgedomain.Pledge{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	pledgeSvc := pledgeservice.NewService(pledgeservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	campaignSvc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		PledgeSvc:  pledgeSvc,
		BracketSvc: &bracketStub{db: db},
	})
	return campaignSvc, pledgeSvc, db, node
}

func seedBrackets(t *testing.T, db *gorm.DB, node *snowflake.Node, campaignID snowflake.ID) {
	t.Helper()
	max49 := int64(49)
	max99 := int64(99)
	brackets := []bracketdomain.DiscountBracket{
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 0, MaxQuantity: &max49, UnitPriceCents: 10000, BracketOrder: 0},
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 50, MaxQuantity: &max99, UnitPriceCents: 9000, BracketOrder: 1},
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 100, MaxQuantity: nil, UnitPriceCents: 8000, BracketOrder: 2},
	}
	for i := range brackets {
		brackets[i].CreatedAt = time.Now().UTC()
		brackets[i].UpdatedAt = brackets[i].CreatedAt
		if err := db.Create(&brackets[i]).Error; err != nil {
			t.Fatalf("seed bracket: %v", err)
		}
	}
}

func openCampaign(t *testing.T, svc campaigndomain.Service, node *snowflake.Node) *campaigndomain.Campaign {
	t.Helper()
	campaign, err := svc.Create(context.Background(), campaigndomain.CreateRequest{
		SupplierOrgID: node.Generate().String(),
		Title:         "Standing desks Q3",
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	opened, err := svc.Open(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("open campaign: %v", err)
	}
	return opened
}

func TestCampaignLifecycle(t *testing.T) {
	svc, _, _, node := setupCampaignService(t)

	campaign, err := svc.Create(context.Background(), campaigndomain.CreateRequest{
		SupplierOrgID: node.Generate().String(),
		Title:         "Standing desks Q3",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if campaign.Status != campaigndomain.CampaignStatusDraft {
		t.Fatalf("expected DRAFT, got %s", campaign.Status)
	}
	if campaign.Slug == "" {
		t.Fatalf("expected slug to be generated")
	}

	opened, err := svc.Open(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Status != campaigndomain.CampaignStatusOpen {
		t.Fatalf("expected OPEN, got %s", opened.Status)
	}

	// Opening twice is rejected.
	if _, err := svc.Open(context.Background(), campaign.ID.String()); !errors.Is(err, campaigndomain.ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
}

func TestLockResolvesFinalBracketAndCommitsPledges(t *testing.T) {
	svc, pledgeSvc, db, node := setupCampaignService(t)
	campaign := openCampaign(t, svc, node)
	seedBrackets(t, db, node, campaign.ID)

	for _, quantity := range []int64{30, 90} {
		if _, err := pledgeSvc.Create(context.Background(), pledgedomain.CreateRequest{
			CampaignID: campaign.ID.String(),
			BuyerOrgID: node.Generate().String(),
			Quantity:   quantity,
		}); err != nil {
			t.Fatalf("pledge %d: %v", quantity, err)
		}
	}

	result, err := svc.Lock(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if result.Campaign.Status != campaigndomain.CampaignStatusLocked {
		t.Fatalf("expected LOCKED, got %s", result.Campaign.Status)
	}
	if result.CommittedQuantity != 120 {
		t.Fatalf("expected committed quantity 120, got %d", result.CommittedQuantity)
	}
	if result.FinalBracket.UnitPriceCents != 8000 {
		t.Fatalf("expected final price 8000, got %d", result.FinalBracket.UnitPriceCents)
	}
	if result.CommittedPledges != 2 {
		t.Fatalf("expected 2 committed pledges, got %d", result.CommittedPledges)
	}

	pledges, err := pledgeSvc.FindCommittedPledges(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("find committed: %v", err)
	}
	if len(pledges) != 2 {
		t.Fatalf("expected 2 COMMITTED pledges, got %d", len(pledges))
	}
}

func TestLockIsIdempotent(t *testing.T) {
	svc, pledgeSvc, db, node := setupCampaignService(t)
	campaign := openCampaign(t, svc, node)
	seedBrackets(t, db, node, campaign.ID)

	if _, err := pledgeSvc.Create(context.Background(), pledgedomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		BuyerOrgID: node.Generate().String(),
		Quantity:   75,
	}); err != nil {
		t.Fatalf("pledge: %v", err)
	}

	first, err := svc.Lock(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	second, err := svc.Lock(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}

	if first.FinalBracket.ID != second.FinalBracket.ID {
		t.Fatalf("relock changed final bracket: %s vs %s", first.FinalBracket.ID, second.FinalBracket.ID)
	}
	if first.CommittedQuantity != second.CommittedQuantity {
		t.Fatalf("relock changed committed quantity: %d vs %d", first.CommittedQuantity, second.CommittedQuantity)
	}
}

func TestLockRequiresOpenCampaignWithBrackets(t *testing.T) {
	svc, _, _, node := setupCampaignService(t)

	draft, err := svc.Create(context.Background(), campaigndomain.CreateRequest{
		SupplierOrgID: node.Generate().String(),
		Title:         "Draft only",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Lock(context.Background(), draft.ID.String()); !errors.Is(err, campaigndomain.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}

	open := openCampaign(t, svc, node)
	if _, err := svc.Lock(context.Background(), open.ID.String()); !errors.Is(err, campaigndomain.ErrNoBrackets) {
		t.Fatalf("expected ErrNoBrackets, got %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), open.ID.String())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Lock(context.Background(), cancelled.ID.String()); !errors.Is(err, campaigndomain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestQuoteTracksLiveAggregate(t *testing.T) {
	svc, pledgeSvc, db, node := setupCampaignService(t)
	campaign := openCampaign(t, svc, node)
	seedBrackets(t, db, node, campaign.ID)

	quote, err := svc.Quote(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("quote empty: %v", err)
	}
	if quote.UnitPriceCents != 10000 {
		t.Fatalf("expected first tier price 10000, got %d", quote.UnitPriceCents)
	}
	if quote.NextBracket == nil || quote.NextBracket.UnitPriceCents != 9000 {
		t.Fatalf("expected next tier at 9000, got %+v", quote.NextBracket)
	}

	if _, err := pledgeSvc.Create(context.Background(), pledgedomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		BuyerOrgID: node.Generate().String(),
		Quantity:   60,
	}); err != nil {
		t.Fatalf("pledge: %v", err)
	}

	quote, err = svc.Quote(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("quote after pledge: %v", err)
	}
	if quote.CommittedQuantity != 60 {
		t.Fatalf("expected committed quantity 60, got %d", quote.CommittedQuantity)
	}
	if quote.UnitPriceCents != 9000 {
		t.Fatalf("expected middle tier price 9000, got %d", quote.UnitPriceCents)
	}
}
