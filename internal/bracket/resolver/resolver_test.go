package resolver

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
)

func tieredBrackets(t *testing.T) []bracketdomain.DiscountBracket {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	campaignID := node.Generate()

	max49 := int64(49)
	max99 := int64(99)
	return []bracketdomain.DiscountBracket{
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 0, MaxQuantity: &max49, UnitPriceCents: 10000, BracketOrder: 0},
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 50, MaxQuantity: &max99, UnitPriceCents: 9000, BracketOrder: 1},
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 100, MaxQuantity: nil, UnitPriceCents: 8000, BracketOrder: 2},
	}
}

func TestResolveTiers(t *testing.T) {
	brackets := tieredBrackets(t)

	tests := []struct {
		quantity  int64
		wantPrice int64
	}{
		{0, 10000},
		{1, 10000},
		{49, 10000},
		{50, 9000},
		{99, 9000},
		{100, 8000},
		{120, 8000},
		{100000, 8000},
	}
	for _, tt := range tests {
		bracket, err := Resolve(brackets, tt.quantity)
		if err != nil {
			t.Fatalf("resolve %d: %v", tt.quantity, err)
		}
		if bracket.UnitPriceCents != tt.wantPrice {
			t.Fatalf("quantity %d: expected unit price %d, got %d", tt.quantity, tt.wantPrice, bracket.UnitPriceCents)
		}
	}
}

func TestResolveBoundsAreInclusive(t *testing.T) {
	brackets := tieredBrackets(t)

	upper, err := Resolve(brackets, 49)
	if err != nil {
		t.Fatalf("resolve upper bound: %v", err)
	}
	lower, err := Resolve(brackets, 50)
	if err != nil {
		t.Fatalf("resolve lower bound: %v", err)
	}
	if upper.BracketOrder != 0 || lower.BracketOrder != 1 {
		t.Fatalf("expected tiers 0 and 1 at the 49/50 boundary, got %d and %d", upper.BracketOrder, lower.BracketOrder)
	}
}

func TestResolveEmpty(t *testing.T) {
	if _, err := Resolve(nil, 10); !errors.Is(err, bracketdomain.ErrNoPricing) {
		t.Fatalf("expected ErrNoPricing, got %v", err)
	}
}

func TestResolveFallsBackToFirstTier(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	campaignID := node.Generate()
	max20 := int64(20)

	// No tier covers quantities below 10.
	brackets := []bracketdomain.DiscountBracket{
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 10, MaxQuantity: &max20, UnitPriceCents: 5000, BracketOrder: 0},
		{ID: node.Generate(), CampaignID: campaignID, MinQuantity: 21, MaxQuantity: nil, UnitPriceCents: 4000, BracketOrder: 1},
	}

	bracket, err := Resolve(brackets, 5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bracket.BracketOrder != 0 {
		t.Fatalf("expected fallback to first tier, got order %d", bracket.BracketOrder)
	}
}

func TestResolveIgnoresInputOrder(t *testing.T) {
	brackets := tieredBrackets(t)
	shuffled := []bracketdomain.DiscountBracket{brackets[2], brackets[0], brackets[1]}

	bracket, err := Resolve(shuffled, 75)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bracket.UnitPriceCents != 9000 {
		t.Fatalf("expected middle tier at 9000, got %d", bracket.UnitPriceCents)
	}
}

func TestNext(t *testing.T) {
	brackets := tieredBrackets(t)

	first, err := Resolve(brackets, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	next := Next(brackets, first)
	if next == nil || next.UnitPriceCents != 9000 {
		t.Fatalf("expected next tier at 9000, got %+v", next)
	}

	last, err := Resolve(brackets, 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if Next(brackets, last) != nil {
		t.Fatalf("expected no tier after the unbounded one")
	}

	if Next(brackets, nil) != nil {
		t.Fatalf("expected nil for nil current bracket")
	}
}

func TestUnitPriceFor(t *testing.T) {
	brackets := tieredBrackets(t)

	price, err := UnitPriceFor(brackets, 120)
	if err != nil {
		t.Fatalf("unit price: %v", err)
	}
	if price != 8000 {
		t.Fatalf("expected 8000, got %d", price)
	}

	// A 30-unit pledge priced at the top tier bills 240000 cents.
	if subtotal := price * 30; subtotal != 240000 {
		t.Fatalf("expected subtotal 240000, got %d", subtotal)
	}
}
