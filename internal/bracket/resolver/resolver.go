// Package resolver maps a pledged quantity to its discount bracket.
//
// Resolution is deterministic and side-effect-free. Callers recompute the
// committed-quantity aggregate immediately before resolving; the resolver
// itself never reads shared state.
package resolver

import (
	"sort"

	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
)

// Resolve returns the first bracket, in BracketOrder, whose inclusive range
// contains quantity. When no range matches (malformed tiers) the first
// bracket is returned; an empty list yields ErrNoPricing.
func Resolve(brackets []bracketdomain.DiscountBracket, quantity int64) (*bracketdomain.DiscountBracket, error) {
	if len(brackets) == 0 {
		return nil, bracketdomain.ErrNoPricing
	}

	sorted := sortedByOrder(brackets)
	for i := range sorted {
		if sorted[i].Contains(quantity) {
			return &sorted[i], nil
		}
	}

	// Malformed ranges or quantity below the floor: fall back to the
	// first tier rather than refusing to price a committed pledge.
	return &sorted[0], nil
}

// Next returns the tier immediately following current by list position, or
// nil when current is the last tier or absent.
func Next(brackets []bracketdomain.DiscountBracket, current *bracketdomain.DiscountBracket) *bracketdomain.DiscountBracket {
	if current == nil {
		return nil
	}
	sorted := sortedByOrder(brackets)
	for i := range sorted {
		if sorted[i].ID == current.ID {
			if i+1 < len(sorted) {
				return &sorted[i+1]
			}
			return nil
		}
	}
	return nil
}

// UnitPriceFor returns the unit price of the tier resolved for quantity.
func UnitPriceFor(brackets []bracketdomain.DiscountBracket, quantity int64) (int64, error) {
	bracket, err := Resolve(brackets, quantity)
	if err != nil {
		return 0, err
	}
	return bracket.UnitPriceCents, nil
}

func sortedByOrder(brackets []bracketdomain.DiscountBracket) []bracketdomain.DiscountBracket {
	sorted := make([]bracketdomain.DiscountBracket, len(brackets))
	copy(sorted, brackets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BracketOrder < sorted[j].BracketOrder
	})
	return sorted
}
