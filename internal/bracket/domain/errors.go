package domain

import "errors"

var (
	ErrNoPricing          = errors.New("no_pricing_available")
	ErrNotFound           = errors.New("bracket_not_found")
	ErrInvalidCampaign    = errors.New("invalid_campaign")
	ErrInvalidQuantity    = errors.New("invalid_bracket_quantity")
	ErrInvalidUnitPrice   = errors.New("invalid_unit_price")
	ErrInvalidRange       = errors.New("invalid_bracket_range")
	ErrRangeGap           = errors.New("bracket_range_gap")
	ErrUnboundedNotLast   = errors.New("unbounded_bracket_not_last")
	ErrCampaignNotDraft   = errors.New("campaign_not_draft")
	ErrFirstBracketNotZero = errors.New("first_bracket_min_not_zero")
)
