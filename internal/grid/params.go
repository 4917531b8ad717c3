package grid

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Params tunes capital allocation and safety caps of the reducer.
type Params struct {
	// EquityUtilization share of equity spread over the target number of levels.
	EquityUtilization decimal.Decimal
	// BuyTriggerRatio minimal free quote, relative to the level size, to open a buy.
	BuyTriggerRatio decimal.Decimal
	// BuyClampRatio below this multiple of the level size a buy takes all safe quote.
	BuyClampRatio decimal.Decimal
	// SellClampRatio below this multiple of the level size a sell takes all free base.
	SellClampRatio decimal.Decimal
	// SafetyFraction share of equity never committed to buys.
	SafetyFraction decimal.Decimal
	// MinBaseUnit smallest tradable base amount, kept aside on clamped sells.
	MinBaseUnit decimal.Decimal
	// CancelThreshold cancellation engages above this number of orders per side.
	CancelThreshold int
	// MaxAnchorSteps cap on anchor steps per direction for a single trade.
	MaxAnchorSteps int
	// MaxCreatePasses cap on creation passes for a single action.
	MaxCreatePasses int
}

// DefaultParams returns production defaults.
func DefaultParams() Params {
	return Params{
		EquityUtilization: decimal.RequireFromString("0.95"),
		BuyTriggerRatio:   decimal.RequireFromString("0.95"),
		BuyClampRatio:     decimal.RequireFromString("1.95"),
		SellClampRatio:    decimal.RequireFromString("1.05"),
		SafetyFraction:    decimal.RequireFromString("0.2"),
		MinBaseUnit:       decimal.RequireFromString("0.0002"),
		CancelThreshold:   5,
		MaxAnchorSteps:    100,
		MaxCreatePasses:   20,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	one := decimal.NewFromInt(1)
	if !p.EquityUtilization.IsPositive() || p.EquityUtilization.GreaterThan(one) {
		return errors.Errorf("equity utilization must be in (0, 1], got %s", p.EquityUtilization.String())
	}
	if p.SafetyFraction.IsNegative() || p.SafetyFraction.GreaterThanOrEqual(one) {
		return errors.Errorf("safety fraction must be in [0, 1), got %s", p.SafetyFraction.String())
	}
	if p.MinBaseUnit.IsNegative() {
		return errors.Errorf("min base unit must not be negative, got %s", p.MinBaseUnit.String())
	}
	if !p.BuyTriggerRatio.IsPositive() || !p.BuyClampRatio.IsPositive() || !p.SellClampRatio.IsPositive() {
		return errors.New("ratios must be positive")
	}
	if p.CancelThreshold < 0 {
		return errors.Errorf("cancel threshold must not be negative, got %d", p.CancelThreshold)
	}
	if p.MaxAnchorSteps <= 0 || p.MaxCreatePasses <= 0 {
		return errors.New("runaway caps must be positive")
	}
	return nil
}
