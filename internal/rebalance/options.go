package rebalance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding selects how a raw quantity change is snapped to the minimum trading unit.
type Rounding string

const (
	// RoundNearest rounds to the nearest multiple of the unit, halves away from zero.
	RoundNearest Rounding = "nearest"
	// RoundDown truncates toward zero, so a trade never overshoots its target.
	RoundDown Rounding = "down"
)

// ParseRounding maps a config string to a Rounding, defaulting to RoundNearest.
func ParseRounding(s string) Rounding {
	if Rounding(strings.ToLower(strings.TrimSpace(s))) == RoundDown {
		return RoundDown
	}
	return RoundNearest
}

// Valid reports whether r names a supported rounding mode.
func (r Rounding) Valid() bool {
	return r == RoundNearest || r == RoundDown
}

// Options tunes a rebalancing calculation.
type Options struct {
	// MinimumUnit is the smallest tradable quantity step. Must be > 0.
	MinimumUnit decimal.Decimal `json:"minimumUnit"`
	// Threshold is the weight difference in percentage points tolerated before trading.
	Threshold decimal.Decimal `json:"threshold"`
	// Commission is charged per unit traded.
	Commission         decimal.Decimal `json:"commission"`
	ConsiderCommission bool            `json:"considerCommission"`
	AllowFractional    bool            `json:"allowFractional"`
	Rounding           Rounding        `json:"rounding"`
	// ReferencePrices prices target positions that are not held yet, keyed by domain.MatchKey.
	ReferencePrices map[string]decimal.Decimal `json:"referencePrices,omitempty"`
	// IncludeUntargeted adds held positions missing from the target as zero-weight sells.
	IncludeUntargeted bool `json:"includeUntargeted"`
}

// DefaultOptions returns whole-share trading with a 5 point threshold and no commission.
func DefaultOptions() Options {
	return Options{
		MinimumUnit: decimal.NewFromInt(1),
		Threshold:   decimal.NewFromInt(5),
		Commission:  decimal.Zero,
		Rounding:    RoundNearest,
	}
}

// tradingUnit returns the effective unit: whole and at least 1 unless fractions are allowed.
func (o Options) tradingUnit() decimal.Decimal {
	unit := o.MinimumUnit
	if !unit.IsPositive() {
		unit = decimal.NewFromInt(1)
	}
	if !o.AllowFractional {
		unit = decimal.Max(unit.Ceil(), decimal.NewFromInt(1))
	}
	return unit
}

// adjustQuantity snaps qty to a whole multiple of unit using the given rounding.
func adjustQuantity(qty, unit decimal.Decimal, mode Rounding) decimal.Decimal {
	if unit.IsZero() {
		return qty
	}
	steps := qty.Div(unit)
	switch mode {
	case RoundDown:
		steps = steps.Truncate(0)
	default:
		steps = steps.Round(0)
	}
	return steps.Mul(unit)
}
