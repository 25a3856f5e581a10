package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// displayPrecision is the number of decimal places used for weights and percentages in output.
const displayPrecision = 4

var hundred = decimal.NewFromInt(100)

// Hundred returns the decimal 100.
func Hundred() decimal.Decimal { return hundred }

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SafeDiv divides a by b, returning zero when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// Percent returns part/whole×100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	return SafeDiv(part, whole).Mul(hundred)
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// ClampPercent bounds d to [0, 100].
func ClampPercent(d decimal.Decimal) decimal.Decimal {
	return Clamp(d, decimal.Zero, hundred)
}

// Display rounds a weight or percentage for presentation, stripping trailing zeros.
func Display(d decimal.Decimal) string {
	return d.Round(displayPrecision).String()
}

// MatchKey normalizes a ticker or, when the ticker is blank, a display name.
func MatchKey(ticker, name string) string {
	if t := NormalizeKey(ticker); t != "" {
		return t
	}
	return NormalizeKey(name)
}

// NormalizeKey trims and upper-cases a ticker or name for case-insensitive comparison.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
