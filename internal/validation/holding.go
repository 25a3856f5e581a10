package validation

import (
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/rebalance"
)

// ValidateHoldingDraft validates a new holding.
func ValidateHoldingDraft(d domain.HoldingDraft) error {
	errs := make(map[string]string)
	validateName(errs, d.Name)
	if d.Quantity.IsNegative() {
		errs["quantity"] = "quantity cannot be negative"
	}
	if !d.PurchasePrice.IsPositive() {
		errs["purchasePrice"] = "purchase price must be greater than 0"
	}
	if !d.CurrentPrice.IsPositive() {
		errs["currentPrice"] = "current price must be greater than 0"
	}
	return fieldErrors(errs)
}

// ValidateHoldingPatch validates only the fields a patch sets.
func ValidateHoldingPatch(p domain.HoldingPatch) error {
	errs := make(map[string]string)
	if p.Name != nil {
		validateName(errs, *p.Name)
	}
	if p.Quantity != nil && p.Quantity.IsNegative() {
		errs["quantity"] = "quantity cannot be negative"
	}
	if p.PurchasePrice != nil && !p.PurchasePrice.IsPositive() {
		errs["purchasePrice"] = "purchase price must be greater than 0"
	}
	if p.CurrentPrice != nil && !p.CurrentPrice.IsPositive() {
		errs["currentPrice"] = "current price must be greater than 0"
	}
	return fieldErrors(errs)
}

// ValidateOptions checks rebalancing options.
func ValidateOptions(o rebalance.Options) error {
	errs := make(map[string]string)
	if !o.MinimumUnit.IsPositive() {
		errs["minimumUnit"] = "minimum trading unit must be greater than 0"
	}
	if o.Threshold.IsNegative() {
		errs["threshold"] = "threshold cannot be negative"
	}
	if o.Commission.IsNegative() {
		errs["commission"] = "commission cannot be negative"
	}
	switch o.Rounding {
	case "", rebalance.RoundNearest, rebalance.RoundDown:
	default:
		errs["rounding"] = "rounding must be nearest or down"
	}
	for key, price := range o.ReferencePrices {
		if !price.IsPositive() {
			errs["referencePrices."+key] = "reference price must be greater than 0"
		}
	}
	return fieldErrors(errs)
}
