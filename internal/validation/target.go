package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
)

const maxNameLength = 100

// ValidateTargetWeights checks that every weight is within [0,100], that no matching key
// repeats, and that the weights sum to 100 within tolerance.
func ValidateTargetWeights(positions []domain.TargetPosition, tolerance decimal.Decimal) error {
	errs := make(map[string]string)
	if len(positions) == 0 {
		errs["positions"] = "at least one position is required"
		return fieldErrors(errs)
	}

	seen := make(map[string]int, len(positions))
	for i, p := range positions {
		field := fmt.Sprintf("positions[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			errs[field+".name"] = "name is required"
		}
		if p.TargetWeight.IsNegative() || p.TargetWeight.GreaterThan(domain.Hundred()) {
			errs[field+".targetWeight"] = "target weight must be between 0 and 100"
		}
		key := p.MatchKey()
		if key == "" {
			continue
		}
		if j, dup := seen[key]; dup {
			errs[field] = fmt.Sprintf("duplicates positions[%d]", j)
			continue
		}
		seen[key] = i
	}

	total := domain.SumWeights(positions)
	if total.Sub(domain.Hundred()).Abs().GreaterThan(tolerance) {
		errs["totalWeight"] = fmt.Sprintf("target weights must equal 100%% (got %s%%)", domain.Display(total))
	}
	return fieldErrors(errs)
}

// ValidateTargetDraft validates a new target allocation.
func ValidateTargetDraft(d domain.TargetDraft, tolerance decimal.Decimal) error {
	errs := make(map[string]string)
	validateName(errs, d.Name)
	if err := ValidateTargetWeights(d.Positions, tolerance); err != nil {
		mergeInto(errs, err)
	}
	return fieldErrors(errs)
}

// ValidateTargetPatch validates only the fields a patch sets.
func ValidateTargetPatch(p domain.TargetPatch, tolerance decimal.Decimal) error {
	errs := make(map[string]string)
	if p.Name != nil {
		validateName(errs, *p.Name)
	}
	if p.Positions != nil {
		if err := ValidateTargetWeights(p.Positions, tolerance); err != nil {
			mergeInto(errs, err)
		}
	}
	return fieldErrors(errs)
}

func validateName(errs map[string]string, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		errs["name"] = "name is required"
	case len(name) > maxNameLength:
		errs["name"] = fmt.Sprintf("name must be %d characters or less", maxNameLength)
	}
}

func mergeInto(errs map[string]string, err error) {
	verr, ok := err.(*Error)
	if !ok {
		errs["error"] = err.Error()
		return
	}
	for k, v := range verr.Fields {
		errs[k] = v
	}
}
