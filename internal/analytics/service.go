// Package analytics scores a valued portfolio. The scores are heuristics meant for
// guidance, not statistical risk models.
package analytics

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/rebalance"
)

// Severity grades how far a position is from its target weight.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var (
	highSeverityBound = decimal.NewFromInt(10)

	diversificationWeight = decimal.RequireFromString("0.4")
	performanceWeight     = decimal.RequireFromString("0.3")
	riskWeight            = decimal.RequireFromString("0.3")
	neutralPerformance    = decimal.NewFromInt(50)
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// ClassifySeverity maps a weight difference to a severity.
func ClassifySeverity(difference decimal.Decimal) Severity {
	abs := difference.Abs()
	switch {
	case abs.GreaterThan(highSeverityBound):
		return SeverityHigh
	case abs.GreaterThan(rebalance.SignificantDifference):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RiskMetrics are concentration-based risk indicators.
type RiskMetrics struct {
	Concentration        decimal.Decimal `json:"concentration"`
	Volatility           decimal.Decimal `json:"volatility"`
	DiversificationRatio decimal.Decimal `json:"diversificationRatio"`
}

// Performer identifies a holding by its return.
type Performer struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Ticker            string          `json:"ticker,omitempty"`
	ProfitLossPercent decimal.Decimal `json:"profitLossPercent"`
}

// Performance summarizes holding returns. Top and Worst are nil for an empty portfolio.
type Performance struct {
	Top     *Performer      `json:"top,omitempty"`
	Worst   *Performer      `json:"worst,omitempty"`
	WinRate decimal.Decimal `json:"winRate"`
}

// Imbalance is a position whose weight is outside the trading threshold.
type Imbalance struct {
	Key            string           `json:"key"`
	Name           string           `json:"name"`
	Ticker         string           `json:"ticker,omitempty"`
	CurrentWeight  decimal.Decimal  `json:"currentWeight"`
	TargetWeight   decimal.Decimal  `json:"targetWeight"`
	Difference     decimal.Decimal  `json:"difference"`
	Action         rebalance.Action `json:"action"`
	Severity       Severity         `json:"severity"`
	Recommendation string           `json:"recommendation"`
}

// Report bundles every analytic for one portfolio.
type Report struct {
	TotalValue           decimal.Decimal   `json:"totalValue"`
	HoldingCount         int               `json:"holdingCount"`
	DiversificationScore decimal.Decimal   `json:"diversificationScore"`
	Risk                 RiskMetrics       `json:"risk"`
	Performance          Performance       `json:"performance"`
	HealthScore          decimal.Decimal   `json:"healthScore"`
	Imbalances           []Imbalance       `json:"imbalances"`
	Rebalance            *rebalance.Result `json:"rebalance,omitempty"`
}

// Analyze scores summary. When target is non-nil the report also carries the trade
// plan and the imbalances derived from it.
func Analyze(summary domain.PortfolioSummary, target *domain.TargetAllocation, opts rebalance.Options) Report {
	report := Report{
		TotalValue:           summary.TotalValue,
		HoldingCount:         len(summary.Holdings),
		DiversificationScore: DiversificationScore(summary),
		Risk:                 Risk(summary),
		Performance:          Evaluate(summary),
		HealthScore:          HealthScore(summary),
		Imbalances:           []Imbalance{},
	}
	if target != nil {
		plan := rebalance.Calculate(summary, *target, opts)
		report.Rebalance = &plan
		report.Imbalances = Imbalances(plan)
	}
	return report
}

func weights(summary domain.PortfolioSummary) []decimal.Decimal {
	return lo.Map(summary.Holdings, func(h domain.ValuedHolding, _ int) decimal.Decimal { return h.Weight })
}

// DiversificationScore is 100 − 2 × mean(|w − 100/n|), floored at 0.
// A perfectly equal-weighted portfolio scores 100.
func DiversificationScore(summary domain.PortfolioSummary) decimal.Decimal {
	n := len(summary.Holdings)
	if n == 0 {
		return decimal.Zero
	}
	ideal := domain.Hundred().Div(decimal.NewFromInt(int64(n)))
	mad := MeanAbsDeviation(weights(summary), ideal)
	return decimal.Max(decimal.Zero, domain.Hundred().Sub(mad.Mul(decimal.NewFromInt(2))))
}

// Risk computes concentration, volatility and the diversification ratio.
func Risk(summary domain.PortfolioSummary) RiskMetrics {
	concentration := Max(weights(summary))
	returns := lo.Map(summary.Holdings, func(h domain.ValuedHolding, _ int) decimal.Decimal {
		return h.ProfitLossPercent
	})

	ratio := decimal.Zero
	if concentration.IsPositive() {
		ratio = domain.Hundred().Div(concentration)
	}
	return RiskMetrics{
		Concentration:        concentration,
		Volatility:           PopulationStdDev(returns),
		DiversificationRatio: ratio,
	}
}

// Evaluate finds the best and worst performers and the share of winning holdings.
// Ties keep the earliest holding.
func Evaluate(summary domain.PortfolioSummary) Performance {
	if len(summary.Holdings) == 0 {
		return Performance{WinRate: decimal.Zero}
	}

	top, worst := summary.Holdings[0], summary.Holdings[0]
	for _, h := range summary.Holdings[1:] {
		if h.ProfitLossPercent.GreaterThan(top.ProfitLossPercent) {
			top = h
		}
		if h.ProfitLossPercent.LessThan(worst.ProfitLossPercent) {
			worst = h
		}
	}

	winners := lo.CountBy(summary.Holdings, func(h domain.ValuedHolding) bool { return h.ProfitLoss.IsPositive() })
	return Performance{
		Top:     performer(top),
		Worst:   performer(worst),
		WinRate: domain.Percent(decimal.NewFromInt(int64(winners)), decimal.NewFromInt(int64(len(summary.Holdings)))),
	}
}

func performer(h domain.ValuedHolding) *Performer {
	return &Performer{ID: h.ID, Name: h.Name, Ticker: h.Ticker, ProfitLossPercent: h.ProfitLossPercent}
}

// HealthScore blends diversification (40%), performance (30%) and concentration
// risk (30%), each clamped to [0,100]. An empty portfolio scores 0.
func HealthScore(summary domain.PortfolioSummary) decimal.Decimal {
	if len(summary.Holdings) == 0 {
		return decimal.Zero
	}
	diversification := domain.ClampPercent(DiversificationScore(summary))
	performance := domain.ClampPercent(neutralPerformance.Add(summary.TotalProfitLossPercent))
	risk := domain.ClampPercent(domain.Hundred().Sub(Risk(summary).Concentration))

	return diversification.Mul(diversificationWeight).
		Add(performance.Mul(performanceWeight)).
		Add(risk.Mul(riskWeight))
}

// Imbalances lists the positions of plan that need a trade, most severe first.
// Within a severity, larger gaps come first.
func Imbalances(plan rebalance.Result) []Imbalance {
	out := lo.FilterMap(plan.Calculations, func(c rebalance.Calculation, _ int) (Imbalance, bool) {
		if c.Action == rebalance.ActionHold {
			return Imbalance{}, false
		}
		return Imbalance{
			Key:            c.Key,
			Name:           c.Name,
			Ticker:         c.Ticker,
			CurrentWeight:  c.CurrentWeight,
			TargetWeight:   c.TargetWeight,
			Difference:     c.Difference,
			Action:         c.Action,
			Severity:       ClassifySeverity(c.Difference),
			Recommendation: Recommend(c),
		}, true
	})

	slices.SortStableFunc(out, func(a, b Imbalance) int {
		if r := cmp.Compare(b.Severity.rank(), a.Severity.rank()); r != 0 {
			return r
		}
		return b.Difference.Abs().Cmp(a.Difference.Abs())
	})
	return out
}

// Recommend phrases the trade for one calculation.
func Recommend(c rebalance.Calculation) string {
	label := c.Name
	if c.Ticker != "" {
		label = fmt.Sprintf("%s (%s)", c.Name, c.Ticker)
	}
	move := fmt.Sprintf("from %s%% to %s%%", domain.Display(c.CurrentWeight), domain.Display(c.TargetWeight))

	switch c.Action {
	case rebalance.ActionHold:
		return fmt.Sprintf("Hold %s; its weight is within the threshold", label)
	case rebalance.ActionBuy, rebalance.ActionSell:
	default:
		return ""
	}

	verb := "Buy"
	if c.Action == rebalance.ActionSell {
		verb = "Sell"
	}
	qty := c.AdjustedQuantityChange.Abs()
	if qty.IsZero() {
		if c.MissingPrice {
			return fmt.Sprintf("%s %s to move %s; no price is known to size the trade", verb, label, move)
		}
		return fmt.Sprintf("%s %s to move %s; the gap is smaller than one trading unit", verb, label, move)
	}
	return fmt.Sprintf("%s %s units of %s (about %s) to move %s",
		verb, domain.Display(qty), label, c.AdjustedValueChange.Abs().StringFixed(2), move)
}
