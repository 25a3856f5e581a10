// Package export writes rebalancing trade plans to spreadsheets.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/analytics"
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/rebalance"
)

// Sheet names used by every writer.
const (
	PlanSheet    = "PLAN"
	SummarySheet = "SUMMARY"
)

// Plan is a trade plan together with the portfolio it was computed from.
type Plan struct {
	Target      domain.TargetAllocation
	Summary     domain.PortfolioSummary
	Result      rebalance.Result
	GeneratedAt time.Time
}

// Writer writes a plan to one spreadsheet destination.
type Writer interface {
	Write(ctx context.Context, plan Plan) error
}

// Service fans a plan out to every configured writer.
type Service struct {
	writers []Writer
}

// NewService creates a new export Service.
func NewService(writers ...Writer) *Service {
	return &Service{writers: writers}
}

// Export writes plan to every writer. A failing writer does not stop the others.
func (s *Service) Export(ctx context.Context, plan Plan) error {
	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, plan); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", w, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("exported trade plan", "target", plan.Target.Name, "writers", len(s.writers),
		"trades", plan.Result.Totals.TotalTrades)
	return nil
}

// planHeader lists the PLAN sheet columns.
var planHeader = []any{
	"Position", "Ticker", "Action", "Current Weight %", "Target Weight %", "Difference pp",
	"Current Qty", "Price", "Trade Qty", "Trade Value", "Commission", "Net Value", "Recommendation",
}

// BuildPlanRows builds the PLAN sheet: a header and one row per calculation.
func BuildPlanRows(plan Plan) [][]any {
	data := make([][]any, 0, len(plan.Result.Calculations)+1)
	data = append(data, planHeader)
	return append(data, lo.Map(plan.Result.Calculations, func(c rebalance.Calculation, _ int) []any {
		return []any{
			c.Name,
			c.Ticker,
			string(c.Action),
			toFloat(c.CurrentWeight.Round(2)),
			toFloat(c.TargetWeight.Round(2)),
			toFloat(c.Difference.Round(2)),
			toFloat(c.CurrentQuantity),
			priceCell(c),
			toFloat(c.AdjustedQuantityChange),
			toFloat(c.AdjustedValueChange.Round(2)),
			toFloat(c.Commission.Round(2)),
			toFloat(c.NetValueChange.Round(2)),
			analytics.Recommend(c),
		}
	})...)
}

// BuildSummaryRows builds the SUMMARY sheet as label/value pairs.
func BuildSummaryRows(plan Plan) [][]any {
	t := plan.Result.Totals
	return [][]any{
		{"Field", "Value"},
		{"Target", plan.Target.Name},
		{"Generated At", plan.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Total Value", toFloat(plan.Summary.TotalValue.Round(2))},
		{"Total Cost", toFloat(plan.Summary.TotalCost.Round(2))},
		{"Total P/L", toFloat(plan.Summary.TotalProfitLoss.Round(2))},
		{"Total P/L %", toFloat(plan.Summary.TotalProfitLossPercent.Round(2))},
		{"Trades", t.TotalTrades},
		{"Buys", t.BuyCount},
		{"Sells", t.SellCount},
		{"Buy Value", toFloat(t.TotalBuyValue.Round(2))},
		{"Sell Value", toFloat(t.TotalSellValue.Round(2))},
		{"Commission", toFloat(t.TotalCommission.Round(2))},
		{"Net Cash Flow", toFloat(t.NetCashFlow.Round(2))},
		{"Balanced", plan.Result.IsBalanced},
	}
}

// priceCell leaves the cell empty when no price was known for the position.
func priceCell(c rebalance.Calculation) any {
	if c.MissingPrice {
		return nil
	}
	return toFloat(c.Price)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
