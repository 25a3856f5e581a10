// Package valuation turns raw holdings into valued, weighted positions.
// All functions are pure and assume validated input.
package valuation

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
)

// Value returns qty × price.
func Value(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}

// Weight returns the share of positionValue in portfolioValue as a percentage.
// An empty portfolio has zero weight everywhere.
func Weight(positionValue, portfolioValue decimal.Decimal) decimal.Decimal {
	return domain.Percent(positionValue, portfolioValue)
}

// ProfitLoss computes the gain or loss of holding qty units bought at purchasePrice.
func ProfitLoss(qty, purchasePrice, currentPrice decimal.Decimal) domain.ProfitLossResult {
	costBasis := Value(qty, purchasePrice)
	currentValue := Value(qty, currentPrice)
	change := currentValue.Sub(costBasis)
	return domain.ProfitLossResult{
		CostBasis:        costBasis,
		CurrentValue:     currentValue,
		AbsoluteChange:   change,
		PercentageChange: domain.Percent(change, costBasis),
	}
}

// WeightDifference returns current − target in percentage points. Positive means overweight.
func WeightDifference(currentWeight, targetWeight decimal.Decimal) decimal.Decimal {
	return currentWeight.Sub(targetWeight)
}

// IsRebalancingNeeded reports whether a weight difference exceeds the threshold.
func IsRebalancingNeeded(difference, threshold decimal.Decimal) bool {
	return difference.Abs().GreaterThan(threshold)
}

// ValueHolding derives the valuation of a single holding. Weight is left at zero;
// Summarize fills it relative to the whole portfolio.
func ValueHolding(h domain.Holding) domain.ValuedHolding {
	pl := ProfitLoss(h.Quantity, h.PurchasePrice, h.CurrentPrice)
	return domain.ValuedHolding{
		Holding:           h,
		TotalValue:        pl.CurrentValue,
		CostBasis:         pl.CostBasis,
		ProfitLoss:        pl.AbsoluteChange,
		ProfitLossPercent: pl.PercentageChange,
	}
}

// Summarize values every holding, preserving order, and aggregates the totals.
func Summarize(holdings []domain.Holding) domain.PortfolioSummary {
	valued := lo.Map(holdings, func(h domain.Holding, _ int) domain.ValuedHolding {
		return ValueHolding(h)
	})

	totalValue := lo.Reduce(valued, func(acc decimal.Decimal, v domain.ValuedHolding, _ int) decimal.Decimal {
		return acc.Add(v.TotalValue)
	}, decimal.Zero)
	totalCost := lo.Reduce(valued, func(acc decimal.Decimal, v domain.ValuedHolding, _ int) decimal.Decimal {
		return acc.Add(v.CostBasis)
	}, decimal.Zero)

	for i := range valued {
		valued[i].Weight = Weight(valued[i].TotalValue, totalValue)
	}

	totalPL := totalValue.Sub(totalCost)
	return domain.PortfolioSummary{
		TotalValue:             totalValue,
		TotalCost:              totalCost,
		TotalProfitLoss:        totalPL,
		TotalProfitLossPercent: domain.Percent(totalPL, totalCost),
		Holdings:               valued,
	}
}
