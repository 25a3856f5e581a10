package analytics

import (
	"log/slog"
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Mean calculates the arithmetic mean of a decimal slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(v)
	}, decimal.Zero)
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// MeanAbsDeviation returns the mean of |v − center|.
func MeanAbsDeviation(values []decimal.Decimal, center decimal.Decimal) decimal.Decimal {
	return Mean(lo.Map(values, func(v decimal.Decimal, _ int) decimal.Decimal {
		return v.Sub(center).Abs()
	}))
}

// PopulationVariance divides by n, not n−1: the holdings are the whole population.
func PopulationVariance(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	mean := Mean(values)
	sumSqDiff := lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		diff := v.Sub(mean)
		return acc.Add(diff.Mul(diff))
	}, decimal.Zero)
	return sumSqDiff.Div(decimal.NewFromInt(int64(len(values))))
}

// PopulationStdDev calculates the population standard deviation of a decimal slice.
func PopulationStdDev(values []decimal.Decimal) decimal.Decimal {
	v := PopulationVariance(values)
	f, exact := v.Float64()
	if !exact {
		slog.Debug("precision loss in PopulationStdDev float64 conversion", "variance", v.String())
	}
	return decimal.NewFromFloat(math.Sqrt(f))
}

// Max returns the largest value, or zero for an empty slice.
func Max(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Max(values[0], values[1:]...)
}
