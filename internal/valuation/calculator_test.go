package valuation

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleHoldings() []domain.Holding {
	return []domain.Holding{
		{ID: "1", Name: "Apple", Ticker: "AAPL", Quantity: d("10"), PurchasePrice: d("150"), CurrentPrice: d("175")},
		{ID: "2", Name: "Microsoft", Ticker: "MSFT", Quantity: d("5"), PurchasePrice: d("300"), CurrentPrice: d("330")},
	}
}

func TestValue(t *testing.T) {
	if got := Value(d("10"), d("175")); !got.Equal(d("1750")) {
		t.Errorf("Value = %s, want 1750", got)
	}
	if got := Value(d("0"), d("175")); !got.IsZero() {
		t.Errorf("Value with zero qty = %s, want 0", got)
	}
}

func TestWeight(t *testing.T) {
	tests := []struct {
		name            string
		position, total string
		want            string
	}{
		{"half", "500", "1000", "50"},
		{"full", "1000", "1000", "100"},
		{"empty portfolio", "0", "0", "0"},
		{"zero total nonzero position", "10", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Weight(d(tt.position), d(tt.total))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Weight(%s, %s) = %s, want %s", tt.position, tt.total, got, tt.want)
			}
		})
	}
}

func TestProfitLoss(t *testing.T) {
	pl := ProfitLoss(d("10"), d("150"), d("175"))
	if !pl.CostBasis.Equal(d("1500")) {
		t.Errorf("CostBasis = %s, want 1500", pl.CostBasis)
	}
	if !pl.CurrentValue.Equal(d("1750")) {
		t.Errorf("CurrentValue = %s, want 1750", pl.CurrentValue)
	}
	if !pl.AbsoluteChange.Equal(d("250")) {
		t.Errorf("AbsoluteChange = %s, want 250", pl.AbsoluteChange)
	}
	got, _ := pl.PercentageChange.Float64()
	if math.Abs(got-16.6667) > 0.001 {
		t.Errorf("PercentageChange = %f, want ~16.6667", got)
	}
}

func TestProfitLossZeroCostBasis(t *testing.T) {
	pl := ProfitLoss(d("0"), d("150"), d("175"))
	if !pl.PercentageChange.IsZero() {
		t.Errorf("PercentageChange = %s, want 0 for zero cost basis", pl.PercentageChange)
	}
}

func TestWeightDifference(t *testing.T) {
	if got := WeightDifference(d("60"), d("50")); !got.Equal(d("10")) {
		t.Errorf("WeightDifference(60, 50) = %s, want 10", got)
	}
	if got := WeightDifference(d("40"), d("50")); !got.Equal(d("-10")) {
		t.Errorf("WeightDifference(40, 50) = %s, want -10", got)
	}
}

func TestIsRebalancingNeeded(t *testing.T) {
	tests := []struct {
		diff, threshold string
		want            bool
	}{
		{"6", "5", true},
		{"3", "5", false},
		{"-6", "5", true},
		{"5", "5", false},
		{"0.01", "0", true},
	}

	for _, tt := range tests {
		if got := IsRebalancingNeeded(d(tt.diff), d(tt.threshold)); got != tt.want {
			t.Errorf("IsRebalancingNeeded(%s, %s) = %v, want %v", tt.diff, tt.threshold, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleHoldings())

	if !s.TotalValue.Equal(d("3450")) {
		t.Errorf("TotalValue = %s, want 3450", s.TotalValue)
	}
	if !s.TotalCost.Equal(d("3000")) {
		t.Errorf("TotalCost = %s, want 3000", s.TotalCost)
	}
	if !s.TotalProfitLoss.Equal(d("450")) {
		t.Errorf("TotalProfitLoss = %s, want 450", s.TotalProfitLoss)
	}
	if !s.TotalProfitLossPercent.Equal(d("15")) {
		t.Errorf("TotalProfitLossPercent = %s, want 15", s.TotalProfitLossPercent)
	}
	if len(s.Holdings) != 2 || s.Holdings[0].Ticker != "AAPL" || s.Holdings[1].Ticker != "MSFT" {
		t.Fatalf("holdings order not preserved: %+v", s.Holdings)
	}
}

func TestSummarizeInvariants(t *testing.T) {
	holdings := append(sampleHoldings(),
		domain.Holding{ID: "3", Name: "Gold ETF", Quantity: d("3.5"), PurchasePrice: d("80.25"), CurrentPrice: d("71.1")},
		domain.Holding{ID: "4", Name: "Tesla", Ticker: "TSLA", Quantity: d("7"), PurchasePrice: d("220"), CurrentPrice: d("199.99")},
	)
	s := Summarize(holdings)

	sumValue := decimal.Zero
	sumWeight := decimal.Zero
	for _, v := range s.Holdings {
		if !v.TotalValue.Equal(v.Quantity.Mul(v.CurrentPrice)) {
			t.Errorf("%s: TotalValue = %s, want qty×price", v.Name, v.TotalValue)
		}
		if !v.ProfitLoss.Equal(v.TotalValue.Sub(v.Quantity.Mul(v.PurchasePrice))) {
			t.Errorf("%s: ProfitLoss = %s, want value − qty×purchase", v.Name, v.ProfitLoss)
		}
		sumValue = sumValue.Add(v.TotalValue)
		sumWeight = sumWeight.Add(v.Weight)
	}

	if !sumValue.Equal(s.TotalValue) {
		t.Errorf("Σ TotalValue = %s, want %s", sumValue, s.TotalValue)
	}
	w, _ := sumWeight.Float64()
	if math.Abs(w-100) > 1e-6 {
		t.Errorf("Σ weight = %f, want ~100", w)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if !s.TotalValue.IsZero() || !s.TotalProfitLossPercent.IsZero() {
		t.Errorf("empty summary = %+v, want zeros", s)
	}
	if len(s.Holdings) != 0 {
		t.Errorf("Holdings len = %d, want 0", len(s.Holdings))
	}
}
