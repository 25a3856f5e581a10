package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/valuation"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holding(name, ticker, qty, price string) domain.Holding {
	return domain.Holding{
		ID:            name,
		Name:          name,
		Ticker:        ticker,
		Quantity:      d(qty),
		PurchasePrice: d(price),
		CurrentPrice:  d(price),
	}
}

func pos(name, ticker, weight string) domain.TargetPosition {
	return domain.TargetPosition{Name: name, Ticker: ticker, TargetWeight: d(weight)}
}

// fixture: 1000 total, AAPL 60%, MSFT 40%; target AAPL 50 / MSFT 30 / GOOG 20 with GOOG unheld.
func fixture() (domain.PortfolioSummary, domain.TargetAllocation, Options) {
	summary := valuation.Summarize([]domain.Holding{
		holding("Apple", "AAPL", "60", "10"),
		holding("Microsoft", "MSFT", "40", "10"),
	})
	target := domain.TargetAllocation{
		ID:   "t1",
		Name: "Growth",
		Positions: []domain.TargetPosition{
			pos("Apple", "AAPL", "50"),
			pos("Microsoft", "MSFT", "30"),
			pos("Alphabet", "GOOG", "20"),
		},
	}
	opts := DefaultOptions()
	opts.ReferencePrices = map[string]decimal.Decimal{"GOOG": d("30")}
	return summary, target, opts
}

func findCalc(t *testing.T, r Result, key string) Calculation {
	t.Helper()
	for _, c := range r.Calculations {
		if c.Key == key {
			return c
		}
	}
	t.Fatalf("no calculation for %s", key)
	return Calculation{}
}

func TestCalculateClassifiesPositions(t *testing.T) {
	summary, target, opts := fixture()
	r := Calculate(summary, target, opts)

	if len(r.Calculations) != 3 {
		t.Fatalf("calculations = %d, want 3", len(r.Calculations))
	}

	aapl := findCalc(t, r, "AAPL")
	if !aapl.CurrentWeight.Equal(d("60")) || !aapl.Difference.Equal(d("10")) {
		t.Errorf("AAPL weight/diff = %s/%s, want 60/10", aapl.CurrentWeight, aapl.Difference)
	}
	if aapl.Action != ActionSell {
		t.Errorf("AAPL action = %s, want sell", aapl.Action)
	}
	if !aapl.TargetValue.Equal(d("500")) || !aapl.RawValueChange.Equal(d("-100")) {
		t.Errorf("AAPL target/raw value = %s/%s, want 500/-100", aapl.TargetValue, aapl.RawValueChange)
	}
	if !aapl.AdjustedQuantityChange.Equal(d("-10")) {
		t.Errorf("AAPL adjusted qty = %s, want -10", aapl.AdjustedQuantityChange)
	}

	goog := findCalc(t, r, "GOOG")
	if goog.Held {
		t.Error("GOOG should not be held")
	}
	if !goog.CurrentWeight.IsZero() || !goog.Difference.Equal(d("-20")) {
		t.Errorf("GOOG weight/diff = %s/%s, want 0/-20", goog.CurrentWeight, goog.Difference)
	}
	if goog.Action != ActionBuy {
		t.Errorf("GOOG action = %s, want buy", goog.Action)
	}
	if !goog.Price.Equal(d("30")) {
		t.Errorf("GOOG price = %s, want reference 30", goog.Price)
	}

	if r.IsBalanced {
		t.Error("IsBalanced = true, want false")
	}
	if !r.HasSignificantDifferences {
		t.Error("HasSignificantDifferences = false, want true")
	}
}

func TestCalculateRoundingDirections(t *testing.T) {
	tests := []struct {
		name       string
		rounding   Rounding
		fractional bool
		unit       string
		wantQty    string
		wantValue  string
	}{
		{"nearest whole", RoundNearest, false, "1", "7", "210"},
		{"down whole", RoundDown, false, "1", "6", "180"},
		{"nearest quarter", RoundNearest, true, "0.25", "6.75", "202.5"},
		{"down quarter", RoundDown, true, "0.25", "6.5", "195"},
		{"fraction unit ignored without fractional shares", RoundNearest, false, "0.25", "7", "210"},
		{"unit of five", RoundNearest, false, "5", "5", "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, target, opts := fixture()
			opts.Rounding = tt.rounding
			opts.AllowFractional = tt.fractional
			opts.MinimumUnit = d(tt.unit)

			goog := findCalc(t, Calculate(summary, target, opts), "GOOG")
			if f, _ := goog.RawQuantityChange.Float64(); f < 6.66 || f > 6.67 {
				t.Errorf("raw qty = %s, want ~6.667", goog.RawQuantityChange)
			}
			if !goog.AdjustedQuantityChange.Equal(d(tt.wantQty)) {
				t.Errorf("adjusted qty = %s, want %s", goog.AdjustedQuantityChange, tt.wantQty)
			}
			if !goog.AdjustedValueChange.Equal(d(tt.wantValue)) {
				t.Errorf("adjusted value = %s, want %s", goog.AdjustedValueChange, tt.wantValue)
			}
		})
	}
}

func TestCalculateTotals(t *testing.T) {
	summary, target, opts := fixture()
	r := Calculate(summary, target, opts)

	want := Totals{
		TotalTrades:     3,
		BuyCount:        1,
		SellCount:       2,
		TotalBuyValue:   d("210"),
		TotalSellValue:  d("200"),
		TotalCommission: decimal.Zero,
		NetCashFlow:     d("-10"),
	}
	assertTotals(t, r.Totals, want)
}

func TestCalculateWithCommission(t *testing.T) {
	summary, target, opts := fixture()
	opts.ConsiderCommission = true
	opts.Commission = d("1")
	r := Calculate(summary, target, opts)

	aapl := findCalc(t, r, "AAPL")
	if !aapl.Commission.Equal(d("10")) {
		t.Errorf("AAPL commission = %s, want 10", aapl.Commission)
	}
	if !aapl.NetValueChange.Equal(d("-110")) {
		t.Errorf("AAPL net value = %s, want -110", aapl.NetValueChange)
	}
	goog := findCalc(t, r, "GOOG")
	if !goog.NetValueChange.Equal(d("203")) {
		t.Errorf("GOOG net value = %s, want 203", goog.NetValueChange)
	}

	assertTotals(t, r.Totals, Totals{
		TotalTrades:     3,
		BuyCount:        1,
		SellCount:       2,
		TotalBuyValue:   d("210"),
		TotalSellValue:  d("200"),
		TotalCommission: d("27"),
		NetCashFlow:     d("-37"),
	})
}

func TestCalculateCommissionIgnoredWhenDisabled(t *testing.T) {
	summary, target, opts := fixture()
	opts.Commission = d("1")
	r := Calculate(summary, target, opts)

	if !r.Totals.TotalCommission.IsZero() {
		t.Errorf("TotalCommission = %s, want 0 when commission is not considered", r.Totals.TotalCommission)
	}
}

func TestCalculateHoldWithinThreshold(t *testing.T) {
	summary := valuation.Summarize([]domain.Holding{
		holding("Apple", "AAPL", "52", "10"),
		holding("Microsoft", "MSFT", "48", "10"),
	})
	target := domain.TargetAllocation{Positions: []domain.TargetPosition{
		pos("Apple", "AAPL", "50"),
		pos("Microsoft", "MSFT", "50"),
	}}

	r := Calculate(summary, target, DefaultOptions())
	if !r.IsBalanced {
		t.Error("IsBalanced = false, want true")
	}
	if r.HasSignificantDifferences {
		t.Error("HasSignificantDifferences = true, want false")
	}
	for _, c := range r.Calculations {
		if c.Action != ActionHold {
			t.Errorf("%s action = %s, want hold", c.Key, c.Action)
		}
		if !c.AdjustedQuantityChange.IsZero() || !c.Commission.IsZero() {
			t.Errorf("%s: hold carries a trade: %+v", c.Key, c)
		}
		if c.RawValueChange.IsZero() {
			t.Errorf("%s: raw value change should still be reported", c.Key)
		}
	}
	if r.Totals.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", r.Totals.TotalTrades)
	}
}

func TestCalculateEmptyTarget(t *testing.T) {
	summary, _, opts := fixture()
	r := Calculate(summary, domain.TargetAllocation{}, opts)

	if len(r.Calculations) != 0 {
		t.Errorf("calculations = %d, want 0", len(r.Calculations))
	}
	if !r.IsBalanced {
		t.Error("empty target should be balanced")
	}
	if r.Totals.TotalTrades != 0 || !r.Totals.NetCashFlow.IsZero() {
		t.Errorf("totals = %+v, want zero", r.Totals)
	}
}

func TestCalculateMissingReferencePrice(t *testing.T) {
	summary, target, opts := fixture()
	opts.ReferencePrices = nil

	goog := findCalc(t, Calculate(summary, target, opts), "GOOG")
	if !goog.MissingPrice {
		t.Error("MissingPrice = false, want true")
	}
	if !goog.RawQuantityChange.IsZero() || !goog.AdjustedQuantityChange.IsZero() {
		t.Errorf("quantities = %s/%s, want 0 without a price", goog.RawQuantityChange, goog.AdjustedQuantityChange)
	}
	if goog.Action != ActionBuy {
		t.Errorf("action = %s, want buy", goog.Action)
	}
}

func TestCalculateMatching(t *testing.T) {
	summary := valuation.Summarize([]domain.Holding{
		holding("Apple", "AAPL", "10", "10"),
		holding("Apple", "AAPL", "10", "10"),
		holding("Gold Fund", "", "20", "5"),
		holding("Vanguard", "VWRL", "10", "10"),
	})
	target := domain.TargetAllocation{Positions: []domain.TargetPosition{
		pos("Apple Inc.", "aapl", "50"),
		pos("gold fund", "GLD", "25"),
		pos("Vanguard", "VWCE", "25"),
	}}

	r := Calculate(summary, target, DefaultOptions())

	aapl := findCalc(t, r, "AAPL")
	if !aapl.CurrentQuantity.Equal(d("20")) || !aapl.CurrentValue.Equal(d("200")) {
		t.Errorf("AAPL lots not aggregated: qty %s value %s", aapl.CurrentQuantity, aapl.CurrentValue)
	}

	gold := findCalc(t, r, "GLD")
	if !gold.Held || !gold.CurrentValue.Equal(d("100")) {
		t.Errorf("gold should match by name when the holding has no ticker: %+v", gold)
	}

	vw := findCalc(t, r, "VWCE")
	if vw.Held {
		t.Error("differing tickers must not fall back to name matching")
	}
}

func TestCalculateIncludeUntargeted(t *testing.T) {
	summary := valuation.Summarize([]domain.Holding{
		holding("Apple", "AAPL", "60", "10"),
		holding("Microsoft", "MSFT", "40", "10"),
	})
	target := domain.TargetAllocation{Positions: []domain.TargetPosition{pos("Apple", "AAPL", "100")}}

	opts := DefaultOptions()
	r := Calculate(summary, target, opts)
	if len(r.Calculations) != 1 {
		t.Fatalf("calculations = %d, want 1 without IncludeUntargeted", len(r.Calculations))
	}

	opts.IncludeUntargeted = true
	r = Calculate(summary, target, opts)
	if len(r.Calculations) != 2 {
		t.Fatalf("calculations = %d, want 2", len(r.Calculations))
	}
	msft := findCalc(t, r, "MSFT")
	if msft.Action != ActionSell || !msft.TargetWeight.IsZero() {
		t.Errorf("MSFT = %s target %s, want sell at 0", msft.Action, msft.TargetWeight)
	}
	if !msft.AdjustedQuantityChange.Equal(d("-40")) {
		t.Errorf("MSFT adjusted qty = %s, want -40", msft.AdjustedQuantityChange)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		diff, threshold string
		want            Action
	}{
		{"10", "5", ActionSell},
		{"-10", "5", ActionBuy},
		{"5", "5", ActionHold},
		{"-5", "5", ActionHold},
		{"0", "0", ActionHold},
		{"0.1", "0", ActionSell},
	}

	for _, tt := range tests {
		if got := Classify(d(tt.diff), d(tt.threshold)); got != tt.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tt.diff, tt.threshold, got, tt.want)
		}
	}
}

func TestParseRounding(t *testing.T) {
	if ParseRounding("down") != RoundDown {
		t.Error("ParseRounding(down) != RoundDown")
	}
	if ParseRounding("") != RoundNearest || ParseRounding("bogus") != RoundNearest {
		t.Error("unknown rounding should default to nearest")
	}
}

func assertTotals(t *testing.T, got, want Totals) {
	t.Helper()
	if got.TotalTrades != want.TotalTrades || got.BuyCount != want.BuyCount || got.SellCount != want.SellCount {
		t.Errorf("counts = %d/%d/%d, want %d/%d/%d",
			got.TotalTrades, got.BuyCount, got.SellCount, want.TotalTrades, want.BuyCount, want.SellCount)
	}
	if !got.TotalBuyValue.Equal(want.TotalBuyValue) {
		t.Errorf("TotalBuyValue = %s, want %s", got.TotalBuyValue, want.TotalBuyValue)
	}
	if !got.TotalSellValue.Equal(want.TotalSellValue) {
		t.Errorf("TotalSellValue = %s, want %s", got.TotalSellValue, want.TotalSellValue)
	}
	if !got.TotalCommission.Equal(want.TotalCommission) {
		t.Errorf("TotalCommission = %s, want %s", got.TotalCommission, want.TotalCommission)
	}
	if !got.NetCashFlow.Equal(want.NetCashFlow) {
		t.Errorf("NetCashFlow = %s, want %s", got.NetCashFlow, want.NetCashFlow)
	}
}
