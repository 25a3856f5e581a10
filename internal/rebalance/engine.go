// Package rebalance compares a valued portfolio against a target allocation and
// derives a per-position trade plan.
package rebalance

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/valuation"
)

// SignificantDifference is the weight gap in percentage points above which a
// difference is reported as significant regardless of the trading threshold.
var SignificantDifference = decimal.NewFromInt(5)

// Action is the recommended trade direction for a position.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Calculation is the rebalancing outcome for one target position.
type Calculation struct {
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Ticker          string          `json:"ticker,omitempty"`
	Held            bool            `json:"held"`
	CurrentQuantity decimal.Decimal `json:"currentQuantity"`
	Price           decimal.Decimal `json:"price"`
	MissingPrice    bool            `json:"missingPrice,omitempty"`
	CurrentWeight   decimal.Decimal `json:"currentWeight"`
	TargetWeight    decimal.Decimal `json:"targetWeight"`
	CurrentValue    decimal.Decimal `json:"currentValue"`
	TargetValue     decimal.Decimal `json:"targetValue"`
	Difference      decimal.Decimal `json:"difference"`
	Action          Action          `json:"action"`

	RawQuantityChange      decimal.Decimal `json:"rawQuantityChange"`
	RawValueChange         decimal.Decimal `json:"rawValueChange"`
	AdjustedQuantityChange decimal.Decimal `json:"adjustedQuantityChange"`
	AdjustedValueChange    decimal.Decimal `json:"adjustedValueChange"`
	Commission             decimal.Decimal `json:"commission"`
	NetValueChange         decimal.Decimal `json:"netValueChange"`
}

// Totals summarizes the trades of a plan. Hold positions are excluded.
type Totals struct {
	TotalTrades     int             `json:"totalTrades"`
	BuyCount        int             `json:"buyCount"`
	SellCount       int             `json:"sellCount"`
	TotalBuyValue   decimal.Decimal `json:"totalBuyValue"`
	TotalSellValue  decimal.Decimal `json:"totalSellValue"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
	NetCashFlow     decimal.Decimal `json:"netCashFlow"`
}

// Result is a complete trade plan.
type Result struct {
	Calculations              []Calculation `json:"calculations"`
	Totals                    Totals        `json:"totals"`
	IsBalanced                bool          `json:"isBalanced"`
	HasSignificantDifferences bool          `json:"hasSignificantDifferences"`
}

// position aggregates every holding lot that matches one key.
type position struct {
	quantity decimal.Decimal
	value    decimal.Decimal
	price    decimal.Decimal
}

// Calculate builds the trade plan that moves summary toward target.
// A target with no positions yields an empty, balanced result.
func Calculate(summary domain.PortfolioSummary, target domain.TargetAllocation, opts Options) Result {
	matched := make(map[int]bool, len(summary.Holdings))
	calcs := make([]Calculation, 0, len(target.Positions))

	for _, p := range target.Positions {
		idx := matchHoldings(summary.Holdings, p)
		for _, i := range idx {
			matched[i] = true
		}
		pos, held := aggregate(summary.Holdings, idx)
		calcs = append(calcs, calculatePosition(p, pos, held, summary.TotalValue, opts))
	}

	if opts.IncludeUntargeted {
		for i, h := range summary.Holdings {
			if matched[i] {
				continue
			}
			// Later lots of an already-added untargeted key are folded into the first.
			idx := matchHoldings(summary.Holdings, domain.TargetPosition{Name: h.Name, Ticker: h.Ticker})
			idx = lo.Filter(idx, func(j int, _ int) bool { return !matched[j] })
			for _, j := range idx {
				matched[j] = true
			}
			pos, _ := aggregate(summary.Holdings, idx)
			p := domain.TargetPosition{Name: h.Name, Ticker: h.Ticker, TargetWeight: decimal.Zero}
			calcs = append(calcs, calculatePosition(p, pos, true, summary.TotalValue, opts))
		}
	}

	return Result{
		Calculations: calcs,
		Totals:       summarizeTrades(calcs),
		IsBalanced: lo.EveryBy(calcs, func(c Calculation) bool {
			return c.Action == ActionHold
		}),
		HasSignificantDifferences: lo.SomeBy(calcs, func(c Calculation) bool {
			return c.Difference.Abs().GreaterThan(SignificantDifference)
		}),
	}
}

// Classify maps a weight difference to an action. Differences within the threshold hold.
func Classify(difference, threshold decimal.Decimal) Action {
	if !valuation.IsRebalancingNeeded(difference, threshold) {
		return ActionHold
	}
	if difference.IsPositive() {
		return ActionSell
	}
	return ActionBuy
}

// matchHoldings returns the indexes of holdings that pair with p. Tickers are compared
// when both sides carry one; otherwise display names are compared.
func matchHoldings(holdings []domain.ValuedHolding, p domain.TargetPosition) []int {
	ticker := domain.NormalizeKey(p.Ticker)
	name := domain.NormalizeKey(p.Name)

	var idx []int
	for i, h := range holdings {
		ht := domain.NormalizeKey(h.Ticker)
		if ticker != "" && ht != "" {
			if ht == ticker {
				idx = append(idx, i)
			}
			continue
		}
		if domain.NormalizeKey(h.Name) == name {
			idx = append(idx, i)
		}
	}
	return idx
}

func aggregate(holdings []domain.ValuedHolding, idx []int) (position, bool) {
	if len(idx) == 0 {
		return position{}, false
	}
	pos := position{price: holdings[idx[0]].CurrentPrice}
	for _, i := range idx {
		pos.quantity = pos.quantity.Add(holdings[i].Quantity)
		pos.value = pos.value.Add(holdings[i].TotalValue)
	}
	if pos.quantity.IsPositive() {
		pos.price = pos.value.Div(pos.quantity)
	}
	return pos, true
}

func calculatePosition(p domain.TargetPosition, pos position, held bool, totalValue decimal.Decimal, opts Options) Calculation {
	key := p.MatchKey()
	currentWeight := valuation.Weight(pos.value, totalValue)
	difference := valuation.WeightDifference(currentWeight, p.TargetWeight)
	targetValue := totalValue.Mul(p.TargetWeight).Div(domain.Hundred())

	price := pos.price
	if !held || !price.IsPositive() {
		price = opts.ReferencePrices[key]
	}

	c := Calculation{
		Key:             key,
		Name:            p.Name,
		Ticker:          p.Ticker,
		Held:            held,
		CurrentQuantity: pos.quantity,
		Price:           price,
		MissingPrice:    !price.IsPositive(),
		CurrentWeight:   currentWeight,
		TargetWeight:    p.TargetWeight,
		CurrentValue:    pos.value,
		TargetValue:     targetValue,
		Difference:      difference,
		Action:          Classify(difference, opts.Threshold),
		RawValueChange:  targetValue.Sub(pos.value),
	}
	c.RawQuantityChange = domain.SafeDiv(c.RawValueChange, price)
	if c.MissingPrice {
		c.RawQuantityChange = decimal.Zero
	}

	if c.Action == ActionHold {
		return c
	}

	c.AdjustedQuantityChange = adjustQuantity(c.RawQuantityChange, opts.tradingUnit(), opts.Rounding)
	c.AdjustedValueChange = c.AdjustedQuantityChange.Mul(price)
	if opts.ConsiderCommission {
		c.Commission = c.AdjustedQuantityChange.Abs().Mul(opts.Commission)
	}
	c.NetValueChange = c.AdjustedValueChange.Sub(c.Commission)
	return c
}

func summarizeTrades(calcs []Calculation) Totals {
	var t Totals
	for _, c := range calcs {
		switch c.Action {
		case ActionBuy:
			t.BuyCount++
			t.TotalBuyValue = t.TotalBuyValue.Add(c.AdjustedValueChange.Abs())
		case ActionSell:
			t.SellCount++
			t.TotalSellValue = t.TotalSellValue.Add(c.AdjustedValueChange.Abs())
		default:
			continue
		}
		t.TotalCommission = t.TotalCommission.Add(c.Commission)
	}
	t.TotalTrades = t.BuyCount + t.SellCount
	t.NetCashFlow = t.TotalSellValue.Sub(t.TotalBuyValue).Sub(t.TotalCommission)
	return t
}
