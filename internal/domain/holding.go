package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a single stock position recorded by a user.
type Holding struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Ticker        string          `json:"ticker,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	OwnerID       string          `json:"ownerId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ItemID returns the holding identity.
func (h Holding) ItemID() string { return h.ID }

// Clone returns a copy of the holding. Decimals are immutable values, so a shallow copy is enough.
func (h Holding) Clone() Holding { return h }

// MatchKey returns the key used to pair this holding with a target position.
func (h Holding) MatchKey() string { return MatchKey(h.Ticker, h.Name) }

// HoldingDraft carries the user-supplied fields of a holding that does not exist yet.
type HoldingDraft struct {
	Name          string          `json:"name"`
	Ticker        string          `json:"ticker,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	OwnerID       string          `json:"ownerId"`
}

// Tentative builds the local stand-in shown until the remote store confirms the create.
func (d HoldingDraft) Tentative(id string, now time.Time) Holding {
	return Holding{
		ID:            id,
		Name:          d.Name,
		Ticker:        d.Ticker,
		Quantity:      d.Quantity,
		PurchasePrice: d.PurchasePrice,
		CurrentPrice:  d.CurrentPrice,
		OwnerID:       d.OwnerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HoldingPatch is a partial update. Nil fields are left unchanged.
type HoldingPatch struct {
	Name          *string          `json:"name,omitempty"`
	Ticker        *string          `json:"ticker,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice,omitempty"`
}

// Apply returns h with the patch fields applied.
func (p HoldingPatch) Apply(h Holding) Holding {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Ticker != nil {
		h.Ticker = *p.Ticker
	}
	if p.Quantity != nil {
		h.Quantity = *p.Quantity
	}
	if p.PurchasePrice != nil {
		h.PurchasePrice = *p.PurchasePrice
	}
	if p.CurrentPrice != nil {
		h.CurrentPrice = *p.CurrentPrice
	}
	return h
}

// ValuedHolding is a holding with its derived valuation. It is never persisted.
type ValuedHolding struct {
	Holding
	TotalValue        decimal.Decimal `json:"totalValue"`
	CostBasis         decimal.Decimal `json:"costBasis"`
	ProfitLoss        decimal.Decimal `json:"profitLoss"`
	ProfitLossPercent decimal.Decimal `json:"profitLossPercent"`
	Weight            decimal.Decimal `json:"weight"`
}

// PortfolioSummary aggregates valued holdings in their original order.
type PortfolioSummary struct {
	TotalValue             decimal.Decimal `json:"totalValue"`
	TotalCost              decimal.Decimal `json:"totalCost"`
	TotalProfitLoss        decimal.Decimal `json:"totalProfitLoss"`
	TotalProfitLossPercent decimal.Decimal `json:"totalProfitLossPercent"`
	Holdings               []ValuedHolding `json:"holdings"`
}

// ProfitLossResult breaks down the gain or loss of a position.
type ProfitLossResult struct {
	CostBasis        decimal.Decimal `json:"costBasis"`
	CurrentValue     decimal.Decimal `json:"currentValue"`
	AbsoluteChange   decimal.Decimal `json:"absoluteChange"`
	PercentageChange decimal.Decimal `json:"percentageChange"`
}
