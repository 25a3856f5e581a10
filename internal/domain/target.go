package domain

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// TargetPosition is one line of a target allocation.
type TargetPosition struct {
	Name         string          `json:"name"`
	Ticker       string          `json:"ticker,omitempty"`
	TargetWeight decimal.Decimal `json:"targetWeight"`
}

// MatchKey returns the key used to pair this position with a holding.
func (p TargetPosition) MatchKey() string { return MatchKey(p.Ticker, p.Name) }

// TargetAllocation is a named set of desired portfolio weights.
type TargetAllocation struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Positions   []TargetPosition `json:"positions"`
	TotalWeight decimal.Decimal  `json:"totalWeight"`
	OwnerID     string           `json:"ownerId"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// ItemID returns the allocation identity.
func (t TargetAllocation) ItemID() string { return t.ID }

// Clone returns a deep copy so callers cannot reach the store's position slice.
func (t TargetAllocation) Clone() TargetAllocation {
	if t.Positions != nil {
		t.Positions = append([]TargetPosition(nil), t.Positions...)
	}
	return t
}

// SumWeights totals the target weights of the given positions.
func SumWeights(positions []TargetPosition) decimal.Decimal {
	return lo.Reduce(positions, func(acc decimal.Decimal, p TargetPosition, _ int) decimal.Decimal {
		return acc.Add(p.TargetWeight)
	}, decimal.Zero)
}

// TargetDraft carries the fields of a target allocation that does not exist yet.
type TargetDraft struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Positions   []TargetPosition `json:"positions"`
	OwnerID     string           `json:"ownerId"`
}

// Tentative builds the local stand-in shown until the remote store confirms the create.
func (d TargetDraft) Tentative(id string, now time.Time) TargetAllocation {
	return TargetAllocation{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Positions:   append([]TargetPosition(nil), d.Positions...),
		TotalWeight: SumWeights(d.Positions),
		OwnerID:     d.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TargetPatch is a partial update. Nil fields are left unchanged; a non-nil Positions
// slice replaces the whole position list.
type TargetPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Positions   []TargetPosition `json:"positions,omitempty"`
}

// Apply returns t with the patch applied and TotalWeight recomputed.
func (p TargetPatch) Apply(t TargetAllocation) TargetAllocation {
	t = t.Clone()
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Positions != nil {
		t.Positions = append([]TargetPosition(nil), p.Positions...)
		t.TotalWeight = SumWeights(t.Positions)
	}
	return t
}
