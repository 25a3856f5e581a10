package store

import (
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/validation"
)

// HoldingStore is the optimistic store for holdings.
type HoldingStore = Store[domain.Holding, domain.HoldingDraft, domain.HoldingPatch]

// TargetStore is the optimistic store for target allocations.
type TargetStore = Store[domain.TargetAllocation, domain.TargetDraft, domain.TargetPatch]

// HoldingRemote is the remote collaborator behind a HoldingStore.
type HoldingRemote = Remote[domain.Holding, domain.HoldingDraft, domain.HoldingPatch]

// TargetRemote is the remote collaborator behind a TargetStore.
type TargetRemote = Remote[domain.TargetAllocation, domain.TargetDraft, domain.TargetPatch]

// NewHoldingStore creates a holdings store that validates input before any optimistic change.
func NewHoldingStore(remote HoldingRemote, cache Cache) *HoldingStore {
	return New[domain.Holding, domain.HoldingDraft, domain.HoldingPatch](remote, Config[domain.HoldingDraft, domain.HoldingPatch]{
		Name:          "holdings",
		ValidateDraft: validation.ValidateHoldingDraft,
		ValidatePatch: validation.ValidateHoldingPatch,
		Cache:         cache,
	})
}

// NewTargetStore creates a target allocation store. tolerance bounds how far the total
// weight may drift from 100.
func NewTargetStore(remote TargetRemote, cache Cache, tolerance decimal.Decimal) *TargetStore {
	return New[domain.TargetAllocation, domain.TargetDraft, domain.TargetPatch](remote, Config[domain.TargetDraft, domain.TargetPatch]{
		Name: "target portfolios",
		ValidateDraft: func(d domain.TargetDraft) error {
			return validation.ValidateTargetDraft(d, tolerance)
		},
		ValidatePatch: func(p domain.TargetPatch) error {
			return validation.ValidateTargetPatch(p, tolerance)
		},
		Cache:    cache,
		CacheKey: "targets",
	})
}
