// Package app wires the stores, push channels and calculators into one core that the
// HTTP server, workers and CLI share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/folio/internal/analytics"
	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/export"
	"github.com/mtlprog/folio/internal/realtime"
	"github.com/mtlprog/folio/internal/rebalance"
	"github.com/mtlprog/folio/internal/store"
	"github.com/mtlprog/folio/internal/validation"
	"github.com/mtlprog/folio/internal/valuation"
)

// ErrNoTarget is returned when a plan is requested but no target allocation exists.
var ErrNoTarget = errors.New("no target allocation available")

// Subscriber is a push channel for one collection.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, ownerID string, onEvent func(realtime.Event[T])) (unsubscribe func(), err error)
}

// PriceSource supplies market prices for positions that are not held yet.
type PriceSource interface {
	ReferencePrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Deps are the collaborators of an App. Cache, Prices and the feeds are optional.
type Deps struct {
	OwnerID         string
	HoldingRemote   store.HoldingRemote
	TargetRemote    store.TargetRemote
	Cache           store.Cache
	HoldingFeed     Subscriber[domain.Holding]
	TargetFeed      Subscriber[domain.TargetAllocation]
	Prices          PriceSource
	Options         rebalance.Options
	WeightTolerance decimal.Decimal
	// ExportTargetID selects the allocation GeneratePlan uses. Empty picks the newest.
	ExportTargetID string
}

// App holds the two collections and the default rebalancing options.
type App struct {
	Holdings *store.HoldingStore
	Targets  *store.TargetStore
	OwnerID  string
	Options  rebalance.Options

	holdingFeed    Subscriber[domain.Holding]
	targetFeed     Subscriber[domain.TargetAllocation]
	prices         PriceSource
	exportTargetID string
	now            func() time.Time
	unsubscribe    []func()
}

// New builds an App. Nothing is fetched until Start.
func New(d Deps) *App {
	tolerance := d.WeightTolerance
	if tolerance.IsZero() {
		tolerance = validation.DefaultWeightTolerance
	}
	return &App{
		Holdings:       store.NewHoldingStore(d.HoldingRemote, d.Cache),
		Targets:        store.NewTargetStore(d.TargetRemote, d.Cache, tolerance),
		OwnerID:        d.OwnerID,
		Options:        d.Options,
		holdingFeed:    d.HoldingFeed,
		targetFeed:     d.TargetFeed,
		prices:         d.Prices,
		exportTargetID: d.ExportTargetID,
		now:            time.Now,
	}
}

// Start hydrates both stores from the cache, subscribes the push channels, and runs
// the first fetch of both collections concurrently. A failed fetch leaves the cached
// items in place and is returned to the caller.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Holdings.Hydrate(); err != nil {
		slog.Warn("app: holdings cache unusable", "error", err)
	}
	if _, err := a.Targets.Hydrate(); err != nil {
		slog.Warn("app: targets cache unusable", "error", err)
	}

	if err := a.subscribe(ctx); err != nil {
		a.Close()
		return err
	}

	return a.FetchAll(ctx)
}

// subscribe attaches the feeds before the first fetch so no change falls in between.
func (a *App) subscribe(ctx context.Context) error {
	if a.holdingFeed != nil {
		unsub, err := a.holdingFeed.Subscribe(ctx, a.OwnerID, a.Holdings.Apply)
		if err != nil {
			return fmt.Errorf("subscribing to holding changes: %w", err)
		}
		a.unsubscribe = append(a.unsubscribe, unsub)
	}
	if a.targetFeed != nil {
		unsub, err := a.targetFeed.Subscribe(ctx, a.OwnerID, a.Targets.Apply)
		if err != nil {
			return fmt.Errorf("subscribing to target changes: %w", err)
		}
		a.unsubscribe = append(a.unsubscribe, unsub)
	}
	return nil
}

// Close detaches the push channels.
func (a *App) Close() {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil
}

// FetchAll refreshes both collections concurrently. One failing fetch does not
// cancel the other.
func (a *App) FetchAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return a.Holdings.Fetch(ctx) })
	g.Go(func() error { return a.Targets.Fetch(ctx) })
	return g.Wait()
}

// Summary values the current holdings.
func (a *App) Summary() domain.PortfolioSummary {
	return valuation.Summarize(a.Holdings.Items())
}

// Target returns the allocation with id.
func (a *App) Target(id string) (domain.TargetAllocation, error) {
	t, ok := a.Targets.Get(id)
	if !ok {
		return domain.TargetAllocation{}, fmt.Errorf("target allocation %s: %w", id, store.ErrNotFound)
	}
	return t, nil
}

// Rebalance computes the trade plan toward the allocation with targetID.
func (a *App) Rebalance(targetID string, opts rebalance.Options) (rebalance.Result, error) {
	target, err := a.Target(targetID)
	if err != nil {
		return rebalance.Result{}, err
	}
	return rebalance.Calculate(a.Summary(), target, opts), nil
}

// Analyze scores the portfolio, against the allocation with targetID when it is not empty.
func (a *App) Analyze(targetID string, opts rebalance.Options) (analytics.Report, error) {
	if targetID == "" {
		return analytics.Analyze(a.Summary(), nil, opts), nil
	}
	target, err := a.Target(targetID)
	if err != nil {
		return analytics.Report{}, err
	}
	return analytics.Analyze(a.Summary(), &target, opts), nil
}

// Plan bundles the trade plan for targetID with the summary it was computed from.
func (a *App) Plan(targetID string, opts rebalance.Options) (export.Plan, error) {
	target, err := a.Target(targetID)
	if err != nil {
		return export.Plan{}, err
	}
	summary := a.Summary()
	return export.Plan{
		Target:      target,
		Summary:     summary,
		Result:      rebalance.Calculate(summary, target, opts),
		GeneratedAt: a.now(),
	}, nil
}

// WithQuotes fills in stored market prices for positions opts does not price. Prices
// already in opts win. A failing source leaves opts unchanged.
func (a *App) WithQuotes(ctx context.Context, opts rebalance.Options) rebalance.Options {
	if a.prices == nil {
		return opts
	}
	quotes, err := a.prices.ReferencePrices(ctx)
	if err != nil {
		slog.Warn("app: reference prices unavailable", "error", err)
		return opts
	}
	if len(quotes) > 0 {
		opts.ReferencePrices = lo.Assign(quotes, opts.ReferencePrices)
	}
	return opts
}

// GeneratePlan builds the plan for the configured export target, or the newest
// allocation when none is configured.
func (a *App) GeneratePlan(ctx context.Context) (export.Plan, error) {
	id := a.exportTargetID
	if id == "" {
		targets := a.Targets.Items()
		if len(targets) == 0 {
			return export.Plan{}, ErrNoTarget
		}
		id = targets[0].ID
	}
	return a.Plan(id, a.WithQuotes(ctx, a.Options))
}
