// Package external keeps holding prices current from a market quote provider.
package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/domain"
	"github.com/mtlprog/folio/internal/store"
)

// PriceFetcher returns the latest price per normalized ticker.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
}

// Holdings is the slice of the holding store the quote service drives.
type Holdings interface {
	Items() []domain.Holding
	Update(ctx context.Context, id string, patch domain.HoldingPatch) (domain.Holding, error)
}

// Targets lists the allocations whose position tickers are quoted too.
type Targets interface {
	Items() []domain.TargetAllocation
}

// Service fetches quotes for the held and targeted tickers, stores them, and
// reprices holdings whose current price moved.
type Service struct {
	fetcher  PriceFetcher
	repo     QuoteRepository
	holdings Holdings
	targets  Targets
}

// NewService creates a quote service. targets may be nil.
func NewService(fetcher PriceFetcher, repo QuoteRepository, holdings Holdings, targets Targets) *Service {
	return &Service{fetcher: fetcher, repo: repo, holdings: holdings, targets: targets}
}

// Fetch refreshes quotes and reprices holdings. Every holding is attempted; the
// failures are joined.
func (s *Service) Fetch(ctx context.Context) error {
	items := s.holdings.Items()
	tickers := lo.FilterMap(items, func(h domain.Holding, _ int) (string, bool) {
		t := domain.NormalizeKey(h.Ticker)
		return t, t != ""
	})
	if s.targets != nil {
		for _, t := range s.targets.Items() {
			for _, p := range t.Positions {
				if k := domain.NormalizeKey(p.Ticker); k != "" {
					tickers = append(tickers, k)
				}
			}
		}
	}
	if len(tickers) == 0 {
		return nil
	}

	prices, err := s.fetcher.FetchPrices(ctx, tickers)
	if err != nil {
		return fmt.Errorf("fetching quotes: %w", err)
	}
	if err := s.repo.SaveQuotes(ctx, prices); err != nil {
		return fmt.Errorf("storing quotes: %w", err)
	}

	var errs []error
	repriced := 0
	for _, h := range items {
		// Tentative rows have no server id yet; the next refresh prices them.
		if store.IsTemporaryID(h.ID) {
			continue
		}
		price, ok := prices[domain.NormalizeKey(h.Ticker)]
		if !ok || price.Equal(h.CurrentPrice) {
			continue
		}
		if _, err := s.holdings.Update(ctx, h.ID, domain.HoldingPatch{CurrentPrice: &price}); err != nil {
			errs = append(errs, fmt.Errorf("repricing %s: %w", h.Name, err))
			continue
		}
		repriced++
	}

	slog.Info("QuoteService: quotes refreshed", "quoted", len(prices), "repriced", repriced)
	return errors.Join(errs...)
}
