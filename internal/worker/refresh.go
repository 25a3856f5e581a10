package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Fetcher reloads one collection from its remote store.
type Fetcher interface {
	Fetch(ctx context.Context) error
}

// Source is a named Fetcher.
type Source struct {
	Name    string
	Fetcher Fetcher
}

// RefreshWorker periodically re-fetches every source so the local collections catch
// up with changes the push channel may have missed.
type RefreshWorker struct {
	sources  []Source
	interval time.Duration
}

// NewRefreshWorker creates a new RefreshWorker.
func NewRefreshWorker(interval time.Duration, sources ...Source) *RefreshWorker {
	return &RefreshWorker{
		sources:  sources,
		interval: interval,
	}
}

// Refresh fetches all sources concurrently and returns the first error. Every source
// is attempted even when another fails.
func (w *RefreshWorker) Refresh(ctx context.Context) error {
	var g errgroup.Group
	for _, src := range w.sources {
		g.Go(func() error {
			if err := src.Fetcher.Fetch(ctx); err != nil {
				slog.Warn("RefreshWorker: source failed", "source", src.Name, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Run starts the refresh loop. It blocks until the context is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.Info("RefreshWorker: starting", "sources", len(w.sources), "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RefreshWorker: shutting down")
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				slog.Error("RefreshWorker: refresh failed", "error", err)
			} else {
				slog.Debug("RefreshWorker: refresh completed")
			}
		}
	}
}
