package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockFetcher struct {
	callCount atomic.Int32
	err       error
}

func (m *mockFetcher) Fetch(_ context.Context) error {
	m.callCount.Add(1)
	return m.err
}

func TestRefreshWorkerRunsAndShutdown(t *testing.T) {
	holdings, targets := &mockFetcher{}, &mockFetcher{}
	w := NewRefreshWorker(50*time.Millisecond,
		Source{Name: "holdings", Fetcher: holdings},
		Source{Name: "targets", Fetcher: targets},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := holdings.callCount.Load(); got < 1 {
		t.Errorf("holdings call count = %d, want >= 1", got)
	}
	if got := targets.callCount.Load(); got < 1 {
		t.Errorf("targets call count = %d, want >= 1", got)
	}
}

func TestRefreshAttemptsEverySource(t *testing.T) {
	failing := &mockFetcher{err: errors.New("offline")}
	healthy := &mockFetcher{}
	w := NewRefreshWorker(time.Hour,
		Source{Name: "holdings", Fetcher: failing},
		Source{Name: "targets", Fetcher: healthy},
	)

	err := w.Refresh(context.Background())
	if !errors.Is(err, failing.err) {
		t.Errorf("Refresh error = %v, want offline", err)
	}
	if healthy.callCount.Load() != 1 {
		t.Error("healthy source should still be fetched")
	}
}
