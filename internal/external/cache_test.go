package external

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type countingSource struct {
	calls  int
	prices map[string]decimal.Decimal
	err    error
}

func (s *countingSource) ReferencePrices(context.Context) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.prices, nil
}

func TestPriceCacheMemoizes(t *testing.T) {
	src := &countingSource{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(190)}}
	c := NewPriceCache(src, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.ReferencePrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first["AAPL"] = decimal.Zero

	second, _ := c.ReferencePrices(context.Background())
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if !second["AAPL"].Equal(decimal.NewFromInt(190)) {
		t.Errorf("cached price = %s, callers must get a copy", second["AAPL"])
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.ReferencePrices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("source calls after expiry = %d, want 2", src.calls)
	}

	c.Invalidate()
	if _, err := c.ReferencePrices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.calls != 3 {
		t.Errorf("source calls after invalidate = %d, want 3", src.calls)
	}
}

func TestPriceCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	c := NewPriceCache(src, time.Minute)

	for range 2 {
		if _, err := c.ReferencePrices(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
}
