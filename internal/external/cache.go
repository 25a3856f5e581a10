package external

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DefaultPriceCacheTTL bounds how stale memoized reference prices may be.
const DefaultPriceCacheTTL = 30 * time.Second

// ReferenceSource loads the stored reference prices.
type ReferenceSource interface {
	ReferencePrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// PriceCache memoizes ReferencePrices so every API request does not hit the database.
// Errors are never cached.
type PriceCache struct {
	src ReferenceSource
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	prices    map[string]decimal.Decimal
	expiresAt time.Time
}

// NewPriceCache wraps src with a TTL cache.
func NewPriceCache(src ReferenceSource, ttl time.Duration) *PriceCache {
	return &PriceCache{src: src, ttl: ttl, now: time.Now}
}

// ReferencePrices returns a copy of the cached prices, reloading them once expired.
func (c *PriceCache) ReferencePrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	c.mu.RLock()
	if c.prices != nil && c.now().Before(c.expiresAt) {
		out := lo.Assign(c.prices)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	prices, err := c.src.ReferencePrices(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.prices = lo.Assign(prices)
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()
	return prices, nil
}

// Invalidate drops the cached prices.
func (c *PriceCache) Invalidate() {
	c.mu.Lock()
	c.prices = nil
	c.mu.Unlock()
}
