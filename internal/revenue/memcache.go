package revenue

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type entry struct {
	v       decimal.Decimal
	expires time.Time
}

// MemoryCache is a process-local Cache used when redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: map[string]entry{}, now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return decimal.Zero, false, nil
	}
	return e.v, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, v decimal.Decimal, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{v: v, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entry{}
	return nil
}
