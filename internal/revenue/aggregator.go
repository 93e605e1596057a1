// Package revenue derives revenue and cost totals from order and purchase
// data. Every accessor recomputes from the source; the cache only serves the
// Cached* readers between recomputations and is rewritten on each one.
package revenue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTTL = 2 * time.Minute

// ErrStoreRequired is returned by the per-store figures for a blank store id.
var ErrStoreRequired = errors.New("store id is required")

type Source interface {
	SumOrderTotals(ctx context.Context, storeID string, statuses []orders.Status) (decimal.Decimal, error)
	SumPurchaseCosts(ctx context.Context, storeID string) (decimal.Decimal, error)
	StoreIDs(ctx context.Context) ([]string, error)
}

// Cache stores computed figures under opaque keys. A miss is (zero, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Flush drops every figure the aggregator ever cached.
	Flush(ctx context.Context) error
}

type Metric string

const (
	MetricRevenue Metric = "revenue"
	MetricCosts   Metric = "costs"
)

// Key names one cached figure; an empty store means the global total.
func Key(m Metric, storeID string) string {
	if storeID == "" {
		return string(m) + ":all"
	}
	return string(m) + ":store:" + storeID
}

type Aggregator struct {
	src   Source
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewAggregator(src Source, cache Cache, ttl time.Duration, log *zap.Logger) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cache == nil {
		cache = NewMemoryCache(nil)
	}
	return &Aggregator{src: src, cache: cache, ttl: ttl, log: logging.OrNop(log)}
}

func (a *Aggregator) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	return a.compute(ctx, MetricRevenue, "")
}

func (a *Aggregator) TotalCosts(ctx context.Context) (decimal.Decimal, error) {
	return a.compute(ctx, MetricCosts, "")
}

func (a *Aggregator) StoreRevenue(ctx context.Context, storeID string) (decimal.Decimal, error) {
	if strings.TrimSpace(storeID) == "" {
		return decimal.Zero, ErrStoreRequired
	}
	return a.compute(ctx, MetricRevenue, storeID)
}

func (a *Aggregator) StoreCosts(ctx context.Context, storeID string) (decimal.Decimal, error) {
	if strings.TrimSpace(storeID) == "" {
		return decimal.Zero, ErrStoreRequired
	}
	return a.compute(ctx, MetricCosts, storeID)
}

// Cached returns the cached figure when present and otherwise recomputes.
// The value is at most one TTL old.
func (a *Aggregator) Cached(ctx context.Context, m Metric, storeID string) (decimal.Decimal, error) {
	v, ok, err := a.cache.Get(ctx, Key(m, storeID))
	if err != nil {
		a.log.Warn("revenue cache read failed", zap.String("key", Key(m, storeID)), zap.Error(err))
	}
	if ok {
		return v, nil
	}
	return a.compute(ctx, m, storeID)
}

// RefreshAll drops every cached figure, then recomputes the global and
// per-store figures.
func (a *Aggregator) RefreshAll(ctx context.Context) error {
	if err := a.cache.Flush(ctx); err != nil {
		return fmt.Errorf("flush revenue cache: %w", err)
	}
	stores, err := a.src.StoreIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, store := range append([]string{""}, stores...) {
		for _, m := range []Metric{MetricRevenue, MetricCosts} {
			g.Go(func() error {
				_, err := a.compute(gctx, m, store)
				return err
			})
		}
	}
	return g.Wait()
}

// RevenueChanged drops the global and per-store revenue figures. It is
// called by the lifecycle engine after revenue recognition changes.
func (a *Aggregator) RevenueChanged(ctx context.Context, storeID string) {
	keys := []string{Key(MetricRevenue, "")}
	if storeID != "" {
		keys = append(keys, Key(MetricRevenue, storeID))
	}
	if err := a.cache.Delete(ctx, keys...); err != nil {
		a.log.Warn("revenue cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (a *Aggregator) compute(ctx context.Context, m Metric, storeID string) (decimal.Decimal, error) {
	var (
		v   decimal.Decimal
		err error
	)
	switch m {
	case MetricRevenue:
		v, err = a.src.SumOrderTotals(ctx, storeID, orders.RevenueStatuses)
	case MetricCosts:
		v, err = a.src.SumPurchaseCosts(ctx, storeID)
	default:
		return decimal.Zero, fmt.Errorf("unknown metric %q", m)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute %s: %w", Key(m, storeID), err)
	}
	if err := a.cache.Set(ctx, Key(m, storeID), v, a.ttl); err != nil {
		a.log.Warn("revenue cache write failed", zap.String("key", Key(m, storeID)), zap.Error(err))
	}
	return v, nil
}
