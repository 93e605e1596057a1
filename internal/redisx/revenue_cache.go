package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RevenueCache implements revenue.Cache on redis so every API replica sees
// the same invalidations.
type RevenueCache struct {
	RDB *redis.Client
}

func (c *RevenueCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyRevenue, key)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt revenue cache value %q: %w", s, err)
	}
	return v, true, nil
}

func (c *RevenueCache) Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration) error {
	full := fmt.Sprintf(KeyRevenue, key)
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, full, v.String(), ttl)
		p.SAdd(ctx, KeyRevenueIndex, full)
		return nil
	})
	return err
}

func (c *RevenueCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, fmt.Sprintf(KeyRevenue, k))
	}
	return c.RDB.Del(ctx, full...).Err()
}

func (c *RevenueCache) Flush(ctx context.Context) error {
	keys, err := c.RDB.SMembers(ctx, KeyRevenueIndex).Result()
	if err != nil {
		return err
	}
	return c.RDB.Del(ctx, append(keys, KeyRevenueIndex)...).Err()
}
