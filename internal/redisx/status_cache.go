package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type OrderStatus struct {
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusCache keeps a short-lived copy of each order's status for polling
// clients. The database stays the source of truth.
type StatusCache struct {
	RDB *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var s OrderStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return OrderStatus{}, false, err
	}
	return s, true, nil
}

func (c *StatusCache) Put(ctx context.Context, orderID string, s OrderStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// Idempotency remembers which order a client-supplied key produced.
type Idempotency struct {
	RDB *redis.Client
}

func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}
