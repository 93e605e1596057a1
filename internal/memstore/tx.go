package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
)

type tx struct {
	st         *state
	failInsert error
	now        func() time.Time
}

func (t *tx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	return t.st.product(id)
}

func (t *tx) GetVariant(_ context.Context, id string) (orders.Variant, error) {
	return t.st.variant(id)
}

func (t *tx) GetInventory(_ context.Context, key inventory.Key) (inventory.Record, error) {
	return t.st.record(key)
}

func (t *tx) DecrementInventory(_ context.Context, key inventory.Key, qty decimal.Decimal) (inventory.Record, error) {
	rec, ok := t.st.inventory[key]
	if !ok {
		return inventory.Record{}, &inventory.ShortageError{Key: key, Requested: qty, Available: decimal.Zero}
	}
	if rec.Quantity.LessThan(qty) {
		return inventory.Record{}, &inventory.ShortageError{Key: key, Requested: qty, Available: rec.Quantity}
	}
	rec.Quantity = rec.Quantity.Sub(qty)
	rec.UpdatedAt = t.now()
	t.st.inventory[key] = rec
	return rec, nil
}

func (t *tx) IncrementInventory(_ context.Context, key inventory.Key, qty decimal.Decimal) (inventory.Record, error) {
	rec, ok := t.st.inventory[key]
	if !ok {
		rec = inventory.Record{Key: key, Quantity: decimal.Zero}
	}
	rec.Quantity = rec.Quantity.Add(qty)
	rec.UpdatedAt = t.now()
	t.st.inventory[key] = rec
	return rec, nil
}

func (t *tx) NextOrderSeq(_ context.Context, day time.Time) (int, error) {
	k := day.UTC().Format(time.DateOnly)
	t.st.seq[k]++
	return t.st.seq[k], nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if t.failInsert != nil {
		return t.failInsert
	}
	if _, exists := t.st.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, other := range t.st.orders {
		if other.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s already exists", o.OrderNumber)
		}
		if o.IdempotencyKey != "" && other.IdempotencyKey == o.IdempotencyKey {
			return orders.ErrDuplicateIdempotencyKey
		}
	}
	t.st.orders[o.ID] = copyOrder(o)
	return nil
}

func (t *tx) OrderByIdempotencyKey(_ context.Context, key string) (orders.Order, bool, error) {
	o, ok := t.st.orderByKey(key)
	return o, ok, nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	return t.st.order(id)
}

func (t *tx) UpdateOrderState(_ context.Context, o orders.Order, from orders.Status) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, orders.ErrNotFound)
	}
	if cur.Status != from {
		return orders.ErrStatusChanged
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.DeliveryDate = o.DeliveryDate
	cur.EstimatedDeliveryDate = o.EstimatedDeliveryDate
	cur.Notes = o.Notes
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}
