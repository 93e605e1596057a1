package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation   = "23505"
	idempotencyKeyIdx = "orders_idempotency_key_idx"
)

type Tx struct{ tx pgx.Tx }

func (t *Tx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *Tx) GetVariant(ctx context.Context, id string) (orders.Variant, error) {
	return getVariant(ctx, t.tx, id)
}

func (t *Tx) GetInventory(ctx context.Context, key inventory.Key) (inventory.Record, error) {
	return getInventory(ctx, t.tx, key)
}

// DecrementInventory is a single conditional UPDATE: the row lock taken by
// the update serializes concurrent reservations on the same key and the
// WHERE clause rejects any that would go negative.
func (t *Tx) DecrementInventory(ctx context.Context, key inventory.Key, qty decimal.Decimal) (inventory.Record, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE inventory
		SET quantity = quantity - $4::numeric, updated_at = now()
		WHERE product_id=$1 AND variant_id=$2 AND warehouse_id=$3 AND quantity >= $4::numeric
		RETURNING quantity::text, min_stock::text, max_stock::text, updated_at`,
		key.ProductID, key.VariantID, key.WarehouseID, qty.String())
	rec, err := scanRecord(key, row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return inventory.Record{}, err
	}

	cur, err := getInventory(ctx, t.tx, key)
	switch {
	case errors.Is(err, inventory.ErrRecordNotFound):
		return inventory.Record{}, &inventory.ShortageError{Key: key, Requested: qty, Available: decimal.Zero}
	case err != nil:
		return inventory.Record{}, err
	}
	return inventory.Record{}, &inventory.ShortageError{Key: key, Requested: qty, Available: cur.Quantity}
}

func (t *Tx) IncrementInventory(ctx context.Context, key inventory.Key, qty decimal.Decimal) (inventory.Record, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO inventory (product_id, variant_id, warehouse_id, quantity)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (product_id, variant_id, warehouse_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING quantity::text, min_stock::text, max_stock::text, updated_at`,
		key.ProductID, key.VariantID, key.WarehouseID, qty.String())
	return scanRecord(key, row)
}

func (t *Tx) NextOrderSeq(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_number_seq (day, seq) VALUES ($1::date, 1)
		ON CONFLICT (day) DO UPDATE SET seq = order_number_seq.seq + 1
		RETURNING seq`, day.UTC().Format(time.DateOnly)).Scan(&seq)
	return seq, err
}

func (t *Tx) OrderByIdempotencyKey(ctx context.Context, key string) (orders.Order, bool, error) {
	return orderByKey(ctx, t.tx, key)
}

func (t *Tx) InsertOrder(ctx context.Context, o orders.Order) error {
	var idemKey *string
	if o.IdempotencyKey != "" {
		idemKey = &o.IdempotencyKey
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, store_id, customer_name, customer_email, customer_phone,
		                    customer_address, status, payment_status, total_amount, priority, delivery_date,
		                    estimated_delivery_date, notes, created_by, created_at, updated_at, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.OrderNumber, o.StoreID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.CustomerAddress, string(o.Status), string(o.PaymentStatus), o.TotalAmount.String(), o.Priority,
		o.DeliveryDate, o.EstimatedDeliveryDate, o.Notes, o.CreatedBy, o.CreatedAt, o.UpdatedAt, idemKey)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == idempotencyKeyIdx {
		return orders.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, warehouse_id,
			                         quantity, unit_price, total_price, unit, notes, untracked)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11)`,
			it.ID, o.ID, it.ProductID, it.VariantID, it.WarehouseID,
			it.Quantity.String(), it.UnitPrice.String(), it.TotalPrice.String(), it.Unit, it.Notes, it.Untracked)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *Tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *Tx) UpdateOrderState(ctx context.Context, o orders.Order, from orders.Status) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, delivery_date=$4, estimated_delivery_date=$5, notes=$6, updated_at=$7
		WHERE id=$1 AND status=$8`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.DeliveryDate, o.EstimatedDeliveryDate,
		o.Notes, o.UpdatedAt, string(from))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrStatusChanged
	}
	return nil
}
