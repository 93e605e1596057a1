package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the part of *pgxpool.Pool the stores use.
type Pool interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type Store struct{ DB Pool }

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, s.DB, id)
}

func (s *Store) GetVariant(ctx context.Context, id string) (orders.Variant, error) {
	return getVariant(ctx, s.DB, id)
}

func (s *Store) GetInventory(ctx context.Context, key inventory.Key) (inventory.Record, error) {
	return getInventory(ctx, s.DB, key)
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, s.DB, id, false)
}

func (s *Store) OrderByIdempotencyKey(ctx context.Context, key string) (orders.Order, bool, error) {
	return orderByKey(ctx, s.DB, key)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func getProduct(ctx context.Context, q querier, id string) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	err := q.QueryRow(ctx, `
		SELECT id, sku, name, unit, price::text, always_available, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &price, &p.AlwaysAvailable, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	if err != nil {
		return orders.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Product{}, err
	}
	return p, nil
}

func getVariant(ctx context.Context, q querier, id string) (orders.Variant, error) {
	var (
		v     orders.Variant
		price *string
		attrs string
	)
	err := q.QueryRow(ctx, `
		SELECT id, product_id, name, price_override::text, attributes
		FROM product_variants WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.Name, &price, &attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Variant{}, fmt.Errorf("variant %s: %w", id, orders.ErrNotFound)
	}
	if err != nil {
		return orders.Variant{}, err
	}
	if v.PriceOverride, err = optDecimal(price); err != nil {
		return orders.Variant{}, err
	}
	if v.Attributes, err = orders.DecodeAttributes(attrs); err != nil {
		return orders.Variant{}, err
	}
	return v, nil
}

func getInventory(ctx context.Context, q querier, key inventory.Key) (inventory.Record, error) {
	row := q.QueryRow(ctx, `
		SELECT quantity::text, min_stock::text, max_stock::text, updated_at
		FROM inventory WHERE product_id=$1 AND variant_id=$2 AND warehouse_id=$3`,
		key.ProductID, key.VariantID, key.WarehouseID)
	rec, err := scanRecord(key, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, err
}

func scanRecord(key inventory.Key, row pgx.Row) (inventory.Record, error) {
	var (
		rec           inventory.Record
		qty           string
		minStk, maxSt *string
	)
	if err := row.Scan(&qty, &minStk, &maxSt, &rec.UpdatedAt); err != nil {
		return inventory.Record{}, err
	}
	rec.Key = key
	var err error
	if rec.Quantity, err = decimal.NewFromString(qty); err != nil {
		return inventory.Record{}, err
	}
	if rec.MinStock, err = optDecimal(minStk); err != nil {
		return inventory.Record{}, err
	}
	if rec.MaxStock, err = optDecimal(maxSt); err != nil {
		return inventory.Record{}, err
	}
	return rec, nil
}

const orderColumns = `
	id, order_number, store_id, customer_name, customer_email, customer_phone, customer_address,
	status, payment_status, total_amount::text, priority, delivery_date, estimated_delivery_date,
	notes, created_by, created_at, updated_at, COALESCE(idempotency_key, '')`

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(ctx, q, q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return o, err
}

func orderByKey(ctx context.Context, q querier, key string) (orders.Order, bool, error) {
	if key == "" {
		return orders.Order{}, false, nil
	}
	o, err := scanOrder(ctx, q, q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE idempotency_key=$1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func scanOrder(ctx context.Context, q querier, row pgx.Row) (orders.Order, error) {
	var (
		o             orders.Order
		status, paySt string
		total         string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.StoreID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.CustomerAddress,
		&status, &paySt, &total, &o.Priority, &o.DeliveryDate, &o.EstimatedDeliveryDate,
		&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.IdempotencyKey,
	)
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(paySt)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return orders.Order{}, err
	}
	if o.Items, err = getItems(ctx, q, o.ID); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func getItems(ctx context.Context, q querier, orderID string) ([]orders.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, warehouse_id,
		       quantity::text, unit_price::text, total_price::text, unit, notes, untracked
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderItem
	for rows.Next() {
		var (
			it                  orders.OrderItem
			qty, price, lineTot string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.WarehouseID,
			&qty, &price, &lineTot, &it.Unit, &it.Notes, &it.Untracked); err != nil {
			return nil, err
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if it.TotalPrice, err = decimal.NewFromString(lineTot); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func optDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
