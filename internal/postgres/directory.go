package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
)

type Warehouses struct{ DB Pool }

func (w *Warehouses) OnlineWarehouse(ctx context.Context) (orders.Warehouse, error) {
	rows, err := w.DB.Query(ctx, `SELECT id, name, store_id, is_online FROM warehouses WHERE is_online LIMIT 2`)
	if err != nil {
		return orders.Warehouse{}, err
	}
	defer rows.Close()

	var found []orders.Warehouse
	for rows.Next() {
		var wh orders.Warehouse
		if err := rows.Scan(&wh.ID, &wh.Name, &wh.StoreID, &wh.Online); err != nil {
			return orders.Warehouse{}, err
		}
		found = append(found, wh)
	}
	if err := rows.Err(); err != nil {
		return orders.Warehouse{}, err
	}
	switch len(found) {
	case 0:
		return orders.Warehouse{}, orders.ErrNoOnlineWarehouse
	case 1:
		return found[0], nil
	default:
		return orders.Warehouse{}, fmt.Errorf("%w: more than one warehouse flagged online", orders.ErrConfiguration)
	}
}

// AuditLog writes audit entries to audit_logs outside the caller's
// transaction; the entry describes work that already committed.
type AuditLog struct{ DB Pool }

func (a *AuditLog) Record(ctx context.Context, e orders.AuditEntry) error {
	before, err := snapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := snapshot(e.After)
	if err != nil {
		return err
	}
	_, err = a.DB.Exec(ctx, `
		INSERT INTO audit_logs (entity_type, entity_id, action, before, after, actor_id, notes, created_at)
		VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6,$7,$8)`,
		e.EntityType, e.EntityID, e.Action, before, after, e.ActorID, e.Notes, e.At)
	return err
}

func snapshot(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit snapshot: %w", err)
	}
	s := string(b)
	return &s, nil
}

// Revenue reads the source-of-truth sums for the revenue aggregator.
type Revenue struct{ DB Pool }

func (r *Revenue) SumOrderTotals(ctx context.Context, storeID string, statuses []orders.Status) (decimal.Decimal, error) {
	sts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		sts = append(sts, string(s))
	}
	var total string
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)::text FROM orders
		WHERE status = ANY($1) AND ($2 = '' OR store_id = $2)`, sts, storeID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

func (r *Revenue) SumPurchaseCosts(ctx context.Context, storeID string) (decimal.Decimal, error) {
	var total string
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)::text FROM purchase_orders
		WHERE status = $1 AND ($2 = '' OR store_id = $2)`, orders.PurchaseOrderReceived, storeID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

func (r *Revenue) StoreIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT store_id FROM warehouses
		UNION SELECT store_id FROM orders
		UNION SELECT store_id FROM purchase_orders
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != "" {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}
