// Package memstore is an in-process persistence gateway with the same
// transactional semantics as the postgres store. Each unit of work runs on a
// private copy of the data which replaces the shared copy only on success.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
)

type state struct {
	products   map[string]orders.Product
	variants   map[string]orders.Variant
	warehouses map[string]orders.Warehouse
	inventory  map[inventory.Key]inventory.Record
	orders     map[string]orders.Order
	seq        map[string]int
	purchases  map[string]orders.PurchaseOrder
}

func newState() *state {
	return &state{
		products:   map[string]orders.Product{},
		variants:   map[string]orders.Variant{},
		warehouses: map[string]orders.Warehouse{},
		inventory:  map[inventory.Key]inventory.Record{},
		orders:     map[string]orders.Order{},
		seq:        map[string]int{},
		purchases:  map[string]orders.PurchaseOrder{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	return c
}

type Store struct {
	mu         sync.Mutex
	data       *state
	audit      []orders.AuditEntry
	failInsert error
	now        func() time.Time
}

func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// ---- seeding ----

func (s *Store) AddProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

func (s *Store) AddVariant(v orders.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.variants[v.ID] = v
}

func (s *Store) AddWarehouse(w orders.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.warehouses[w.ID] = w
}

func (s *Store) SetInventory(key inventory.Key, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data.inventory[key]
	rec.Key = key
	rec.Quantity = qty
	rec.UpdatedAt = s.now()
	s.data.inventory[key] = rec
}

func (s *Store) SetMinStock(key inventory.Key, threshold decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data.inventory[key]
	rec.Key = key
	rec.MinStock = &threshold
	s.data.inventory[key] = rec
}

// PutOrder stores an order as-is. Used for data written by other channels.
func (s *Store) PutOrder(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[o.ID] = copyOrder(o)
}

func (s *Store) AddPurchaseOrder(p orders.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.purchases[p.ID] = p
}

// FailInsertOrder makes every following InsertOrder return err, nil resets.
func (s *Store) FailInsertOrder(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert = err
}

// ---- inspection ----

func (s *Store) Quantity(key inventory.Key) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.inventory[key]
	return rec.Quantity, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

func (s *Store) AuditEntries() []orders.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.AuditEntry(nil), s.audit...)
}

// ---- orders.Store ----

func (s *Store) GetProduct(_ context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.product(id)
}

func (s *Store) GetVariant(_ context.Context, id string) (orders.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.variant(id)
}

func (s *Store) GetInventory(_ context.Context, key inventory.Key) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.record(key)
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.order(id)
}

func (s *Store) OrderByIdempotencyKey(_ context.Context, key string) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orderByKey(key)
	return o, ok, nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &tx{st: work, failInsert: s.failInsert, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

// ---- orders.WarehouseDirectory ----

func (s *Store) OnlineWarehouse(_ context.Context) (orders.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var online []orders.Warehouse
	for _, w := range s.data.warehouses {
		if w.Online {
			online = append(online, w)
		}
	}
	switch len(online) {
	case 0:
		return orders.Warehouse{}, orders.ErrNoOnlineWarehouse
	case 1:
		return online[0], nil
	default:
		return orders.Warehouse{}, fmt.Errorf("%w: %d warehouses flagged online", orders.ErrConfiguration, len(online))
	}
}

// ---- orders.AuditSink ----

func (s *Store) Record(_ context.Context, e orders.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ---- revenue.Source ----

func (s *Store) SumOrderTotals(_ context.Context, storeID string, statuses []orders.Status) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[orders.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	total := decimal.Zero
	for _, o := range s.data.orders {
		if want[o.Status] && (storeID == "" || o.StoreID == storeID) {
			total = total.Add(o.TotalAmount)
		}
	}
	return total, nil
}

func (s *Store) SumPurchaseCosts(_ context.Context, storeID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.data.purchases {
		if p.Status == orders.PurchaseOrderReceived && (storeID == "" || p.StoreID == storeID) {
			total = total.Add(p.TotalAmount)
		}
	}
	return total, nil
}

func (s *Store) StoreIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, w := range s.data.warehouses {
		if w.StoreID != "" {
			set[w.StoreID] = true
		}
	}
	for _, o := range s.data.orders {
		if o.StoreID != "" {
			set[o.StoreID] = true
		}
	}
	for _, p := range s.data.purchases {
		if p.StoreID != "" {
			set[p.StoreID] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ---- state lookups ----

func (st *state) product(id string) (orders.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	return p, nil
}

func (st *state) variant(id string) (orders.Variant, error) {
	v, ok := st.variants[id]
	if !ok {
		return orders.Variant{}, fmt.Errorf("variant %s: %w", id, orders.ErrNotFound)
	}
	return v, nil
}

func (st *state) record(key inventory.Key) (inventory.Record, error) {
	rec, ok := st.inventory[key]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (st *state) order(id string) (orders.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (st *state) orderByKey(key string) (orders.Order, bool) {
	if key == "" {
		return orders.Order{}, false
	}
	for _, o := range st.orders {
		if o.IdempotencyKey == key {
			return copyOrder(o), true
		}
	}
	return orders.Order{}, false
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o
}
