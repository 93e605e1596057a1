package orders_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	whOnline = "wh-online"
	storeID  = "store-1"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func productKey(id string) inventory.Key {
	return inventory.Key{ProductID: id, WarehouseID: whOnline}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []orders.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n orders.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) kinds() []orders.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]orders.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type recordingRevenue struct {
	mu     sync.Mutex
	stores []string
}

func (r *recordingRevenue) RevenueChanged(_ context.Context, storeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, storeID)
}

type fixture struct {
	store    *memstore.Store
	svc      *orders.Service
	notifier *recordingNotifier
	revenue  *recordingRevenue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.AddWarehouse(orders.Warehouse{ID: whOnline, Name: "Web", StoreID: storeID, Online: true})
	st.AddWarehouse(orders.Warehouse{ID: "wh-back", Name: "Back room", StoreID: storeID})
	st.AddProduct(orders.Product{ID: "p-1", SKU: "SKU-1", Name: "Flour", Unit: "kg", Price: dec("50")})
	st.AddProduct(orders.Product{ID: "p-2", SKU: "SKU-2", Name: "Sugar", Unit: "kg", Price: dec("20")})
	st.AddProduct(orders.Product{ID: "p-free", SKU: "SKU-F", Name: "Gift wrap", Price: dec("15"), AlwaysAvailable: true})
	st.AddVariant(orders.Variant{ID: "v-1", ProductID: "p-1", Name: "5kg bag", Attributes: map[string]string{"size": "5kg"}})
	st.SetInventory(productKey("p-1"), dec("10"))
	st.SetInventory(productKey("p-2"), dec("10"))

	f := &fixture{store: st, notifier: &recordingNotifier{}, revenue: &recordingRevenue{}}
	f.svc = orders.NewService(orders.Deps{
		Store:      st,
		Warehouses: st,
		Rules:      config.DefaultRules(),
		Audit:      st,
		Notifier:   f.notifier,
		Revenue:    f.revenue,
		Now:        func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) quantity(t *testing.T, key inventory.Key) decimal.Decimal {
	t.Helper()
	q, ok := f.store.Quantity(key)
	require.True(t, ok, "no inventory row for %s", key)
	return q
}

func request(items ...orders.ItemRequest) orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		CustomerName:  "Ana Putri",
		CustomerEmail: "ana@example.com",
		Items:         items,
	}
}

func line(productID, qty, price string) orders.ItemRequest {
	return orders.ItemRequest{ProductID: productID, Quantity: dec(qty), UnitPrice: dec(price)}
}

func TestCreateOrder_ReservesAndTotals(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "2", "50.00")), "user-1")
	require.NoError(t, err)

	o := res.Order
	assert.True(t, dec("100.00").Equal(o.TotalAmount), "total = %s", o.TotalAmount)
	assert.True(t, dec("8").Equal(f.quantity(t, productKey("p-1"))))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, storeID, o.StoreID)
	assert.Equal(t, "ORD-20250314-0001", o.OrderNumber)
	assert.Equal(t, "user-1", o.CreatedBy)
	require.Len(t, o.Items, 1)
	assert.Equal(t, whOnline, o.Items[0].WarehouseID)
	assert.Equal(t, "kg", o.Items[0].Unit)

	stored, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, stored.OrderNumber)

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, "create", audit[0].Action)
	assert.Equal(t, o.ID, audit[0].EntityID)

	assert.Equal(t, []orders.NotificationKind{orders.NotifyConfirmation}, f.notifier.kinds())
}

func TestCreateOrder_TotalEqualsSumOfLines(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateOrder(context.Background(), request(
		line("p-1", "1.2345", "33.33"),
		line("p-2", "3", "19.99"),
	), "user-1")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range res.Order.Items {
		assert.True(t, it.TotalPrice.Equal(it.Quantity.Mul(it.UnitPrice).Round(orders.CurrencyPlaces)))
		sum = sum.Add(it.TotalPrice)
	}
	assert.True(t, sum.Equal(res.Order.TotalAmount))
	assert.True(t, dec("101.12").Equal(res.Order.TotalAmount), "total = %s", res.Order.TotalAmount)
}

func TestCreateOrder_TrailingZerosFitScale(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "2.500000", "50.000")), "user-1")
	require.NoError(t, err)
	assert.True(t, dec("125").Equal(res.Order.TotalAmount))
	assert.True(t, dec("7.5").Equal(f.quantity(t, productKey("p-1"))))
}

func TestCreateOrder_OrderNumbersIncrementPerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, request(line("p-1", "1", "50")), "user-1")
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(ctx, request(line("p-2", "1", "20")), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "ORD-20250314-0001", first.Order.OrderNumber)
	assert.Equal(t, "ORD-20250314-0002", second.Order.OrderNumber)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
}

func TestCreateOrder_InsufficientInventory(t *testing.T) {
	f := newFixture(t)
	f.store.SetInventory(productKey("p-1"), dec("1"))

	_, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "2", "50.00")), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrInsufficientInventory)

	var ie *orders.InsufficientInventoryError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Shortages, 1)
	assert.Equal(t, "p-1", ie.Shortages[0].ProductID)
	assert.Equal(t, "2", ie.Shortages[0].Requested)
	assert.Equal(t, "1", ie.Shortages[0].Available)
	assert.Equal(t, "1", ie.Shortages[0].Shortage)

	assert.True(t, dec("1").Equal(f.quantity(t, productKey("p-1"))))
	assert.Zero(t, f.store.OrderCount())
	assert.Empty(t, f.store.AuditEntries())
	assert.Empty(t, f.notifier.kinds())
}

func TestCreateOrder_MissingInventoryRowIsShortage(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(orders.Product{ID: "p-new", Name: "Yeast", Price: dec("12")})

	_, err := f.svc.CreateOrder(context.Background(), request(line("p-new", "1", "12")), "user-1")
	assert.ErrorIs(t, err, orders.ErrInsufficientInventory)
	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrder_PartialShortageRollsBackEveryLine(t *testing.T) {
	f := newFixture(t)
	f.store.SetInventory(productKey("p-2"), dec("2"))

	_, err := f.svc.CreateOrder(context.Background(), request(
		line("p-1", "4", "50"),
		line("p-2", "3", "20"),
	), "user-1")
	assert.ErrorIs(t, err, orders.ErrInsufficientInventory)

	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
	assert.True(t, dec("2").Equal(f.quantity(t, productKey("p-2"))))
	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrder_DemandAcrossLinesSharingAKey(t *testing.T) {
	f := newFixture(t)

	// 6 + 6 on the same row exceeds 10 even though each line alone fits.
	_, err := f.svc.CreateOrder(context.Background(), request(
		line("p-1", "6", "50"),
		line("p-1", "6", "50"),
	), "user-1")
	var ie *orders.InsufficientInventoryError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Shortages, 1)
	assert.Equal(t, "12", ie.Shortages[0].Requested)
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
}

func TestCreateOrder_InsertFailureRollsBackReservations(t *testing.T) {
	f := newFixture(t)
	f.store.FailInsertOrder(errors.New("disk full"))

	_, err := f.svc.CreateOrder(context.Background(), request(
		line("p-1", "2", "50"),
		line("p-2", "5", "20"),
	), "user-1")
	require.ErrorIs(t, err, orders.ErrPersistence)
	assert.NotContains(t, err.Error(), "disk full")

	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-2"))))
	assert.Zero(t, f.store.OrderCount())

	f.store.FailInsertOrder(nil)
	res, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "2", "50")), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250314-0001", res.Order.OrderNumber, "sequence of the failed attempt must not be consumed")
}

func TestCreateOrder_AlwaysAvailableIsNotTracked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, request(line("p-free", "100", "15")), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Order.Items[0].Untracked)

	_, ok := f.store.Quantity(productKey("p-free"))
	assert.False(t, ok, "always-available product must not get an inventory row")

	_, err = f.svc.Cancel(ctx, res.Order.ID, "", "user-1")
	require.NoError(t, err)
	_, ok = f.store.Quantity(productKey("p-free"))
	assert.False(t, ok)
}

func TestCreateOrder_VariantScopedInventory(t *testing.T) {
	f := newFixture(t)
	variantKey := inventory.Key{ProductID: "p-1", VariantID: "v-1", WarehouseID: whOnline}
	f.store.SetInventory(variantKey, dec("4"))
	ctx := context.Background()

	it := line("p-1", "3", "60")
	it.VariantID = "v-1"
	res, err := f.svc.CreateOrder(ctx, request(it), "user-1")
	require.NoError(t, err)

	assert.True(t, dec("1").Equal(f.quantity(t, variantKey)))
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))), "parent product row must stay untouched")

	_, err = f.svc.Cancel(ctx, res.Order.ID, "changed mind", "user-1")
	require.NoError(t, err)
	assert.True(t, dec("4").Equal(f.quantity(t, variantKey)))
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
}

func TestCreateOrder_LowStockIsReported(t *testing.T) {
	f := newFixture(t)
	f.store.SetMinStock(productKey("p-1"), dec("5"))

	res, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "6", "50")), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{productKey("p-1").String()}, res.LowStock)
}

func TestCreateOrder_ValidationProblems(t *testing.T) {
	tests := []struct {
		name   string
		req    orders.CreateOrderRequest
		fields []string
	}{
		{
			name:   "missing name and items",
			req:    orders.CreateOrderRequest{},
			fields: []string{"customer_name", "items"},
		},
		{
			name: "bad email",
			req: orders.CreateOrderRequest{
				CustomerName: "Ana", CustomerEmail: "not-an-email",
				Items: []orders.ItemRequest{line("p-1", "1", "50")},
			},
			fields: []string{"customer_email"},
		},
		{
			name:   "non-positive quantity and price",
			req:    request(line("p-1", "0", "-1")),
			fields: []string{"items[0].quantity", "items[0].unit_price"},
		},
		{
			name:   "quantity finer than four places",
			req:    request(line("p-1", "1.00005", "50")),
			fields: []string{"items[0].quantity"},
		},
		{
			name:   "unit price finer than cents",
			req:    request(line("p-1", "1", "33.333")),
			fields: []string{"items[0].unit_price"},
		},
		{
			name:   "quantity rounding to zero",
			req:    request(line("p-1", "0.00001", "50")),
			fields: []string{"items[0].quantity"},
		},
		{
			name:   "unknown product",
			req:    request(line("p-404", "1", "50")),
			fields: []string{"items[0].product_id"},
		},
		{
			name: "variant of another product",
			req: request(orders.ItemRequest{
				ProductID: "p-2", VariantID: "v-1", Quantity: dec("1"), UnitPrice: dec("20"),
			}),
			fields: []string{"items[0].variant_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.req, "user-1")

			var ve *orders.ValidationError
			require.ErrorAs(t, err, &ve)
			var got []string
			for _, p := range ve.Problems {
				got = append(got, p.Field)
			}
			assert.Equal(t, tt.fields, got)
			assert.Zero(t, f.store.OrderCount())
			assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
		})
	}
}

func TestCreateOrder_BusinessRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, request(line("p-2", "1", "9.99")), "user-1")
	var rv *orders.RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Equal(t, orders.RuleMinOrderValue, rv.Violations[0].Rule)
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-2"))))

	res, err := f.svc.CreateOrder(ctx, request(line("p-2", "1", "10.00")), "user-1")
	require.NoError(t, err, "an order exactly at the minimum is accepted")
	assert.True(t, dec("10").Equal(res.Order.TotalAmount))

	res, err = f.svc.CreateOrder(ctx, request(line("p-2", "1", "5"), line("p-2", "1", "5")), "user-1")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, orders.RuleDuplicateProduct, res.Warnings[0].Rule)
}

func TestCreateOrder_OnlineWarehouseMisconfigured(t *testing.T) {
	t.Run("none online", func(t *testing.T) {
		st := memstore.New()
		st.AddProduct(orders.Product{ID: "p-1", Price: dec("50")})
		svc := orders.NewService(orders.Deps{Store: st, Warehouses: st, Rules: config.DefaultRules()})

		_, err := svc.CreateOrder(context.Background(), request(line("p-1", "1", "50")), "user-1")
		assert.ErrorIs(t, err, orders.ErrConfiguration)
		assert.ErrorIs(t, err, orders.ErrNoOnlineWarehouse)
	})

	t.Run("two online", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddWarehouse(orders.Warehouse{ID: "wh-2", StoreID: storeID, Online: true})

		_, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "1", "50")), "user-1")
		assert.ErrorIs(t, err, orders.ErrConfiguration)
		assert.Zero(t, f.store.OrderCount())
	})
}

func TestCreateOrder_NotifierFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")

	res, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "1", "50")), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.OrderCount())
	assert.NotEmpty(t, res.Order.ID)
}

func TestCreateOrder_ConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	const workers = 25

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		short     atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), request(line("p-1", "1", "50")), "user-1")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, orders.ErrInsufficientInventory):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, succeeded.Load())
	assert.EqualValues(t, workers-10, short.Load())
	assert.True(t, decimal.Zero.Equal(f.quantity(t, productKey("p-1"))))
	assert.Equal(t, 10, f.store.OrderCount())
}

func TestPreview_DoesNotReserve(t *testing.T) {
	f := newFixture(t)

	rep, rules, err := f.svc.Preview(context.Background(), request(line("p-1", "12", "50")))
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	require.Len(t, rep.Shortages(), 1)
	assert.True(t, rules.Passed())
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
	assert.Zero(t, f.store.OrderCount())
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
