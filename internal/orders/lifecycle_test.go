package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPending(t *testing.T, f *fixture, items ...orders.ItemRequest) orders.Order {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), request(items...), "user-1")
	require.NoError(t, err)
	return res.Order
}

func TestCancel_ReleasesEveryLineOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := createPending(t, f, line("p-1", "3", "50"), line("p-2", "5", "20"))
	require.True(t, dec("7").Equal(f.quantity(t, productKey("p-1"))))
	require.True(t, dec("5").Equal(f.quantity(t, productKey("p-2"))))

	cancelled, err := f.svc.Cancel(ctx, o.ID, "customer request", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-2"))))

	_, err = f.svc.Cancel(ctx, o.ID, "again", "staff-1")
	assert.ErrorIs(t, err, orders.ErrInvalidStatusTransition)
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))), "second cancel must not release again")
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-2"))))

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, stored.Status)
	assert.Equal(t, "customer request", f.store.AuditEntries()[1].Notes)
}

func TestCancel_ConcurrentCallsReleaseOnce(t *testing.T) {
	f := newFixture(t)
	o := createPending(t, f, line("p-1", "4", "50"))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Cancel(context.Background(), o.ID, "", "staff-1"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-1"))))
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := createPending(t, f, line("p-1", "2", "50"))

	accepted, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: orders.StatusAccepted}, "staff-1")
	require.NoError(t, err)
	require.NotNil(t, accepted.EstimatedDeliveryDate)
	assert.Equal(t, fixedNow.Add(24*time.Hour), *accepted.EstimatedDeliveryDate)
	assert.Empty(t, f.revenue.stores)

	shipped, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: orders.StatusShipped}, "staff-1")
	require.NoError(t, err)
	require.NotNil(t, shipped.DeliveryDate)
	assert.Equal(t, *accepted.EstimatedDeliveryDate, *shipped.DeliveryDate)

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: orders.StatusDelivered}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, delivered.Status)
	assert.Equal(t, orders.PaymentPaid, delivered.PaymentStatus)
	assert.Equal(t, []string{storeID}, f.revenue.stores)

	// Delivered keeps its reservation: nothing is released.
	assert.True(t, dec("8").Equal(f.quantity(t, productKey("p-1"))))

	for _, next := range []orders.Status{
		orders.StatusPending, orders.StatusAccepted, orders.StatusShipped,
		orders.StatusDelivered, orders.StatusCancelled, orders.StatusCompleted,
	} {
		_, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: next}, "staff-1")
		assert.ErrorIs(t, err, orders.ErrInvalidStatusTransition, "Delivered -> %s", next)
	}

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, stored.Status)
	assert.Equal(t, orders.PaymentPaid, stored.PaymentStatus)

	assert.Equal(t, []orders.NotificationKind{
		orders.NotifyConfirmation,
		orders.NotifyStatusUpdate,
		orders.NotifyStatusUpdate, orders.NotifyDelivery,
		orders.NotifyStatusUpdate,
	}, f.notifier.kinds())
	assert.Len(t, f.store.AuditEntries(), 4)
}

func TestUpdateStatus_AcceptedUsesRequestedDate(t *testing.T) {
	f := newFixture(t)
	want := fixedNow.Add(72 * time.Hour)

	it := line("p-1", "1", "50")
	req := request(it)
	req.DeliveryDate = &want
	res, err := f.svc.CreateOrder(context.Background(), req, "user-1")
	require.NoError(t, err)

	accepted, err := f.svc.UpdateStatus(context.Background(), res.Order.ID,
		orders.StatusUpdate{Status: orders.StatusAccepted}, "staff-1")
	require.NoError(t, err)
	require.NotNil(t, accepted.EstimatedDeliveryDate)
	assert.Equal(t, want, *accepted.EstimatedDeliveryDate)
}

func TestUpdateStatus_InvalidTransitionLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := createPending(t, f, line("p-1", "2", "50"))

	_, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: orders.StatusDelivered}, "staff-1")
	var te *orders.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, orders.StatusPending, te.From)
	assert.Equal(t, orders.StatusDelivered, te.To)

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Equal(t, orders.PaymentUnpaid, stored.PaymentStatus)
	assert.True(t, dec("8").Equal(f.quantity(t, productKey("p-1"))))
	assert.Len(t, f.store.AuditEntries(), 1)
}

func TestUpdateStatus_ShippedCanStillBeCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := createPending(t, f, line("p-2", "4", "20"))

	for _, s := range []orders.Status{orders.StatusAccepted, orders.StatusShipped, orders.StatusCancelled} {
		_, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusUpdate{Status: s}, "staff-1")
		require.NoError(t, err, s)
	}
	assert.True(t, dec("10").Equal(f.quantity(t, productKey("p-2"))))
}

func TestUpdateStatus_CompletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	o := createPending(t, f, line("p-1", "1", "50"))
	o.Status = orders.StatusCompleted
	f.store.PutOrder(o)

	_, err := f.svc.Cancel(context.Background(), o.ID, "", "staff-1")
	assert.ErrorIs(t, err, orders.ErrInvalidStatusTransition)
	assert.Empty(t, f.revenue.stores)
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), "nope", orders.StatusUpdate{Status: orders.StatusAccepted}, "staff-1")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
