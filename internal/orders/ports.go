package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
)

type Catalog interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	GetVariant(ctx context.Context, id string) (Variant, error)
}

type IdempotencyIndex interface {
	// OrderByIdempotencyKey finds the order created under key. A miss is
	// (Order{}, false, nil).
	OrderByIdempotencyKey(ctx context.Context, key string) (Order, bool, error)
}

// Tx is one unit of work. Everything written through it commits or rolls
// back together.
type Tx interface {
	Catalog
	IdempotencyIndex
	inventory.Reader
	inventory.Store

	// NextOrderSeq allocates the next per-day sequence number, starting at 1.
	NextOrderSeq(ctx context.Context, day time.Time) (int, error)
	// InsertOrder stores the order with its items. A clash on the idempotency
	// key is ErrDuplicateIdempotencyKey.
	InsertOrder(ctx context.Context, o Order) error
	// LockOrder loads an order with its items and holds it against other
	// writers until the unit of work ends.
	LockOrder(ctx context.Context, id string) (Order, error)
	// UpdateOrderState persists status, payment status, dates and notes,
	// provided the stored status still equals from. Otherwise ErrStatusChanged.
	UpdateOrderState(ctx context.Context, o Order, from Status) error
}

type Store interface {
	Catalog
	IdempotencyIndex
	inventory.Reader
	GetOrder(ctx context.Context, id string) (Order, error)
	// InTx runs fn in a transaction, rolling back when fn returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type WarehouseDirectory interface {
	// OnlineWarehouse returns the single warehouse used for web reservations
	// or an error wrapping ErrConfiguration.
	OnlineWarehouse(ctx context.Context) (Warehouse, error)
}

type AuditEntry struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Before     any       `json:"before,omitempty"`
	After      any       `json:"after,omitempty"`
	ActorID    string    `json:"actor_id"`
	Notes      string    `json:"notes,omitempty"`
	At         time.Time `json:"at"`
}

type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

type NotificationKind string

const (
	NotifyConfirmation NotificationKind = "confirmation"
	NotifyStatusUpdate NotificationKind = "status_update"
	NotifyDelivery     NotificationKind = "delivery"
)

type Notification struct {
	OrderID       string           `json:"order_id"`
	OrderNumber   string           `json:"order_number"`
	Kind          NotificationKind `json:"kind"`
	Status        Status           `json:"status"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	DeliveryDate  *time.Time       `json:"delivery_date,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// RevenueObserver is told when a transition moves an order into or out of
// the recognized-revenue set for a store.
type RevenueObserver interface {
	RevenueChanged(ctx context.Context, storeID string)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }

type noopRevenue struct{}

func (noopRevenue) RevenueChanged(context.Context, string) {}
