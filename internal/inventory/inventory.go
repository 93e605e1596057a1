package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrRecordNotFound        = errors.New("inventory record not found")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
)

// Key identifies one inventory row. A non-empty VariantID scopes the row to
// the variant; the parent product's row is never touched in that case.
type Key struct {
	ProductID   string
	VariantID   string
	WarehouseID string
}

func (k Key) IsVariant() bool { return k.VariantID != "" }

// ItemID is the product-or-variant id the row is keyed by.
func (k Key) ItemID() string {
	if k.IsVariant() {
		return k.VariantID
	}
	return k.ProductID
}

func (k Key) String() string {
	if k.IsVariant() {
		return fmt.Sprintf("variant:%s@%s", k.VariantID, k.WarehouseID)
	}
	return fmt.Sprintf("product:%s@%s", k.ProductID, k.WarehouseID)
}

type Record struct {
	Key       Key
	Quantity  decimal.Decimal
	MinStock  *decimal.Decimal
	MaxStock  *decimal.Decimal
	UpdatedAt time.Time
}

func (r Record) BelowMin() bool {
	return r.MinStock != nil && r.Quantity.LessThan(*r.MinStock)
}

// Reader is the read-only half of the persistence gateway.
type Reader interface {
	GetInventory(ctx context.Context, key Key) (Record, error)
}

// Store is what the ledger writes through. Implementations must make
// DecrementInventory a single conditional write so that concurrent callers on
// the same key can never drive the quantity below zero.
type Store interface {
	// DecrementInventory subtracts qty only when the row holds at least qty.
	// It returns a *ShortageError otherwise (also when the row is missing).
	DecrementInventory(ctx context.Context, key Key, qty decimal.Decimal) (Record, error)
	// IncrementInventory adds qty, creating a zero row first if none exists.
	IncrementInventory(ctx context.Context, key Key, qty decimal.Decimal) (Record, error)
}

type ShortageError struct {
	Key       Key
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %s, available %s",
		e.Key, e.Requested, e.Available)
}

func (e *ShortageError) Is(target error) bool { return target == ErrInsufficientInventory }

func (e *ShortageError) Shortage() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}
