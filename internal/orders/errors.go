package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrConfiguration           = errors.New("configuration error")
	ErrNoOnlineWarehouse       = fmt.Errorf("%w: no online warehouse registered", ErrConfiguration)
	ErrPersistence             = errors.New("persistence failure")

	// ErrStatusChanged is returned by a store when a conditional status write
	// finds the order no longer in the status it was read in.
	ErrStatusChanged = fmt.Errorf("%w: order status changed concurrently", ErrInvalidStatusTransition)

	// ErrDuplicateIdempotencyKey is returned by InsertOrder when another
	// order already carries the same idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// ErrInsufficientInventory is the inventory sentinel re-exported so callers of
// this package need not import the ledger.
var ErrInsufficientInventory = inventory.ErrInsufficientInventory

type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Field+": "+p.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

type RuleViolationError struct {
	Violations []Violation
}

func (e *RuleViolationError) Error() string {
	var rules []string
	for _, v := range e.Violations {
		if v.Severity == SeverityError {
			rules = append(rules, v.Rule)
		}
	}
	return "business rules violated: " + strings.Join(rules, ", ")
}

type InsufficientInventoryError struct {
	Shortages []Shortage
}

type Shortage struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	WarehouseID string `json:"warehouse_id"`
	Requested   string `json:"requested"`
	Available   string `json:"available"`
	Shortage    string `json:"shortage"`
}

func (e *InsufficientInventoryError) Error() string {
	ids := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		id := s.ProductID
		if s.VariantID != "" {
			id = s.VariantID
		}
		ids = append(ids, id)
	}
	return "insufficient inventory: " + strings.Join(ids, ", ")
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == inventory.ErrInsufficientInventory
}

func shortageFrom(se *inventory.ShortageError) Shortage {
	return Shortage{
		ProductID:   se.Key.ProductID,
		VariantID:   se.Key.VariantID,
		WarehouseID: se.Key.WarehouseID,
		Requested:   se.Requested.String(),
		Available:   se.Available.String(),
		Shortage:    se.Shortage().String(),
	}
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStatusTransition }
