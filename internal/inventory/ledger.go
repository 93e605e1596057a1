package inventory

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Item is one line to reserve or release.
type Item struct {
	ProductID       string
	VariantID       string
	WarehouseID     string
	AlwaysAvailable bool
	Quantity        decimal.Decimal
}

func (it Item) Key() Key {
	return Key{ProductID: it.ProductID, VariantID: it.VariantID, WarehouseID: it.WarehouseID}
}

type Reservation struct {
	Key       Key
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	BelowMin  bool
	Untracked bool // AlwaysAvailable, nothing was written
}

// Availability is the read-only view the order validator reports per line.
// Demand sums every line of the request that targets the same key, which is
// what the transactional reservation will eventually have to satisfy.
type Availability struct {
	Key        Key
	Requested  decimal.Decimal
	Demand     decimal.Decimal
	Available  decimal.Decimal
	Sufficient bool
	Shortage   decimal.Decimal
	Untracked  bool
}

type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	return &Ledger{log: logging.OrNop(log)}
}

// Reserve decrements stock for one line inside the caller's unit of work.
func (l *Ledger) Reserve(ctx context.Context, st Store, it Item) (Reservation, error) {
	if !it.Quantity.IsPositive() {
		return Reservation{}, ErrInvalidQuantity
	}
	if it.AlwaysAvailable {
		return Reservation{Key: it.Key(), Quantity: it.Quantity, Untracked: true}, nil
	}

	rec, err := st.DecrementInventory(ctx, it.Key(), it.Quantity)
	if err != nil {
		var se *ShortageError
		if errors.As(err, &se) {
			l.log.Info("reservation rejected",
				zap.String("key", it.Key().String()),
				zap.String("requested", se.Requested.String()),
				zap.String("available", se.Available.String()),
			)
		}
		return Reservation{}, err
	}

	res := Reservation{Key: rec.Key, Quantity: it.Quantity, Remaining: rec.Quantity, BelowMin: rec.BelowMin()}
	if res.BelowMin {
		l.log.Warn("stock below minimum",
			zap.String("key", rec.Key.String()),
			zap.String("remaining", rec.Quantity.String()),
			zap.String("min_stock", rec.MinStock.String()),
		)
	}
	return res, nil
}

// Release gives stock back. Callers release each reserved line exactly once.
func (l *Ledger) Release(ctx context.Context, st Store, it Item) error {
	if !it.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if it.AlwaysAvailable {
		return nil
	}
	_, err := st.IncrementInventory(ctx, it.Key(), it.Quantity)
	return err
}

// Availability checks every line against current stock without writing.
func (l *Ledger) Availability(ctx context.Context, r Reader, items []Item) ([]Availability, error) {
	demand := make(map[Key]decimal.Decimal, len(items))
	for _, it := range items {
		if it.AlwaysAvailable {
			continue
		}
		demand[it.Key()] = demand[it.Key()].Add(it.Quantity)
	}

	stock := make(map[Key]decimal.Decimal, len(demand))
	for k := range demand {
		rec, err := r.GetInventory(ctx, k)
		switch {
		case errors.Is(err, ErrRecordNotFound):
			stock[k] = decimal.Zero
		case err != nil:
			return nil, err
		default:
			stock[k] = rec.Quantity
		}
	}

	out := make([]Availability, 0, len(items))
	for _, it := range items {
		k := it.Key()
		if it.AlwaysAvailable {
			out = append(out, Availability{
				Key: k, Requested: it.Quantity, Demand: it.Quantity, Available: it.Quantity,
				Sufficient: true, Shortage: decimal.Zero, Untracked: true,
			})
			continue
		}
		a := Availability{
			Key:       k,
			Requested: it.Quantity,
			Demand:    demand[k],
			Available: stock[k],
			Shortage:  decimal.Zero,
		}
		a.Sufficient = a.Demand.LessThanOrEqual(a.Available)
		if !a.Sufficient {
			a.Shortage = a.Demand.Sub(a.Available)
		}
		out = append(out, a)
	}
	return out, nil
}
