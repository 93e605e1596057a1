package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/shopspring/decimal"
)

const maxNameLength = 200

// Line is a request item resolved against the catalog.
type Line struct {
	Request ItemRequest
	Product Product
	Variant *Variant
}

func (l Line) inventoryItem(warehouseID string) inventory.Item {
	return inventory.Item{
		ProductID:       l.Product.ID,
		VariantID:       l.Request.VariantID,
		WarehouseID:     warehouseID,
		AlwaysAvailable: l.Product.AlwaysAvailable,
		Quantity:        l.Request.Quantity,
	}
}

type ValidationReport struct {
	Problems     []Problem                `json:"problems,omitempty"`
	Total        decimal.Decimal          `json:"total"`
	Availability []inventory.Availability `json:"-"`
	Lines        []Line                   `json:"-"`
}

func (r ValidationReport) Valid() bool { return len(r.Problems) == 0 }

// Shortages lists lines whose combined demand exceeds stock.
func (r ValidationReport) Shortages() []Shortage {
	var out []Shortage
	seen := map[inventory.Key]bool{}
	for _, a := range r.Availability {
		if a.Sufficient || seen[a.Key] {
			continue
		}
		seen[a.Key] = true
		out = append(out, Shortage{
			ProductID:   a.Key.ProductID,
			VariantID:   a.Key.VariantID,
			WarehouseID: a.Key.WarehouseID,
			Requested:   a.Demand.String(),
			Available:   a.Available.String(),
			Shortage:    a.Shortage.String(),
		})
	}
	return out
}

// onlyShortages reports whether stock is the sole reason the request failed.
func (r ValidationReport) onlyShortages() bool {
	if r.Valid() {
		return false
	}
	for _, p := range r.Problems {
		if p.Code != CodeInsufficientInventory {
			return false
		}
	}
	return true
}

const (
	CodeRequired              = "required"
	CodeInvalid               = "invalid"
	CodeNotFound              = "not_found"
	CodeInsufficientInventory = "insufficient_inventory"
)

// Validator checks request structure and stock availability. It never writes.
type Validator struct {
	catalog Catalog
	stock   inventory.Reader
	ledger  *inventory.Ledger
}

func NewValidator(catalog Catalog, stock inventory.Reader, ledger *inventory.Ledger) *Validator {
	return &Validator{catalog: catalog, stock: stock, ledger: ledger}
}

// Validate returns a report listing every problem found. The error is only
// set when the catalog or inventory could not be read.
func (v *Validator) Validate(ctx context.Context, req CreateOrderRequest, warehouseID string) (ValidationReport, error) {
	var rep ValidationReport
	add := func(field, code, format string, args ...any) {
		rep.Problems = append(rep.Problems, Problem{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	name := strings.TrimSpace(req.CustomerName)
	switch {
	case name == "":
		add("customer_name", CodeRequired, "customer name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		add("customer_name", CodeInvalid, "customer name must be at most %d characters", maxNameLength)
	}
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			add("customer_email", CodeInvalid, "customer email is not a valid address")
		}
	}
	if len(req.Items) == 0 {
		add("items", CodeRequired, "order must contain at least one item")
		return rep, nil
	}

	structural := false
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.ProductID) == "" {
			add(field+".product_id", CodeRequired, "product id is required")
			structural = true
			continue
		}
		switch {
		case !it.Quantity.IsPositive():
			add(field+".quantity", CodeInvalid, "quantity must be greater than zero")
			structural = true
		case !fitsScale(it.Quantity, QuantityPlaces):
			add(field+".quantity", CodeInvalid, "quantity allows at most %d decimal places", QuantityPlaces)
			structural = true
		}
		switch {
		case !it.UnitPrice.IsPositive():
			add(field+".unit_price", CodeInvalid, "unit price must be greater than zero")
			structural = true
		case !fitsScale(it.UnitPrice, CurrencyPlaces):
			add(field+".unit_price", CodeInvalid, "unit price allows at most %d decimal places", CurrencyPlaces)
			structural = true
		}

		line, ok, err := v.resolve(ctx, it, field, add)
		if err != nil {
			return rep, err
		}
		if !ok {
			structural = true
			continue
		}
		rep.Lines = append(rep.Lines, line)
	}
	if structural {
		return rep, nil
	}

	rep.Total = RequestTotal(req)

	items := make([]inventory.Item, 0, len(rep.Lines))
	for _, l := range rep.Lines {
		items = append(items, l.inventoryItem(warehouseID))
	}
	avail, err := v.ledger.Availability(ctx, v.stock, items)
	if err != nil {
		return rep, err
	}
	rep.Availability = avail
	for i, a := range avail {
		if !a.Sufficient {
			add(fmt.Sprintf("items[%d].quantity", i), CodeInsufficientInventory,
				"requested %s exceeds available %s", a.Demand, a.Available)
		}
	}
	return rep, nil
}

// fitsScale reports whether d is exact at the given number of places, so
// "1.50" passes a two place check and "1.005" does not.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

func (v *Validator) resolve(ctx context.Context, it ItemRequest, field string, add func(field, code, format string, args ...any)) (Line, bool, error) {
	p, err := v.catalog.GetProduct(ctx, it.ProductID)
	if errors.Is(err, ErrNotFound) {
		add(field+".product_id", CodeNotFound, "product %s does not exist", it.ProductID)
		return Line{}, false, nil
	}
	if err != nil {
		return Line{}, false, err
	}
	line := Line{Request: it, Product: p}
	if it.VariantID == "" {
		return line, true, nil
	}

	vr, err := v.catalog.GetVariant(ctx, it.VariantID)
	if errors.Is(err, ErrNotFound) {
		add(field+".variant_id", CodeNotFound, "variant %s does not exist", it.VariantID)
		return Line{}, false, nil
	}
	if err != nil {
		return Line{}, false, err
	}
	if vr.ProductID != p.ID {
		add(field+".variant_id", CodeInvalid, "variant %s does not belong to product %s", vr.ID, p.ID)
		return Line{}, false, nil
	}
	line.Variant = &vr
	return line, true, nil
}
