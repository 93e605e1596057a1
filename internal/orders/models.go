package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the precision every line total is rounded to before it
// is summed into the order total.
const CurrencyPlaces = 2

// QuantityPlaces is the finest quantity the stores can hold. Unit prices are
// held at CurrencyPlaces.
const QuantityPlaces = 4

type Product struct {
	ID              string
	SKU             string
	Name            string
	Unit            string
	Price           decimal.Decimal
	AlwaysAvailable bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Variant struct {
	ID            string
	ProductID     string
	Name          string
	PriceOverride *decimal.Decimal
	Attributes    map[string]string
}

// DecodeAttributes turns the stored JSON attribute blob into a map. Stores
// call it once when loading a variant.
func DecodeAttributes(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("decode variant attributes: %w", err)
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}

type Warehouse struct {
	ID      string
	Name    string
	StoreID string
	Online  bool
}

type Order struct {
	ID                    string          `json:"id"`
	OrderNumber           string          `json:"order_number"`
	StoreID               string          `json:"store_id"`
	CustomerName          string          `json:"customer_name"`
	CustomerEmail         string          `json:"customer_email,omitempty"`
	CustomerPhone         string          `json:"customer_phone,omitempty"`
	CustomerAddress       string          `json:"customer_address,omitempty"`
	Status                Status          `json:"status"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	Priority              int             `json:"priority"`
	DeliveryDate          *time.Time      `json:"delivery_date,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	CreatedBy             string          `json:"created_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Items                 []OrderItem     `json:"items"`

	// IdempotencyKey is unique across orders when set.
	IdempotencyKey string `json:"-"`
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id,omitempty"`
	WarehouseID string          `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Unit        string          `json:"unit,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	// Untracked snapshots the product's AlwaysAvailable flag at creation so a
	// later release mirrors exactly what was reserved.
	Untracked bool `json:"untracked,omitempty"`
}

// LineTotal is quantity x unit price at currency precision.
func LineTotal(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice).Round(CurrencyPlaces)
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

type PurchaseOrder struct {
	ID          string
	StoreID     string
	Status      string
	TotalAmount decimal.Decimal
	ReceivedAt  *time.Time
}

const PurchaseOrderReceived = "Received"

type CreateOrderRequest struct {
	CustomerName    string        `json:"customer_name"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	CustomerAddress string        `json:"customer_address,omitempty"`
	DeliveryDate    *time.Time    `json:"delivery_date,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Items           []ItemRequest `json:"items"`

	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}

type ItemRequest struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Unit      string          `json:"unit,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// RequestTotal sums the request's line totals the same way the persisted
// order will be summed.
func RequestTotal(req CreateOrderRequest) decimal.Decimal {
	total := decimal.Zero
	for _, it := range req.Items {
		total = total.Add(LineTotal(it.Quantity, it.UnitPrice))
	}
	return total
}

type StatusUpdate struct {
	Status       Status     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}
