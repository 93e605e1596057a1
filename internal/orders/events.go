package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderConfirmed      = "OrderConfirmed"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventOrderOutForDelivery = "OrderOutForDelivery"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// EventTypeFor maps a notification kind to its envelope event type.
func EventTypeFor(kind NotificationKind) string {
	switch kind {
	case NotifyConfirmation:
		return EventOrderConfirmed
	case NotifyDelivery:
		return EventOrderOutForDelivery
	default:
		return EventOrderStatusChanged
	}
}

func NewEnvelope(eventType, producer, orderID string, payload any, now time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}
