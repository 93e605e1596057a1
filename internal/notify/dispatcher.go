// Package notify hands order notifications to Kafka and, on the consuming
// side, delivers them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	TryPublish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Dispatcher implements orders.Notifier. Notify only enqueues; delivery
// happens in the notifier process.
type Dispatcher struct {
	Publisher Publisher
	Service   string
	Now       func() time.Time
}

func (d *Dispatcher) Notify(ctx context.Context, n orders.Notification) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	eventType := orders.EventTypeFor(n.Kind)
	env, err := orders.NewEnvelope(eventType, d.Service, n.OrderID, n, now())
	if err != nil {
		return fmt.Errorf("build %s envelope: %w", eventType, err)
	}
	return d.Publisher.TryPublish(ctx, orders.PartitionKey(n.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Sender delivers one notification to the customer (email, sms, ...).
type Sender interface {
	Send(ctx context.Context, n orders.Notification) error
}

// LogSender records the notification instead of delivering it.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, n orders.Notification) error {
	logging.OrNop(s.Log).Info("notification delivered",
		zap.String("order_id", n.OrderID),
		zap.String("order_number", n.OrderNumber),
		zap.String("kind", string(n.Kind)),
		zap.String("status", string(n.Status)),
		zap.String("customer_email", n.CustomerEmail),
	)
	return nil
}

// Handler turns consumed envelopes into Sender calls.
type Handler struct {
	Sender Sender
	Log    *zap.Logger
}

func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and let the offset advance
		logging.OrNop(h.Log).Error("invalid notification envelope",
			zap.ByteString("key", m.Key), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventOrderConfirmed, orders.EventOrderStatusChanged, orders.EventOrderOutForDelivery:
	default:
		return nil
	}
	n, err := kafkax.UnwrapPayload[orders.Notification](env.Payload)
	if err != nil {
		logging.OrNop(h.Log).Error("invalid notification payload",
			zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	return h.Sender.Send(ctx, n)
}
