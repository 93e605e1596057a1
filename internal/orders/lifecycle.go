package orders

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UpdateStatus moves an order along the transition table and applies the
// transition's side effects. The order row stays locked for the whole unit of
// work, so two concurrent transitions on one order can never both succeed.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, upd StatusUpdate, actorID string) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateStatus")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.status.to", string(upd.Status)))

	var before Order
	now := s.now().UTC()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Status, upd.Status) {
			return &TransitionError{From: cur.Status, To: upd.Status}
		}
		before = cur
		next := s.apply(cur, upd, now)

		if upd.Status == StatusCancelled {
			for _, it := range next.Items {
				if err := s.ledger.Release(ctx, tx, itemOf(it)); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateOrderState(ctx, next, cur.Status); err != nil {
			return err
		}
		o = next
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidStatusTransition):
		return Order{}, err
	default:
		return Order{}, s.persistence(ctx, "update order status", err)
	}

	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(o.Status)),
		zap.String("actor_id", actorID),
	)

	s.record(ctx, AuditEntry{
		EntityType: "order", EntityID: o.ID, Action: "status_change",
		Before: before, After: o, ActorID: actorID, Notes: upd.Notes, At: now,
	})
	s.notify(ctx, o, NotifyStatusUpdate)
	if o.Status == StatusShipped {
		s.notify(ctx, o, NotifyDelivery)
	}
	if RecognizesRevenue(o.Status) || RecognizesRevenue(before.Status) {
		s.revenue.RevenueChanged(ctx, o.StoreID)
	}
	return o, nil
}

// Cancel is UpdateStatus to Cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, notes, actorID string) (Order, error) {
	return s.UpdateStatus(ctx, orderID, StatusUpdate{Status: StatusCancelled, Notes: notes}, actorID)
}

func (s *Service) apply(o Order, upd StatusUpdate, now time.Time) Order {
	o.Status = upd.Status
	o.UpdatedAt = now

	switch upd.Status {
	case StatusAccepted:
		eta := now.Add(s.rules.Rules().DeliveryLeadTime)
		switch {
		case upd.DeliveryDate != nil:
			eta = *upd.DeliveryDate
		case o.DeliveryDate != nil:
			eta = *o.DeliveryDate
		}
		o.EstimatedDeliveryDate = &eta
	case StatusShipped:
		switch {
		case upd.DeliveryDate != nil:
			d := *upd.DeliveryDate
			o.DeliveryDate = &d
		case o.DeliveryDate != nil:
		case o.EstimatedDeliveryDate != nil:
			d := *o.EstimatedDeliveryDate
			o.DeliveryDate = &d
		default:
			d := now.Add(s.rules.Rules().DeliveryLeadTime)
			o.DeliveryDate = &d
		}
	case StatusDelivered:
		o.PaymentStatus = PaymentPaid
	}
	return o
}
