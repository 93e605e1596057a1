package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/go-retail-fulfillment/internal/orders"

type Deps struct {
	Store      Store
	Warehouses WarehouseDirectory
	Rules      config.BusinessRules
	Audit      AuditSink
	Notifier   Notifier
	Revenue    RevenueObserver
	Logger     *zap.Logger
	Now        func() time.Time
}

type Service struct {
	store      Store
	warehouses WarehouseDirectory
	ledger     *inventory.Ledger
	validator  *Validator
	rules      *RuleValidator
	audit      AuditSink
	notifier   Notifier
	revenue    RevenueObserver
	log        *zap.Logger
	now        func() time.Time
	tracer     trace.Tracer
}

func NewService(d Deps) *Service {
	log := logging.OrNop(d.Logger)
	s := &Service{
		store:      d.Store,
		warehouses: d.Warehouses,
		ledger:     inventory.NewLedger(log),
		rules:      NewRuleValidator(d.Rules),
		audit:      d.Audit,
		notifier:   d.Notifier,
		revenue:    d.Revenue,
		log:        log,
		now:        d.Now,
		tracer:     otel.Tracer(tracerName),
	}
	s.validator = NewValidator(d.Store, d.Store, s.ledger)
	if s.audit == nil {
		s.audit = noopAudit{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.revenue == nil {
		s.revenue = noopRevenue{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateResult struct {
	Order           Order            `json:"order"`
	Warnings        []Violation      `json:"warnings,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	LowStock        []string         `json:"low_stock,omitempty"`
	// Replayed is set when the idempotency key matched an existing order and
	// nothing new was reserved.
	Replayed bool `json:"replayed,omitempty"`
}

// Preview runs both validators without touching inventory.
func (s *Service) Preview(ctx context.Context, req CreateOrderRequest) (ValidationReport, RuleReport, error) {
	wh, err := s.onlineWarehouse(ctx)
	if err != nil {
		return ValidationReport{}, RuleReport{}, err
	}
	rep, err := s.validator.Validate(ctx, req, wh.ID)
	if err != nil {
		return ValidationReport{}, RuleReport{}, s.persistence(ctx, "validate order", err)
	}
	return rep, s.rules.Evaluate(req, s.now()), nil
}

// CreateOrder validates the request, then reserves inventory and persists
// the order with its items in one transaction.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, actorID string) (res *CreateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder")
	defer func() { endSpan(span, err) }()

	if req.IdempotencyKey != "" {
		prev, ok, ferr := s.store.OrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if ferr != nil {
			return nil, s.persistence(ctx, "find order by idempotency key", ferr)
		}
		if ok {
			return s.replay(prev), nil
		}
	}

	wh, err := s.onlineWarehouse(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := s.validator.Validate(ctx, req, wh.ID)
	if err != nil {
		return nil, s.persistence(ctx, "validate order", err)
	}
	if rep.onlyShortages() {
		return nil, &InsufficientInventoryError{Shortages: rep.Shortages()}
	}
	if !rep.Valid() {
		return nil, &ValidationError{Problems: rep.Problems}
	}

	now := s.now().UTC()
	rules := s.rules.Evaluate(req, now)
	if !rules.Passed() {
		return nil, &RuleViolationError{Violations: rules.Violations}
	}

	order := s.buildOrder(req, rep.Lines, wh, rules.PriorityScore, actorID, now)
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.items", len(order.Items)))

	var (
		lowStock []string
		prev     *Order
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lowStock = lowStock[:0]
		prev = nil
		if order.IdempotencyKey != "" {
			o, ok, err := tx.OrderByIdempotencyKey(ctx, order.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				prev = &o
				return nil
			}
		}
		seq, err := tx.NextOrderSeq(ctx, now)
		if err != nil {
			return err
		}
		order.OrderNumber = FormatOrderNumber(now, seq)

		for _, it := range order.Items {
			r, err := s.ledger.Reserve(ctx, tx, itemOf(it))
			if err != nil {
				return err
			}
			if r.BelowMin {
				lowStock = append(lowStock, r.Key.String())
			}
		}
		return tx.InsertOrder(ctx, order)
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key committed first.
		o, ok, ferr := s.store.OrderByIdempotencyKey(ctx, order.IdempotencyKey)
		if ferr == nil && ok {
			prev, err = &o, nil
		}
	}
	if err == nil && prev != nil {
		return s.replay(*prev), nil
	}
	if err != nil {
		var se *inventory.ShortageError
		if errors.As(err, &se) {
			return nil, &InsufficientInventoryError{Shortages: []Shortage{shortageFrom(se)}}
		}
		return nil, s.persistence(ctx, "create order", err)
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("priority", order.Priority),
	)

	s.record(ctx, AuditEntry{
		EntityType: "order", EntityID: order.ID, Action: "create",
		After: order, ActorID: actorID, Notes: order.Notes, At: now,
	})
	s.notify(ctx, order, NotifyConfirmation)

	return &CreateResult{
		Order:           order,
		Warnings:        rules.Warnings(),
		Recommendations: rules.Recommendations,
		LowStock:        lowStock,
	}, nil
}

func (s *Service) replay(o Order) *CreateResult {
	s.log.Info("idempotent replay",
		zap.String("order_id", o.ID), zap.String("idempotency_key", o.IdempotencyKey))
	return &CreateResult{Order: o, Replayed: true}
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, err
	}
	if err != nil {
		return Order{}, s.persistence(ctx, "get order", err)
	}
	return o, nil
}

func (s *Service) buildOrder(req CreateOrderRequest, lines []Line, wh Warehouse, priority int, actorID string, now time.Time) Order {
	o := Order{
		ID:              uuid.NewString(),
		StoreID:         wh.StoreID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		Status:          StatusPending,
		PaymentStatus:   PaymentUnpaid,
		Priority:        priority,
		DeliveryDate:    req.DeliveryDate,
		Notes:           req.Notes,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           make([]OrderItem, 0, len(lines)),
		IdempotencyKey:  req.IdempotencyKey,
	}
	for _, l := range lines {
		unit := l.Request.Unit
		if unit == "" {
			unit = l.Product.Unit
		}
		o.Items = append(o.Items, OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   l.Product.ID,
			VariantID:   l.Request.VariantID,
			WarehouseID: wh.ID,
			Quantity:    l.Request.Quantity,
			UnitPrice:   l.Request.UnitPrice,
			TotalPrice:  LineTotal(l.Request.Quantity, l.Request.UnitPrice),
			Unit:        unit,
			Notes:       l.Request.Notes,
			Untracked:   l.Product.AlwaysAvailable,
		})
	}
	o.TotalAmount = SumItems(o.Items)
	return o
}

func itemOf(it OrderItem) inventory.Item {
	return inventory.Item{
		ProductID:       it.ProductID,
		VariantID:       it.VariantID,
		WarehouseID:     it.WarehouseID,
		AlwaysAvailable: it.Untracked,
		Quantity:        it.Quantity,
	}
}

func (s *Service) onlineWarehouse(ctx context.Context) (Warehouse, error) {
	wh, err := s.warehouses.OnlineWarehouse(ctx)
	if errors.Is(err, ErrConfiguration) {
		s.log.Error("online warehouse unavailable", zap.Error(err))
		return Warehouse{}, err
	}
	if err != nil {
		return Warehouse{}, s.persistence(ctx, "resolve online warehouse", err)
	}
	return wh, nil
}

// persistence logs the underlying failure and hides it behind ErrPersistence.
func (s *Service) persistence(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.log.Error("persistence failure", zap.String("op", op), zap.Error(err))
	return ErrPersistence
}

// record and notify are best effort: failures are logged and swallowed.
func (s *Service) record(ctx context.Context, e AuditEntry) {
	if err := s.audit.Record(ctx, e); err != nil {
		s.log.Warn("audit record failed",
			zap.String("entity_id", e.EntityID), zap.String("action", e.Action), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, o Order, kind NotificationKind) {
	n := Notification{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Kind:          kind,
		Status:        o.Status,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		DeliveryDate:  o.DeliveryDate,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification failed",
			zap.String("order_id", o.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
