package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Put(ctx context.Context, orderID string, s redisx.OrderStatus) error
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, orderID string) error
}

// OrdersHandler serves order creation and status transitions. StatusCache
// and Idempotency are optional.
type OrdersHandler struct {
	Service     *orders.Service
	StatusCache StatusCache
	Idempotency IdempotencyStore
	Log         *zap.Logger
}

type CreateOrderResp struct {
	*orders.CreateResult
	Idempotent bool `json:"idempotent"`
}

type availabilityView struct {
	ProductID  string          `json:"product_id"`
	VariantID  string          `json:"variant_id,omitempty"`
	Requested  decimal.Decimal `json:"requested"`
	Available  decimal.Decimal `json:"available"`
	Sufficient bool            `json:"sufficient"`
	Shortage   decimal.Decimal `json:"shortage"`
}

type previewResp struct {
	Valid        bool               `json:"valid"`
	Problems     []orders.Problem   `json:"problems,omitempty"`
	Total        decimal.Decimal    `json:"total"`
	Availability []availabilityView `json:"availability,omitempty"`
	Rules        orders.RuleReport  `json:"rules"`
	Passed       bool               `json:"passed"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/validate", h.validateOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func actorID(r *http.Request) string {
	if a := r.Header.Get("X-Actor-ID"); a != "" {
		return a
	}
	return "web"
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	log := logging.OrNop(h.Log)

	// Fast-path idempotency via Redis; the unique key on the order is the
	// source of truth.
	idemKey := r.Header.Get("Idempotency-Key")
	req.IdempotencyKey = idemKey
	if idemKey != "" && h.Idempotency != nil {
		id, ok, err := h.Idempotency.Lookup(ctx, idemKey)
		if err != nil {
			log.Warn("idempotency lookup failed", zap.String("key", idemKey), zap.Error(err))
		}
		if ok {
			o, err := h.Service.GetOrder(ctx, id)
			if err == nil {
				writeJSON(w, http.StatusOK, CreateOrderResp{CreateResult: &orders.CreateResult{Order: o}, Idempotent: true})
				return
			}
		}
	}

	res, err := h.Service.CreateOrder(ctx, req, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	if idemKey != "" && h.Idempotency != nil {
		if err := h.Idempotency.Remember(ctx, idemKey, res.Order.ID); err != nil {
			log.Warn("idempotency store failed", zap.String("key", idemKey), zap.Error(err))
		}
	}
	h.cacheStatus(ctx, res.Order)

	if res.Replayed {
		writeJSON(w, http.StatusOK, CreateOrderResp{CreateResult: res, Idempotent: true})
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{CreateResult: res})
}

func (h *OrdersHandler) validateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rep, rules, err := h.Service.Preview(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := previewResp{
		Valid:    rep.Valid(),
		Problems: rep.Problems,
		Total:    rep.Total,
		Rules:    rules,
		Passed:   rep.Valid() && rules.Passed(),
	}
	for _, a := range rep.Availability {
		resp.Availability = append(resp.Availability, availabilityView{
			ProductID:  a.Key.ProductID,
			VariantID:  a.Key.VariantID,
			Requested:  a.Requested,
			Available:  a.Available,
			Sufficient: a.Sufficient,
			Shortage:   a.Shortage,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.StatusCache != nil {
		if s, ok, err := h.StatusCache.Get(ctx, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// 2) fallback DB
	o, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusOf(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var upd orders.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if !upd.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + string(upd.Status)})
		return
	}
	h.transition(w, r, upd)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
			return
		}
	}
	h.transition(w, r, orders.StatusUpdate{Status: orders.StatusCancelled, Notes: body.Notes})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, upd orders.StatusUpdate) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"), upd, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.StatusCache == nil {
		return
	}
	if err := h.StatusCache.Put(ctx, o.ID, statusOf(o)); err != nil {
		logging.OrNop(h.Log).Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func statusOf(o orders.Order) redisx.OrderStatus {
	return redisx.OrderStatus{
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}
}
