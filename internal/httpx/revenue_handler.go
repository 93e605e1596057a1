package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/revenue"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RevenueHandler struct {
	Aggregator *revenue.Aggregator
	Log        *zap.Logger
}

type figureResp struct {
	Metric  revenue.Metric  `json:"metric"`
	StoreID string          `json:"store_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Cached  bool            `json:"cached"`
}

func (h *RevenueHandler) Register(r chi.Router) {
	r.Get("/revenue", h.figure(revenue.MetricRevenue, false))
	r.Get("/costs", h.figure(revenue.MetricCosts, false))
	r.Get("/stores/{storeID}/revenue", h.figure(revenue.MetricRevenue, true))
	r.Get("/stores/{storeID}/costs", h.figure(revenue.MetricCosts, true))
	r.Post("/revenue/refresh", h.refresh)
}

// figure recomputes unless the caller asks for ?cached=true.
func (h *RevenueHandler) figure(m revenue.Metric, perStore bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var storeID string
		if perStore {
			storeID = chi.URLParam(r, "storeID")
		}
		cached := r.URL.Query().Get("cached") == "true"

		var (
			v   decimal.Decimal
			err error
		)
		switch {
		case perStore && strings.TrimSpace(storeID) == "":
			err = revenue.ErrStoreRequired
		case cached:
			v, err = h.Aggregator.Cached(ctx, m, storeID)
		case m == revenue.MetricRevenue && perStore:
			v, err = h.Aggregator.StoreRevenue(ctx, storeID)
		case m == revenue.MetricRevenue:
			v, err = h.Aggregator.TotalRevenue(ctx)
		case perStore:
			v, err = h.Aggregator.StoreCosts(ctx, storeID)
		default:
			v, err = h.Aggregator.TotalCosts(ctx)
		}
		if err != nil {
			h.writeRevenueError(w, m, storeID, err)
			return
		}
		writeJSON(w, http.StatusOK, figureResp{Metric: m, StoreID: storeID, Amount: v, Cached: cached})
	}
}

func (h *RevenueHandler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Aggregator.RefreshAll(ctx); err != nil {
		logging.OrNop(h.Log).Error("revenue refresh failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RevenueHandler) writeRevenueError(w http.ResponseWriter, m revenue.Metric, storeID string, err error) {
	switch {
	case errors.Is(err, revenue.ErrStoreRequired):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout"})
	default:
		logging.OrNop(h.Log).Error("revenue figure failed",
			zap.String("metric", string(m)), zap.String("store_id", storeID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
