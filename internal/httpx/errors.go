package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

type errorBody struct {
	Error      string             `json:"error"`
	Problems   []orders.Problem   `json:"problems,omitempty"`
	Violations []orders.Violation `json:"violations,omitempty"`
	Shortages  []orders.Shortage  `json:"shortages,omitempty"`
}

// writeError maps the order error taxonomy onto status codes. Persistence
// detail never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *orders.ValidationError
		rv *orders.RuleViolationError
		ie *orders.InsufficientInventoryError
		te *orders.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation_failed", Problems: ve.Problems})
	case errors.As(err, &rv):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "business_rule_violation", Violations: rv.Violations})
	case errors.As(err, &ie):
		writeJSON(w, http.StatusConflict, errorBody{Error: "insufficient_inventory", Shortages: ie.Shortages})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, errorBody{Error: te.Error()})
	case errors.Is(err, orders.ErrInvalidStatusTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, orders.ErrConfiguration):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
