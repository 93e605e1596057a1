package orders

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
)

const (
	RuleMinOrderValue    = "min_order_value"
	RuleMaxOrderValue    = "max_order_value"
	RuleMaxItems         = "max_items_per_order"
	RuleDuplicateProduct = "duplicate_product"
	RuleDeliveryLeadTime = "delivery_lead_time"
)

type Violation struct {
	Rule        string   `json:"rule"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

type Recommendation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RuleReport struct {
	Total           decimal.Decimal  `json:"total"`
	Violations      []Violation      `json:"violations,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	PriorityScore   int              `json:"priority_score"`
}

// Passed is true when no Error-severity violation exists.
func (r RuleReport) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r RuleReport) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}

type RuleValidator struct {
	rules config.BusinessRules
}

func NewRuleValidator(rules config.BusinessRules) *RuleValidator {
	return &RuleValidator{rules: rules}
}

func (v *RuleValidator) Rules() config.BusinessRules { return v.rules }

func (v *RuleValidator) Evaluate(req CreateOrderRequest, now time.Time) RuleReport {
	r := v.rules
	rep := RuleReport{Total: RequestTotal(req)}
	add := func(rule string, sev Severity, format string, args ...any) {
		rep.Violations = append(rep.Violations, Violation{Rule: rule, Severity: sev, Description: fmt.Sprintf(format, args...)})
	}

	if rep.Total.LessThan(r.MinOrderValue) {
		add(RuleMinOrderValue, SeverityError, "order total %s is below the minimum of %s",
			rep.Total.StringFixed(CurrencyPlaces), r.MinOrderValue.StringFixed(CurrencyPlaces))
	}
	if rep.Total.GreaterThan(r.MaxOrderValue) {
		add(RuleMaxOrderValue, SeverityError, "order total %s exceeds the maximum of %s",
			rep.Total.StringFixed(CurrencyPlaces), r.MaxOrderValue.StringFixed(CurrencyPlaces))
	}
	if len(req.Items) > r.MaxItemsPerOrder {
		add(RuleMaxItems, SeverityError, "order has %d items, the limit is %d", len(req.Items), r.MaxItemsPerOrder)
	}

	seen := make(map[string]bool, len(req.Items))
	reported := make(map[string]bool)
	for _, it := range req.Items {
		if seen[it.ProductID] && !reported[it.ProductID] {
			reported[it.ProductID] = true
			add(RuleDuplicateProduct, SeverityWarning, "product %s appears on more than one line", it.ProductID)
		}
		seen[it.ProductID] = true
	}

	if req.DeliveryDate != nil {
		earliest := now.Add(r.DeliveryLeadTime)
		switch {
		case req.DeliveryDate.Before(now):
			add(RuleDeliveryLeadTime, SeverityWarning, "requested delivery date %s is in the past",
				req.DeliveryDate.Format(time.DateOnly))
		case req.DeliveryDate.Before(earliest):
			add(RuleDeliveryLeadTime, SeverityWarning, "requested delivery date %s is within the %s lead time",
				req.DeliveryDate.Format(time.DateOnly), r.DeliveryLeadTime)
		}
	}

	rep.Recommendations, rep.PriorityScore = v.recommend(req, rep.Total, now)
	return rep
}

func (v *RuleValidator) recommend(req CreateOrderRequest, total decimal.Decimal, now time.Time) ([]Recommendation, int) {
	r := v.rules
	var recs []Recommendation
	score := 0

	if total.GreaterThanOrEqual(r.PriorityThreshold) {
		score += 40
		recs = append(recs, Recommendation{Code: "priority_handling", Message: "high-value order, consider priority handling"})
	}
	if total.GreaterThanOrEqual(r.ExpressThreshold) {
		score += 30
		recs = append(recs, Recommendation{Code: "express_shipping", Message: "order qualifies for express shipping"})
	}
	if req.DeliveryDate != nil && !req.DeliveryDate.Before(now) && req.DeliveryDate.Before(now.Add(2*r.DeliveryLeadTime)) {
		score += 20
		recs = append(recs, Recommendation{Code: "rush_delivery", Message: "requested delivery is close, schedule early"})
	}
	if len(req.Items)*2 > r.MaxItemsPerOrder {
		score += 10
		recs = append(recs, Recommendation{Code: "large_order", Message: "large order, consider splitting the shipment"})
	}
	if score > 100 {
		score = 100
	}
	return recs, score
}
