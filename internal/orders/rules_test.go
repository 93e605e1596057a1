package orders

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ruleNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func items(n int, qty, price string) []ItemRequest {
	out := make([]ItemRequest, n)
	for i := range out {
		out[i] = ItemRequest{
			ProductID: "p-" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Quantity:  decimal.RequireFromString(qty),
			UnitPrice: decimal.RequireFromString(price),
		}
	}
	return out
}

func ruleNames(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestEvaluate_OrderValueBounds(t *testing.T) {
	v := NewRuleValidator(config.DefaultRules())

	tests := []struct {
		name   string
		price  string
		passed bool
		rules  []string
	}{
		{name: "below minimum", price: "9.99", passed: false, rules: []string{RuleMinOrderValue}},
		{name: "exactly minimum", price: "10.00", passed: true},
		{name: "exactly maximum", price: "50000", passed: true},
		{name: "above maximum", price: "50000.01", passed: false, rules: []string{RuleMaxOrderValue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := v.Evaluate(CreateOrderRequest{Items: items(1, "1", tt.price)}, ruleNow)
			assert.Equal(t, tt.passed, rep.Passed())
			assert.Equal(t, tt.rules, ruleNames(rep.Violations))
		})
	}
}

func TestEvaluate_MaxItems(t *testing.T) {
	rules := config.DefaultRules()
	rules.MaxItemsPerOrder = 3
	v := NewRuleValidator(rules)

	rep := v.Evaluate(CreateOrderRequest{Items: items(3, "1", "10")}, ruleNow)
	assert.True(t, rep.Passed())

	rep = v.Evaluate(CreateOrderRequest{Items: items(4, "1", "10")}, ruleNow)
	assert.False(t, rep.Passed())
	assert.Equal(t, []string{RuleMaxItems}, ruleNames(rep.Violations))
}

func TestEvaluate_DuplicateProductIsWarning(t *testing.T) {
	v := NewRuleValidator(config.DefaultRules())
	it := items(1, "1", "10")[0]

	rep := v.Evaluate(CreateOrderRequest{Items: []ItemRequest{it, it, it}}, ruleNow)
	assert.True(t, rep.Passed())
	require.Len(t, rep.Warnings(), 1)
	assert.Equal(t, RuleDuplicateProduct, rep.Warnings()[0].Rule)
	assert.Equal(t, SeverityWarning, rep.Warnings()[0].Severity)
}

func TestEvaluate_DeliveryLeadTime(t *testing.T) {
	v := NewRuleValidator(config.DefaultRules())
	at := func(d time.Duration) *time.Time {
		t := ruleNow.Add(d)
		return &t
	}

	tests := []struct {
		name     string
		date     *time.Time
		warnings []string
	}{
		{name: "no date"},
		{name: "past", date: at(-time.Hour), warnings: []string{RuleDeliveryLeadTime}},
		{name: "within lead time", date: at(6 * time.Hour), warnings: []string{RuleDeliveryLeadTime}},
		{name: "exactly lead time", date: at(24 * time.Hour)},
		{name: "later", date: at(96 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := v.Evaluate(CreateOrderRequest{Items: items(1, "1", "20"), DeliveryDate: tt.date}, ruleNow)
			assert.True(t, rep.Passed())
			assert.Equal(t, tt.warnings, ruleNames(rep.Warnings()))
		})
	}
}

func TestEvaluate_PriorityScore(t *testing.T) {
	v := NewRuleValidator(config.DefaultRules())
	soon := ruleNow.Add(30 * time.Hour)

	tests := []struct {
		name  string
		req   CreateOrderRequest
		score int
		codes []string
	}{
		{name: "small order", req: CreateOrderRequest{Items: items(1, "1", "20")}, score: 0},
		{
			name:  "priority",
			req:   CreateOrderRequest{Items: items(1, "1", "1000")},
			score: 40, codes: []string{"priority_handling"},
		},
		{
			name:  "express",
			req:   CreateOrderRequest{Items: items(1, "1", "5000")},
			score: 70, codes: []string{"priority_handling", "express_shipping"},
		},
		{
			name:  "rush",
			req:   CreateOrderRequest{Items: items(1, "1", "20"), DeliveryDate: &soon},
			score: 20, codes: []string{"rush_delivery"},
		},
		{
			name:  "large",
			req:   CreateOrderRequest{Items: items(26, "1", "20")},
			score: 10, codes: []string{"large_order"},
		},
		{
			name:  "everything",
			req:   CreateOrderRequest{Items: items(26, "1", "200"), DeliveryDate: &soon},
			score: 100, codes: []string{"priority_handling", "express_shipping", "rush_delivery", "large_order"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := v.Evaluate(tt.req, ruleNow)
			assert.Equal(t, tt.score, rep.PriorityScore)
			var codes []string
			for _, r := range rep.Recommendations {
				codes = append(codes, r.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestFormatOrderNumber(t *testing.T) {
	day := time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "ORD-20240305-0007", FormatOrderNumber(day, 7))
	assert.Equal(t, "ORD-20240305-12345", FormatOrderNumber(day, 12345))
}
