package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Revenue figures: revenue:{metric key} -> decimal string
	KeyRevenue = "revenue:%s"
	// Set of every revenue key written, used by Flush.
	KeyRevenueIndex = "revenue:index"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
