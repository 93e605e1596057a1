package orders

import (
	"fmt"
	"time"
)

// FormatOrderNumber renders ORD-YYYYMMDD-NNNN for the day's seq-th order.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("ORD-%s-%04d", day.UTC().Format("20060102"), seq)
}
