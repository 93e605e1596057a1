package orders

type Status string

const (
	StatusPending   Status = "Pending"
	StatusAccepted  Status = "Accepted"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
	// StatusCompleted is written by other channels. The lifecycle engine never
	// enters it but revenue recognition counts it.
	StatusCompleted Status = "Completed"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusAccepted: true, StatusCancelled: true},
	StatusAccepted:  {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, known := validNext[s]
	return !known || len(next) == 0
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok || s == StatusCompleted
}

// RevenueStatuses is the recognized-revenue set.
var RevenueStatuses = []Status{StatusCompleted, StatusDelivered}

func RecognizesRevenue(s Status) bool {
	for _, r := range RevenueStatuses {
		if r == s {
			return true
		}
	}
	return false
}
