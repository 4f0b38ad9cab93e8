package orders

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusConfirmed Status = "CONFIRMED"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Transisi status yang valid (sederhana & eksplisit)
var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPacked: true, StatusShipped: true, StatusCancelled: true},
	StatusPacked:    {StatusShipped: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Cancellable reports whether an order in s may still be cancelled.
func (s Status) Cancellable() bool { return CanTransition(s, StatusCancelled) }
