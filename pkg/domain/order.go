package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderOnCart      OrderStatus = "on_cart"
	OrderUnderPaying OrderStatus = "under_paying"
	OrderPending     OrderStatus = "pending"
	OrderOnProcess   OrderStatus = "on_process"
	OrderOnShipping  OrderStatus = "on_shipping"
	OrderArrived     OrderStatus = "arrived"
	OrderCancelled   OrderStatus = "cancelled"
)

// PaymentState is the order-side payment status.
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentCancelled  PaymentState = "cancelled"
	PaymentExpired    PaymentState = "expired"
	PaymentRefunded   PaymentState = "refunded"
	PaymentPartRefund PaymentState = "partially_refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderOnCart:      {OrderUnderPaying, OrderCancelled},
	OrderUnderPaying: {OrderPending, OrderCancelled},
	OrderPending:     {OrderOnProcess, OrderCancelled},
	OrderOnProcess:   {OrderOnShipping, OrderCancelled},
	OrderOnShipping:  {OrderArrived},
}

// Order is created from a cart line at checkout. Price and product name
// are frozen at creation; later catalog changes do not alter them.
// Orders are never hard-deleted, cancellation is a status.
type Order struct {
	ID     string
	UserID string

	Unit        UnitRef
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal

	Status        OrderStatus
	PaymentStatus PaymentState

	// Hash/key pair shared by every order of one checkout batch; one
	// payment against the pair clears the whole batch.
	PaymentHash string
	PaymentKey  string

	PaymentMethod    string
	ShippingAddress  string
	PaidAt           *time.Time
	PaymentExpiresAt *time.Time

	CustomerNotes string
	AdminNotes    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionTo advances the order status along the transition table.
// Anything not in the table fails and leaves the status unchanged.
func (o *Order) TransitionTo(next OrderStatus) error {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			o.Status = next
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, next)
}

// PaymentExpired reports whether the payment window has lapsed.
// Only meaningful while the order is under_paying.
func (o *Order) PaymentExpired(now time.Time) bool {
	if o.Status != OrderUnderPaying || o.PaymentExpiresAt == nil {
		return false
	}
	return now.After(*o.PaymentExpiresAt)
}

// PaymentTimeRemaining is the number of seconds left in the payment
// window, floored at zero.
func (o *Order) PaymentTimeRemaining(now time.Time) int {
	if o.Status != OrderUnderPaying || o.PaymentExpiresAt == nil {
		return 0
	}
	remaining := int(o.PaymentExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewOrderID returns a human-readable order identifier like ORD-1A2B3C4D.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.New().String()[:8])
}

// NewPaymentRef returns a payment hash/key pair for one checkout batch.
func NewPaymentRef() (hash, key string) {
	hash = "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	key = "KEY-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
	return hash, key
}

// FieldDrift is one frozen order field that no longer matches the live
// catalog. Advisory only: drift never blocks a transition.
type FieldDrift struct {
	Field   string
	Ordered string
	Current string
}

// DriftReport is the outcome of a product consistency check.
type DriftReport struct {
	OrderID      string
	ProductID    string
	FromSnapshot bool
	Drift        []FieldDrift
}

// Consistent reports whether no frozen field drifted.
func (r DriftReport) Consistent() bool {
	return len(r.Drift) == 0
}
