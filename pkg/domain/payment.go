package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeSchedule is a gateway's fee structure. The fee is computed once at
// payment creation and never recomputed, even if the schedule changes.
type FeeSchedule struct {
	Fixed      decimal.Decimal
	Percentage decimal.Decimal
}

// Fee returns fixed + amount * percentage / 100.
func (f FeeSchedule) Fee(amount decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return f.Fixed.Add(amount.Mul(f.Percentage).Div(hundred))
}

// Payment tracks money movement against one or more orders sharing a
// payment hash/key pair.
type Payment struct {
	ID string

	// OrderReference is the batch's payment hash; PaymentKey completes
	// the pair needed to confirm the covered orders.
	OrderReference string
	PaymentKey     string
	OrderIDs       []string

	UserID      string
	GatewayName string
	Method      string

	Amount    decimal.Decimal
	FeeAmount decimal.Decimal
	NetAmount decimal.Decimal
	Currency  string

	Status        PaymentState
	TransactionID string
	GatewayRef    string
	FailureReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// Refundable reports whether the payment can be (further) refunded.
// Cash-on-delivery payments never are.
func (p *Payment) Refundable() bool {
	if p.GatewayName == GatewayCashOnDelivery {
		return false
	}
	return p.Status == PaymentCompleted || p.Status == PaymentPartRefund
}

// PaymentAttempt is one try at processing a payment. Rows are
// append-only with strictly increasing attempt numbers.
type PaymentAttempt struct {
	PaymentID    string
	Number       int
	Status       PaymentState
	ErrorMessage string
	Response     map[string]string
	AttemptedAt  time.Time
}

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

// Refund tracks money returned against a completed payment.
type Refund struct {
	ID          string
	PaymentID   string
	Amount      decimal.Decimal
	Reason      string
	Status      RefundStatus
	GatewayRef  string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Well-known gateway names. Implementations are injected; nothing in
// the core branches on these beyond the cash-on-delivery refund rule.
const (
	GatewayTest           = "test_gateway"
	GatewayCashOnDelivery = "cash_on_delivery"
	GatewayBankTransfer   = "bank_transfer"
)

// ChargeRequest is what the core hands a gateway strategy.
type ChargeRequest struct {
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
	Method    string
	// CardNumber carries the instrument for card-like gateways; test
	// gateways key canned outcomes off it.
	CardNumber string
	Metadata   map[string]string
}

// ChargeResult is a gateway's verdict. A false Success with a reason is
// a normal outcome, not an error; errors are transport-level failures.
type ChargeResult struct {
	Success       bool
	TransactionID string
	Reference     string
	FailureReason string
	Response      map[string]string
}

// RefundResult mirrors ChargeResult for refunds.
type RefundResult struct {
	Success       bool
	RefundID      string
	FailureReason string
}
