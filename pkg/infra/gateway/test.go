package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Card numbers the test gateway maps to canned declines. Any other
// number authorizes.
const (
	CardDeclined          = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
)

// Test is a deterministic in-process gateway for development and
// automated tests. Outcomes key off the card number.
type Test struct{}

// NewTest creates the test gateway.
func NewTest() *Test {
	return &Test{}
}

func (g *Test) Name() string { return domain.GatewayTest }

func (g *Test) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	switch req.CardNumber {
	case CardDeclined:
		return domain.ChargeResult{
			FailureReason: "card_declined",
			Response:      map[string]string{"code": "card_declined"},
		}, nil
	case CardInsufficientFunds:
		return domain.ChargeResult{
			FailureReason: "insufficient_funds",
			Response:      map[string]string{"code": "insufficient_funds"},
		}, nil
	}
	txn := newRef("test_txn_")
	return domain.ChargeResult{
		Success:       true,
		TransactionID: txn,
		Reference:     txn,
		Response:      map[string]string{"status": "authorized"},
	}, nil
}

func (g *Test) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (domain.RefundResult, error) {
	return domain.RefundResult{Success: true, RefundID: newRef("test_ref_")}, nil
}
