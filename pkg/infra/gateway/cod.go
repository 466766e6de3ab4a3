package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sokoide/orderflow/pkg/domain"
)

// CashOnDelivery authorizes every charge; money changes hands at the
// door, so there is nothing to decline and nothing to refund through
// the gateway.
type CashOnDelivery struct{}

// NewCashOnDelivery creates the cash-on-delivery gateway.
func NewCashOnDelivery() *CashOnDelivery {
	return &CashOnDelivery{}
}

func (g *CashOnDelivery) Name() string { return domain.GatewayCashOnDelivery }

func (g *CashOnDelivery) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	txn := newRef("cod_")
	return domain.ChargeResult{
		Success:       true,
		TransactionID: txn,
		Reference:     txn,
		Response:      map[string]string{"status": "collect_on_delivery"},
	}, nil
}

func (g *CashOnDelivery) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (domain.RefundResult, error) {
	// Refundable() blocks this upstream; keep the strategy honest anyway.
	return domain.RefundResult{FailureReason: "cash on delivery payments are not refundable"}, nil
}
