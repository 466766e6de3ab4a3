package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sokoide/orderflow/pkg/domain"
)

// BankTransfer records a transfer reference the buyer pays against.
// The charge authorizes immediately; settlement reconciliation happens
// out of band against the returned reference.
type BankTransfer struct{}

// NewBankTransfer creates the bank transfer gateway.
func NewBankTransfer() *BankTransfer {
	return &BankTransfer{}
}

func (g *BankTransfer) Name() string { return domain.GatewayBankTransfer }

func (g *BankTransfer) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	txn := newRef("bt_")
	return domain.ChargeResult{
		Success:       true,
		TransactionID: txn,
		Reference:     txn,
		Response:      map[string]string{"status": "awaiting_transfer"},
	}, nil
}

func (g *BankTransfer) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (domain.RefundResult, error) {
	return domain.RefundResult{Success: true, RefundID: newRef("bt_ref_")}, nil
}
