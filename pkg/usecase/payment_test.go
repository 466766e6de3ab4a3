package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
	"github.com/sokoide/orderflow/pkg/infra/gateway"
)

func TestCreateForOrdersFreezesFee(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 100, 10, 2) // amount 200

	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	require.Equal(t, orders[0].PaymentHash, payment.OrderReference)
	require.Equal(t, orders[0].PaymentKey, payment.PaymentKey)
	require.Equal(t, domain.PaymentPending, payment.Status)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(200)))
	// 0.30 fixed + 2.5% of 200.
	require.True(t, payment.FeeAmount.Equal(decimal.NewFromFloat(5.30)))
	require.True(t, payment.NetAmount.Equal(decimal.NewFromFloat(194.70)))
}

func TestCreateForOrdersRejectsMixedBatches(t *testing.T) {
	f := newFixture(t)
	first := f.checkout("p1", 10, 10, 1)
	// Second checkout gets its own hash/key pair.
	ref := f.seedProduct("p2", "Gadget", 20, 5)
	_, err := f.cart.Add(f.ctx, testCartID, ref, 1)
	require.NoError(t, err)
	second, err := f.orders.CheckoutCart(f.ctx, testUserID, testCartID, CheckoutOptions{})
	require.NoError(t, err)

	_, err = f.payments.CreateForOrders(f.ctx, []*domain.Order{first[0], second[0]}, "card", domain.GatewayTest)
	require.Error(t, err)
}

func TestCreateForOrdersUnknownGateway(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 10, 10, 1)
	_, err := f.payments.CreateForOrders(f.ctx, orders, "card", "no_such_gateway")
	require.ErrorIs(t, err, domain.ErrGatewayNotFound)
}

func TestProcessSuccessCompletesPaymentAndOrders(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 2)
	ref := orders[0].Unit
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	processed, err := f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, processed.Status)
	require.True(t, strings.HasPrefix(processed.TransactionID, "test_txn_"))
	require.NotNil(t, processed.ProcessedAt)

	got, err := f.orders.Get(f.ctx, orders[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderPending, got.Status)
	require.Equal(t, 0, f.level(ref).Reserved)
	require.Equal(t, 8, f.level(ref).Total())

	attempts, err := f.payRepo.ListAttempts(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, 1, attempts[0].Number)
	require.Equal(t, domain.PaymentCompleted, attempts[0].Status)
	require.Len(t, f.notifier.EventsOf(EventOrderConfirmed), 1)
}

func TestProcessDeclineThenRetry(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 1)
	ref := orders[0].Unit
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	failed, err := f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: gateway.CardDeclined})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, failed.Status)
	require.Equal(t, "card_declined", failed.FailureReason)

	// The order and its reservation are untouched; the payment is
	// retryable.
	got, err := f.orders.Get(f.ctx, orders[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderUnderPaying, got.Status)
	require.Equal(t, 1, f.level(ref).Reserved)
	require.Len(t, f.notifier.EventsOf(EventPaymentFailed), 1)

	completed, err := f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, completed.Status)

	attempts, err := f.payRepo.ListAttempts(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, 1, attempts[0].Number)
	require.Equal(t, 2, attempts[1].Number)
}

func TestProcessCompletedPaymentNotProcessable(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)
	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)

	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not processable")
}

func TestProcessConversionFailureAfterCharge(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 2)
	ref := orders[0].Unit
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	// Drain the reservation so the post-charge conversion cannot
	// succeed.
	require.NoError(t, f.ledger.Unreserve(f.ctx, ref, 2))

	processed, err := f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, processed.Status)
	require.Contains(t, processed.FailureReason, "charge succeeded but stock conversion failed")

	got, err := f.orders.Get(f.ctx, orders[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderUnderPaying, got.Status)

	attempts, err := f.payRepo.ListAttempts(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, domain.PaymentFailed, attempts[0].Status)
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 100, 10, 2) // amount 200
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)
	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)

	refund, err := f.payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(50), "damaged item")
	require.NoError(t, err)
	require.Equal(t, domain.RefundCompleted, refund.Status)

	got, err := f.payRepo.Get(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartRefund, got.Status)

	// Refunding beyond the remaining balance is rejected.
	_, err = f.payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(151), "oops")
	require.ErrorIs(t, err, domain.ErrRefundExceedsPayment)

	refund, err = f.payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(150), "order cancelled")
	require.NoError(t, err)
	require.Equal(t, domain.RefundCompleted, refund.Status)

	got, err = f.payRepo.Get(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentRefunded, got.Status)
	require.Len(t, f.notifier.EventsOf(EventPaymentRefunded), 2)
}

func TestRefundCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 30, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "cash", domain.GatewayCashOnDelivery)
	require.NoError(t, err)
	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{})
	require.NoError(t, err)

	_, err = f.payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(10), "change of mind")
	require.ErrorIs(t, err, domain.ErrNotRefundable)
}

func TestRefundPendingPayment(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 30, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	_, err = f.payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(10), "not yet charged")
	require.ErrorIs(t, err, domain.ErrNotRefundable)
}

// blockingGateway parks Refund until released, so tests can hold one
// refund in flight while another caller runs.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Name() string { return "blocking_gateway" }

func (g *blockingGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	return domain.ChargeResult{Success: true, TransactionID: "blk_txn_1"}, nil
}

func (g *blockingGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (domain.RefundResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return domain.RefundResult{Success: true, RefundID: "blk_ref_1"}, nil
}

func TestRefundConcurrentCallersCannotOverRefund(t *testing.T) {
	f := newFixture(t)
	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	registry := NewGatewayRegistry()
	registry.Register(gw, domain.FeeSchedule{})
	payments := NewPayments(f.store, f.payRepo, f.orders, registry, f.notifier, zap.NewNop())

	orders := f.checkout("p1", 100, 10, 2) // amount 200
	payment, err := payments.CreateForOrders(f.ctx, orders, "card", gw.Name())
	require.NoError(t, err)
	_, err = payments.Process(f.ctx, payment.ID, ProcessRequest{})
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(150), "first")
		first <- err
	}()
	// The first refund holds its slice of the payment and is parked in
	// the gateway.
	<-gw.entered

	// The second caller must see the in-flight refund under the row
	// lock and bail before any money moves.
	_, err = payments.Refund(f.ctx, payment.ID, decimal.NewFromInt(150), "second")
	require.ErrorIs(t, err, domain.ErrRefundExceedsPayment)

	close(gw.release)
	require.NoError(t, <-first)

	tx, err := f.store.Begin(f.ctx)
	require.NoError(t, err)
	total, err := f.payRepo.RefundedTotal(f.ctx, tx, payment.ID)
	require.NoError(t, err)
	tx.Rollback()
	require.True(t, total.Equal(decimal.NewFromInt(150)))

	got, err := f.payRepo.Get(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartRefund, got.Status)
}

func TestProcessUnresolvableGatewayLeavesPaymentRetryable(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)

	// Same store, registry missing the gateway: wiring changed between
	// creation and processing.
	empty := NewPayments(f.store, f.payRepo, f.orders, NewGatewayRegistry(), f.notifier, zap.NewNop())
	_, err = empty.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.ErrorIs(t, err, domain.ErrGatewayNotFound)

	// The payment never entered processing and stays chargeable.
	got, err := f.payRepo.Get(f.ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPending, got.Status)

	processed, err := f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, processed.Status)
}

func TestRefundUnresolvableGatewayLeavesNoRefundInFlight(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)
	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: "4242424242424242"})
	require.NoError(t, err)

	empty := NewPayments(f.store, f.payRepo, f.orders, NewGatewayRegistry(), f.notifier, zap.NewNop())
	_, err = empty.Refund(f.ctx, payment.ID, decimal.NewFromInt(10), "gateway gone")
	require.ErrorIs(t, err, domain.ErrGatewayNotFound)

	// No stranded processing row holds a share of the payment.
	tx, err := f.store.Begin(f.ctx)
	require.NoError(t, err)
	total, err := f.payRepo.RefundedTotal(f.ctx, tx, payment.ID)
	require.NoError(t, err)
	tx.Rollback()
	require.True(t, total.IsZero())

	// The full amount is still refundable through a working registry.
	refund, err := f.payments.Refund(f.ctx, payment.ID, payment.Amount, "order cancelled")
	require.NoError(t, err)
	require.Equal(t, domain.RefundCompleted, refund.Status)
}

func TestStatusReturnsLatestPaymentWithAttempts(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 50, 10, 1)
	payment, err := f.payments.CreateForOrders(f.ctx, orders, "card", domain.GatewayTest)
	require.NoError(t, err)
	_, err = f.payments.Process(f.ctx, payment.ID, ProcessRequest{CardNumber: gateway.CardInsufficientFunds})
	require.NoError(t, err)

	got, attempts, err := f.payments.Status(f.ctx, orders[0].PaymentHash)
	require.NoError(t, err)
	require.Equal(t, payment.ID, got.ID)
	require.Equal(t, domain.PaymentFailed, got.Status)
	require.Len(t, attempts, 1)
	require.Equal(t, "insufficient_funds", attempts[0].ErrorMessage)
}
