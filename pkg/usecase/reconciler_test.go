package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

func TestSweepCancelsExpiredOrders(t *testing.T) {
	f := newFixture(t)
	batch := f.checkout("p1", 10, 10, 2)
	ref1 := batch[0].Unit
	ref2 := f.seedProduct("p2", "Gadget", 20, 5)
	_, err := f.cart.Add(f.ctx, testCartID, ref2, 1)
	require.NoError(t, err)
	_, err = f.orders.CheckoutCart(f.ctx, testUserID, testCartID, CheckoutOptions{})
	require.NoError(t, err)

	future := func() time.Time { return time.Now().Add(DefaultPaymentTimeout + time.Minute) }
	f.orders.now = future
	f.reconciler.now = future

	summary, err := f.reconciler.Sweep(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Found)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 0, summary.Skipped)
	require.Equal(t, 0, summary.Failed)

	require.Equal(t, 10, f.level(ref1).Available)
	require.Equal(t, 5, f.level(ref2).Available)

	// A second sweep finds nothing.
	summary, err = f.reconciler.Sweep(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Found)
}

func TestSweepSkipsWhenDeadlineMoved(t *testing.T) {
	f := newFixture(t)
	f.checkout("p1", 10, 10, 1)

	// The query sees the order as expired, but the per-order re-check
	// under the lock does not.
	f.reconciler.now = func() time.Time { return time.Now().Add(DefaultPaymentTimeout + time.Minute) }

	summary, err := f.reconciler.Sweep(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Found)
	require.Equal(t, 0, summary.Processed)
	require.Equal(t, 1, summary.Skipped)
}

func TestSweepIgnoresPaidOrders(t *testing.T) {
	f := newFixture(t)
	batch := f.checkout("p1", 10, 10, 1)
	_, err := f.orders.ConfirmPayment(f.ctx, batch[0].PaymentHash, batch[0].PaymentKey)
	require.NoError(t, err)

	future := func() time.Time { return time.Now().Add(DefaultPaymentTimeout + time.Minute) }
	f.orders.now = future
	f.reconciler.now = future

	summary, err := f.reconciler.Sweep(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Found)
}

type flakyOrderRepo struct {
	domain.OrderRepository
	failures int
	calls    int
}

func (r *flakyOrderRepo) FindExpired(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, errors.New("store unavailable")
	}
	return r.OrderRepository.FindExpired(ctx, now)
}

func TestSweepRetriesWithBackoff(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyOrderRepo{OrderRepository: f.orderRepo, failures: 2}
	rec := NewReconciler(f.orders, flaky, zap.NewNop())
	rec.backoffBase = time.Millisecond
	rec.maxRetries = 3

	rec.sweepWithRetry(context.Background())
	require.Equal(t, 3, flaky.calls)
}

func TestSweepGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyOrderRepo{OrderRepository: f.orderRepo, failures: 10}
	rec := NewReconciler(f.orders, flaky, zap.NewNop())
	rec.backoffBase = time.Millisecond
	rec.maxRetries = 2

	rec.sweepWithRetry(context.Background())
	require.Equal(t, 3, flaky.calls) // initial try + two retries
}

func TestRunSweepsImmediatelyOnStart(t *testing.T) {
	f := newFixture(t)
	orders := f.checkout("p1", 10, 10, 2)
	future := func() time.Time { return time.Now().Add(DefaultPaymentTimeout + time.Minute) }
	f.orders.now = future
	f.reconciler.now = future

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	// The interval is far longer than the test; only the startup sweep
	// can cancel the order.
	go func() { done <- f.reconciler.Run(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for {
		got, err := f.orders.Get(f.ctx, orders[0].ID)
		require.NoError(t, err)
		if got.Status == domain.OrderCancelled {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expired order not cancelled by startup sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.reconciler.Run(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
