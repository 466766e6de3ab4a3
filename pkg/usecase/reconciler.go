package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Reconciler sweep defaults.
const (
	DefaultSweepInterval = 5 * time.Minute
	defaultBackoffBase   = time.Minute
	defaultMaxRetries    = 3
)

// SweepError is one order the sweep could not clean up.
type SweepError struct {
	OrderID string
	Reason  string
}

// SweepSummary reports one reconciliation run. Skipped counts orders
// that left under_paying between the query and the per-order lock.
type SweepSummary struct {
	Found     int
	Processed int
	Skipped   int
	Failed    int
	Errors    []SweepError
}

// Reconciler periodically cancels under_paying orders whose payment
// window lapsed, releasing their reservations. It runs alongside live
// traffic; every order is re-verified under its row lock before being
// touched.
type Reconciler struct {
	orders *Orders
	repo   domain.OrderRepository
	log    *zap.Logger

	now         func() time.Time
	backoffBase time.Duration
	maxRetries  int
}

// NewReconciler creates a new Reconciler.
func NewReconciler(orders *Orders, repo domain.OrderRepository, log *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:      orders,
		repo:        repo,
		log:         log,
		now:         time.Now,
		backoffBase: defaultBackoffBase,
		maxRetries:  defaultMaxRetries,
	}
}

// Sweep runs one reconciliation pass. Per-order failures are recorded
// and do not stop the rest of the run; only a failure of the expired
// query itself aborts the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (SweepSummary, error) {
	expired, err := r.repo.FindExpired(ctx, r.now())
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Found: len(expired)}
	for _, order := range expired {
		cancelled, err := r.orders.CancelDueToExpiry(ctx, order.ID)
		switch {
		case errors.Is(err, domain.ErrPaymentWindowActive):
			// Deadline moved between query and lock; leave it alone.
			summary.Skipped++
		case err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, SweepError{OrderID: order.ID, Reason: err.Error()})
			r.log.Error("failed to cancel expired order",
				zap.String("order_id", order.ID), zap.Error(err))
		case cancelled:
			summary.Processed++
		default:
			summary.Skipped++
		}
	}

	if summary.Found > 0 {
		r.log.Info("expiry sweep finished",
			zap.Int("found", summary.Found),
			zap.Int("processed", summary.Processed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed))
	}
	return summary, nil
}

// Run sweeps immediately and then on the given interval until the
// context is cancelled. The up-front sweep catches orders that expired
// while the process was down, instead of letting them hold reservations
// for another full interval. A sweep-level failure is retried with
// exponential backoff before the next tick; per-order failures never
// trigger this path.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.sweepWithRetry(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepWithRetry(ctx)
		}
	}
}

func (r *Reconciler) sweepWithRetry(ctx context.Context) {
	backoff := r.backoffBase
	for attempt := 0; ; attempt++ {
		_, err := r.Sweep(ctx)
		if err == nil {
			return
		}
		if attempt >= r.maxRetries {
			r.log.Error("expiry sweep failed, giving up until next tick",
				zap.Int("retries", attempt), zap.Error(err))
			return
		}
		r.log.Warn("expiry sweep failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
