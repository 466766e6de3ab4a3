package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Ledger exposes the atomic stock operations: reserve, unreserve,
// confirm-sale and a lock-free availability read. Every mutation runs
// under an exclusive row lock on the unit so concurrent callers are
// serialized and can never oversell.
type Ledger struct {
	store domain.Transactor
	inv   domain.InventoryRepository
	log   *zap.Logger
}

// NewLedger creates a new Ledger.
func NewLedger(store domain.Transactor, inv domain.InventoryRepository, log *zap.Logger) *Ledger {
	return &Ledger{store: store, inv: inv, log: log}
}

// Reserve moves quantity from available to reserved in its own
// transaction.
func (l *Ledger) Reserve(ctx context.Context, ref domain.UnitRef, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return l.withTx(ctx, func(tx domain.Tx) error {
		return l.ReserveTx(ctx, tx, ref, quantity)
	})
}

// ReserveTx is Reserve inside a caller-owned transaction, so cart and
// checkout mutations commit atomically with the reservation.
func (l *Ledger) ReserveTx(ctx context.Context, tx domain.Tx, ref domain.UnitRef, quantity int) error {
	level, err := l.inv.LockLevel(ctx, tx, ref)
	if err != nil {
		return err
	}
	if err := level.Reserve(quantity); err != nil {
		return err
	}
	return l.inv.SaveLevel(ctx, tx, level)
}

// Unreserve returns quantity from reserved to available in its own
// transaction.
func (l *Ledger) Unreserve(ctx context.Context, ref domain.UnitRef, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return l.withTx(ctx, func(tx domain.Tx) error {
		return l.UnreserveTx(ctx, tx, ref, quantity)
	})
}

// UnreserveTx is Unreserve inside a caller-owned transaction. Reserved
// is floored at zero rather than rejected: refusing would strand stock
// with no recovery path. The clamp is an anomaly worth alerting on.
func (l *Ledger) UnreserveTx(ctx context.Context, tx domain.Tx, ref domain.UnitRef, quantity int) error {
	level, err := l.inv.LockLevel(ctx, tx, ref)
	if err != nil {
		return err
	}
	clamped, err := level.Unreserve(quantity)
	if err != nil {
		return err
	}
	if clamped {
		l.log.Warn("reserved quantity went negative, clamping to zero",
			zap.String("unit", ref.String()),
			zap.Int("quantity", quantity))
	}
	return l.inv.SaveLevel(ctx, tx, level)
}

// ConfirmSale permanently removes reserved stock; the sale is final and
// the units leave the system.
func (l *Ledger) ConfirmSale(ctx context.Context, ref domain.UnitRef, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return l.withTx(ctx, func(tx domain.Tx) error {
		return l.ConfirmSaleTx(ctx, tx, ref, quantity)
	})
}

// ConfirmSaleTx is ConfirmSale inside a caller-owned transaction, used
// by payment confirmation to convert a whole batch atomically.
func (l *Ledger) ConfirmSaleTx(ctx context.Context, tx domain.Tx, ref domain.UnitRef, quantity int) error {
	level, err := l.inv.LockLevel(ctx, tx, ref)
	if err != nil {
		return err
	}
	if err := level.ConfirmSale(quantity); err != nil {
		return err
	}
	return l.inv.SaveLevel(ctx, tx, level)
}

// CheckAvailability reads the unit's counters without locking.
func (l *Ledger) CheckAvailability(ctx context.Context, ref domain.UnitRef) (domain.StockLevel, error) {
	return l.inv.Level(ctx, ref)
}

// RetireUnit atomically marks a product and all its size variants
// unavailable. Retired units reject new reservations; held reservations
// stay valid until released or confirmed.
func (l *Ledger) RetireUnit(ctx context.Context, productID string) error {
	err := l.withTx(ctx, func(tx domain.Tx) error {
		return l.inv.RetireProduct(ctx, tx, productID)
	})
	if err != nil {
		return err
	}
	l.log.Info("inventory unit retired", zap.String("product_id", productID))
	return nil
}

func (l *Ledger) withTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
