package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Cart manages reservation holders. Adding or growing a line reserves
// stock in the same transaction as the line mutation; removing a line
// releases its reservation best-effort, because a cart line must never
// be stuck behind ledger inconsistency.
type Cart struct {
	store  domain.Transactor
	lines  domain.CartLineRepository
	ledger *Ledger
	log    *zap.Logger
}

// NewCart creates a new Cart service.
func NewCart(store domain.Transactor, lines domain.CartLineRepository, ledger *Ledger, log *zap.Logger) *Cart {
	return &Cart{store: store, lines: lines, ledger: ledger, log: log}
}

// Add puts quantity of a unit into the cart. An existing line for the
// same unit grows by the delta; otherwise a new line is created and the
// full quantity reserved. The storage layer rejects a duplicate line as
// a backstop.
func (c *Cart) Add(ctx context.Context, cartID string, ref domain.UnitRef, quantity int) (*domain.CartLine, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	line, err := c.lines.FindByUnit(ctx, tx, cartID, ref)
	switch {
	case err == nil:
		if err := c.ledger.ReserveTx(ctx, tx, ref, quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
		line.Quantity += quantity
		line.UpdatedAt = time.Now()
		if err := c.lines.Update(ctx, tx, line); err != nil {
			tx.Rollback()
			return nil, err
		}
	case errors.Is(err, domain.ErrCartLineNotFound):
		if err := c.ledger.ReserveTx(ctx, tx, ref, quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
		now := time.Now()
		line = &domain.CartLine{
			ID:              uuid.New().String(),
			CartID:          cartID,
			Unit:            ref,
			Quantity:        quantity,
			ReservationHeld: true,
			AddedAt:         now,
			UpdatedAt:       now,
		}
		if err := c.lines.Create(ctx, tx, line); err != nil {
			tx.Rollback()
			return nil, err
		}
	default:
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateQuantity sets a line to a new quantity, reserving or releasing
// the delta. A quantity of zero or less removes the line entirely.
func (c *Cart) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*domain.CartLine, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	line, err := c.lines.Get(ctx, tx, lineID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if quantity <= 0 {
		if err := c.ledger.UnreserveTx(ctx, tx, line.Unit, line.Quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := c.lines.Delete(ctx, tx, line.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		return nil, tx.Commit()
	}

	delta := quantity - line.Quantity
	switch {
	case delta > 0:
		err = c.ledger.ReserveTx(ctx, tx, line.Unit, delta)
	case delta < 0:
		err = c.ledger.UnreserveTx(ctx, tx, line.Unit, -delta)
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	line.Quantity = quantity
	line.UpdatedAt = time.Now()
	if err := c.lines.Update(ctx, tx, line); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return line, nil
}

// Remove releases the line's reservation and deletes it. The unreserve
// is best-effort: on failure the anomaly is logged and the line is
// removed anyway.
func (c *Cart) Remove(ctx context.Context, lineID string) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	line, err := c.lines.Get(ctx, tx, lineID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if line.ReservationHeld {
		if err := c.ledger.Unreserve(ctx, line.Unit, line.Quantity); err != nil {
			c.log.Warn("failed to unreserve stock for removed cart line",
				zap.String("cart_line_id", line.ID),
				zap.String("unit", line.Unit.String()),
				zap.Error(err))
		}
	}

	tx, err = c.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := c.lines.Delete(ctx, tx, line.ID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Clear removes every line in the cart, releasing reservations
// best-effort per line; one failure does not stop the rest.
func (c *Cart) Clear(ctx context.Context, cartID string) error {
	lines, err := c.List(ctx, cartID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := c.Remove(ctx, line.ID); err != nil {
			c.log.Warn("failed to remove cart line during clear",
				zap.String("cart_line_id", line.ID),
				zap.Error(err))
		}
	}
	return nil
}

// List returns the cart's lines.
func (c *Cart) List(ctx context.Context, cartID string) ([]*domain.CartLine, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	lines, err := c.lines.ListByCart(ctx, tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return lines, nil
}
