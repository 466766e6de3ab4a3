package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/sokoide/orderflow/pkg/domain"
)

const uniqueViolation = "23505"

// CartLineRepository implements domain.CartLineRepository. The unique
// constraint on (cart_id, product_id, size) backstops the
// one-line-per-unit invariant.
type CartLineRepository struct {
	s *Store
}

// NewCartLineRepository creates a new CartLineRepository.
func NewCartLineRepository(s *Store) *CartLineRepository {
	return &CartLineRepository{s: s}
}

const cartLineColumns = `id, cart_id, product_id, size, quantity, reservation_held, added_at, updated_at`

func (r *CartLineRepository) Create(ctx context.Context, tx domain.Tx, line *domain.CartLine) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO cart_lines (`+cartLineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ID, line.CartID, line.Unit.ProductID, line.Unit.Size,
		line.Quantity, line.ReservationHeld, line.AddedAt, line.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrDuplicateCartLine
	}
	return err
}

func (r *CartLineRepository) Update(ctx context.Context, tx domain.Tx, line *domain.CartLine) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = $2, reservation_held = $3, updated_at = $4 WHERE id = $1`,
		line.ID, line.Quantity, line.ReservationHeld, line.UpdatedAt)
	if err != nil {
		return err
	}
	return oneRow(res, domain.ErrCartLineNotFound)
}

func (r *CartLineRepository) Delete(ctx context.Context, tx domain.Tx, id string) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res, domain.ErrCartLineNotFound)
}

func (r *CartLineRepository) Get(ctx context.Context, tx domain.Tx, id string) (*domain.CartLine, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	return scanCartLine(t.QueryRowContext(ctx,
		`SELECT `+cartLineColumns+` FROM cart_lines WHERE id = $1`, id))
}

func (r *CartLineRepository) FindByUnit(ctx context.Context, tx domain.Tx, cartID string, ref domain.UnitRef) (*domain.CartLine, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	return scanCartLine(t.QueryRowContext(ctx,
		`SELECT `+cartLineColumns+` FROM cart_lines WHERE cart_id = $1 AND product_id = $2 AND size = $3`,
		cartID, ref.ProductID, ref.Size))
}

func (r *CartLineRepository) ListByCart(ctx context.Context, tx domain.Tx, cartID string) ([]*domain.CartLine, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.QueryContext(ctx,
		`SELECT `+cartLineColumns+` FROM cart_lines WHERE cart_id = $1 ORDER BY added_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*domain.CartLine
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartLine(row rowScanner) (*domain.CartLine, error) {
	var line domain.CartLine
	err := row.Scan(&line.ID, &line.CartID, &line.Unit.ProductID, &line.Unit.Size,
		&line.Quantity, &line.ReservationHeld, &line.AddedAt, &line.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func oneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
