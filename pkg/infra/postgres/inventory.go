package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sokoide/orderflow/pkg/domain"
)

// InventoryRepository implements domain.InventoryRepository. Simple
// products keep their counters on the products row; sized products keep
// one counter row per size in product_sizes.
type InventoryRepository struct {
	s *Store
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(s *Store) *InventoryRepository {
	return &InventoryRepository{s: s}
}

func (r *InventoryRepository) LockLevel(ctx context.Context, tx domain.Tx, ref domain.UnitRef) (*domain.StockLevel, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	return lockLevel(ctx, t, ref, true)
}

// Level reads the counters without locking.
func (r *InventoryRepository) Level(ctx context.Context, ref domain.UnitRef) (domain.StockLevel, error) {
	level, err := lockLevel(ctx, r.s.db, ref, false)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return *level, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lockLevel(ctx context.Context, q querier, ref domain.UnitRef, forUpdate bool) (*domain.StockLevel, error) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}

	level := &domain.StockLevel{Ref: ref}
	var hasSizes bool
	err := q.QueryRowContext(ctx,
		`SELECT has_sizes, retired, available, reserved, updated_at FROM products WHERE id = $1`+suffix,
		ref.ProductID,
	).Scan(&hasSizes, &level.Retired, &level.Available, &level.Reserved, &level.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if hasSizes && ref.Size == "" {
		return nil, domain.ErrVariantRequired
	}
	if !hasSizes && ref.Size != "" {
		return nil, domain.ErrVariantMismatch
	}
	if !hasSizes {
		return level, nil
	}

	// The product row lock above serializes all sizes of the product;
	// the size row lock narrows contention to the one unit.
	err = q.QueryRowContext(ctx,
		`SELECT available, reserved, updated_at FROM product_sizes WHERE product_id = $1 AND size = $2`+suffix,
		ref.ProductID, ref.Size,
	).Scan(&level.Available, &level.Reserved, &level.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return level, nil
}

func (r *InventoryRepository) SaveLevel(ctx context.Context, tx domain.Tx, level *domain.StockLevel) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}

	var res sql.Result
	if level.Ref.Size == "" {
		res, err = t.ExecContext(ctx,
			`UPDATE products SET available = $2, reserved = $3, updated_at = now() WHERE id = $1`,
			level.Ref.ProductID, level.Available, level.Reserved)
	} else {
		res, err = t.ExecContext(ctx,
			`UPDATE product_sizes SET available = $3, reserved = $4, updated_at = now() WHERE product_id = $1 AND size = $2`,
			level.Ref.ProductID, level.Ref.Size, level.Available, level.Reserved)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

func (r *InventoryRepository) RetireProduct(ctx context.Context, tx domain.Tx, productID string) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx,
		`UPDATE products SET retired = TRUE, updated_at = now() WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
