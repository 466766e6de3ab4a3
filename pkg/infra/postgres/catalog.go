package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Catalog implements domain.Catalog, domain.CatalogWriter and
// domain.SnapshotStore on the products and product_snapshots tables.
type Catalog struct {
	s *Store
}

// NewCatalog creates a new Catalog.
func NewCatalog(s *Store) *Catalog {
	return &Catalog{s: s}
}

func (c *Catalog) Product(ctx context.Context, id string) (domain.ProductInfo, error) {
	var info domain.ProductInfo
	err := c.s.db.QueryRowContext(ctx,
		`SELECT id, name, description, price, has_sizes, retired FROM products WHERE id = $1`, id,
	).Scan(&info.ID, &info.Name, &info.Description, &info.Price, &info.HasSizes, &info.Retired)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductInfo{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.ProductInfo{}, err
	}
	if !info.HasSizes {
		return info, nil
	}

	rows, err := c.s.db.QueryContext(ctx,
		`SELECT size FROM product_sizes WHERE product_id = $1 ORDER BY size`, id)
	if err != nil {
		return domain.ProductInfo{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var size string
		if err := rows.Scan(&size); err != nil {
			return domain.ProductInfo{}, err
		}
		info.Sizes = append(info.Sizes, size)
	}
	return info, rows.Err()
}

// SaveProduct upserts the catalog fields, leaving the stock counters on
// an existing row untouched.
func (c *Catalog) SaveProduct(ctx context.Context, info domain.ProductInfo) error {
	_, err := c.s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price, has_sizes, retired)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			has_sizes = EXCLUDED.has_sizes,
			retired = EXCLUDED.retired,
			updated_at = now()`,
		info.ID, info.Name, info.Description, info.Price, info.HasSizes, info.Retired)
	if err != nil {
		return err
	}
	for _, size := range info.Sizes {
		if _, err := c.s.db.ExecContext(ctx,
			`INSERT INTO product_sizes (product_id, size) VALUES ($1, $2)
			ON CONFLICT (product_id, size) DO NOTHING`,
			info.ID, size); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) RecordSnapshotIfChanged(ctx context.Context, info domain.ProductInfo) (bool, error) {
	latest, err := c.LatestSnapshot(ctx, info.ID)
	if err != nil {
		return false, err
	}
	if latest != nil && !latest.Changed(info) {
		return false, nil
	}
	_, err = c.s.db.ExecContext(ctx,
		`INSERT INTO product_snapshots (product_id, name, price) VALUES ($1, $2, $3)`,
		info.ID, info.Name, info.Price)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) LatestSnapshot(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	var snap domain.ProductSnapshot
	err := c.s.db.QueryRowContext(ctx,
		`SELECT product_id, name, price, taken_at FROM product_snapshots
		WHERE product_id = $1 ORDER BY id DESC LIMIT 1`, productID,
	).Scan(&snap.ProductID, &snap.Name, &snap.Price, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
