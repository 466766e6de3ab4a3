package memory

import (
	"context"

	"github.com/sokoide/orderflow/pkg/domain"
)

// InventoryRepository implements domain.InventoryRepository on a Store.
type InventoryRepository struct {
	s *Store
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(s *Store) *InventoryRepository {
	return &InventoryRepository{s: s}
}

func (r *InventoryRepository) LockLevel(ctx context.Context, tx domain.Tx, ref domain.UnitRef) (*domain.StockLevel, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	return r.s.lockedLevel(ref)
}

func (s *Store) lockedLevel(ref domain.UnitRef) (*domain.StockLevel, error) {
	product, ok := s.products[ref.ProductID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if product.hasSizes && ref.Size == "" {
		return nil, domain.ErrVariantRequired
	}
	if !product.hasSizes && ref.Size != "" {
		return nil, domain.ErrVariantMismatch
	}
	level, ok := s.levels[ref]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	c := cloneLevel(level)
	c.Retired = product.retired
	return c, nil
}

func (r *InventoryRepository) SaveLevel(ctx context.Context, tx domain.Tx, level *domain.StockLevel) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.levels[level.Ref]
	if !ok {
		return domain.ErrVariantNotFound
	}
	t.undo = append(t.undo, func() { r.s.levels[level.Ref] = prev })
	r.s.levels[level.Ref] = cloneLevel(level)
	return nil
}

func (r *InventoryRepository) Level(ctx context.Context, ref domain.UnitRef) (domain.StockLevel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	level, err := r.s.lockedLevel(ref)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return *level, nil
}

func (r *InventoryRepository) RetireProduct(ctx context.Context, tx domain.Tx, productID string) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	product, ok := r.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	prev := product.retired
	t.undo = append(t.undo, func() { product.retired = prev })
	product.retired = true
	return nil
}
