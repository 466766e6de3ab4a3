package memory

import (
	"context"
	"sort"

	"github.com/sokoide/orderflow/pkg/domain"
)

// CartLineRepository implements domain.CartLineRepository on a Store.
type CartLineRepository struct {
	s *Store
}

// NewCartLineRepository creates a new CartLineRepository.
func NewCartLineRepository(s *Store) *CartLineRepository {
	return &CartLineRepository{s: s}
}

func (r *CartLineRepository) Create(ctx context.Context, tx domain.Tx, line *domain.CartLine) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	key := lineKey{cartID: line.CartID, ref: line.Unit}
	if _, exists := r.s.lineKeys[key]; exists {
		return domain.ErrDuplicateCartLine
	}
	t.undo = append(t.undo, func() {
		delete(r.s.lines, line.ID)
		delete(r.s.lineKeys, key)
	})
	r.s.lines[line.ID] = cloneLine(line)
	r.s.lineKeys[key] = line.ID
	return nil
}

func (r *CartLineRepository) Update(ctx context.Context, tx domain.Tx, line *domain.CartLine) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.lines[line.ID]
	if !ok {
		return domain.ErrCartLineNotFound
	}
	t.undo = append(t.undo, func() { r.s.lines[line.ID] = prev })
	r.s.lines[line.ID] = cloneLine(line)
	return nil
}

func (r *CartLineRepository) Delete(ctx context.Context, tx domain.Tx, id string) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.lines[id]
	if !ok {
		return domain.ErrCartLineNotFound
	}
	key := lineKey{cartID: prev.CartID, ref: prev.Unit}
	t.undo = append(t.undo, func() {
		r.s.lines[id] = prev
		r.s.lineKeys[key] = id
	})
	delete(r.s.lines, id)
	delete(r.s.lineKeys, key)
	return nil
}

func (r *CartLineRepository) Get(ctx context.Context, tx domain.Tx, id string) (*domain.CartLine, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	line, ok := r.s.lines[id]
	if !ok {
		return nil, domain.ErrCartLineNotFound
	}
	return cloneLine(line), nil
}

func (r *CartLineRepository) FindByUnit(ctx context.Context, tx domain.Tx, cartID string, ref domain.UnitRef) (*domain.CartLine, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	id, ok := r.s.lineKeys[lineKey{cartID: cartID, ref: ref}]
	if !ok {
		return nil, domain.ErrCartLineNotFound
	}
	return cloneLine(r.s.lines[id]), nil
}

func (r *CartLineRepository) ListByCart(ctx context.Context, tx domain.Tx, cartID string) ([]*domain.CartLine, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	var lines []*domain.CartLine
	for _, line := range r.s.lines {
		if line.CartID == cartID {
			lines = append(lines, cloneLine(line))
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].ID < lines[j].ID
		}
		return lines[i].AddedAt.Before(lines[j].AddedAt)
	})
	return lines, nil
}
