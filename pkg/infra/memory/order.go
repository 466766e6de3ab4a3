package memory

import (
	"context"
	"sort"
	"time"

	"github.com/sokoide/orderflow/pkg/domain"
)

// OrderRepository implements domain.OrderRepository on a Store.
type OrderRepository struct {
	s *Store
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(s *Store) *OrderRepository {
	return &OrderRepository{s: s}
}

func (r *OrderRepository) Create(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() { delete(r.s.orders, order.ID) })
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	t.undo = append(t.undo, func() { r.s.orders[order.ID] = prev })
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) Lock(ctx context.Context, tx domain.Tx, id string) (*domain.Order, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) LockBatch(ctx context.Context, tx domain.Tx, hash, key string) ([]*domain.Order, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	var orders []*domain.Order
	for _, order := range r.s.orders {
		if order.PaymentHash == hash && order.PaymentKey == key && order.Status == domain.OrderUnderPaying {
			orders = append(orders, cloneOrder(order))
		}
	}
	sortOrders(orders)
	return orders, nil
}

func (r *OrderRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var orders []*domain.Order
	for _, order := range r.s.orders {
		if order.Status == domain.OrderUnderPaying &&
			order.PaymentExpiresAt != nil && order.PaymentExpiresAt.Before(now) {
			orders = append(orders, cloneOrder(order))
		}
	}
	sortOrders(orders)
	return orders, nil
}

func sortOrders(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
