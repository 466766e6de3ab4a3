package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sokoide/orderflow/pkg/domain"
)

// OrderRepository implements domain.OrderRepository.
type OrderRepository struct {
	s *Store
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(s *Store) *OrderRepository {
	return &OrderRepository{s: s}
}

const orderColumns = `id, user_id, product_id, size, product_name, quantity,
	unit_price, total_price, status, payment_status, payment_hash, payment_key,
	payment_method, shipping_address, customer_notes, admin_notes,
	paid_at, payment_expires_at, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		order.ID, order.UserID, order.Unit.ProductID, order.Unit.Size,
		order.ProductName, order.Quantity, order.UnitPrice, order.TotalPrice,
		order.Status, order.PaymentStatus, order.PaymentHash, order.PaymentKey,
		order.PaymentMethod, order.ShippingAddress, order.CustomerNotes, order.AdminNotes,
		order.PaidAt, order.PaymentExpiresAt, order.CreatedAt, order.UpdatedAt)
	return err
}

func (r *OrderRepository) Update(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, payment_method = $4,
			shipping_address = $5, customer_notes = $6, admin_notes = $7,
			paid_at = $8, payment_expires_at = $9, updated_at = $10
		WHERE id = $1`,
		order.ID, order.Status, order.PaymentStatus, order.PaymentMethod,
		order.ShippingAddress, order.CustomerNotes, order.AdminNotes,
		order.PaidAt, order.PaymentExpiresAt, order.UpdatedAt)
	if err != nil {
		return err
	}
	return oneRow(res, domain.ErrOrderNotFound)
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(r.s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *OrderRepository) Lock(ctx context.Context, tx domain.Tx, id string) (*domain.Order, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	return scanOrder(t.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrderRepository) LockBatch(ctx context.Context, tx domain.Tx, hash, key string) ([]*domain.Order, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE payment_hash = $1 AND payment_key = $2 AND status = $3
		ORDER BY created_at, id
		FOR UPDATE`,
		hash, key, domain.OrderUnderPaying)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *OrderRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND payment_expires_at < $2
		ORDER BY created_at, id`,
		domain.OrderUnderPaying, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(&order.ID, &order.UserID, &order.Unit.ProductID, &order.Unit.Size,
		&order.ProductName, &order.Quantity, &order.UnitPrice, &order.TotalPrice,
		&order.Status, &order.PaymentStatus, &order.PaymentHash, &order.PaymentKey,
		&order.PaymentMethod, &order.ShippingAddress, &order.CustomerNotes, &order.AdminNotes,
		&order.PaidAt, &order.PaymentExpiresAt, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
