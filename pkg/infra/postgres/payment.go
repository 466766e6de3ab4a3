package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sokoide/orderflow/pkg/domain"
)

// PaymentRepository implements domain.PaymentRepository. Attempts are
// append-only; the (payment_id, number) primary key rejects duplicate
// attempt numbers.
type PaymentRepository struct {
	s *Store
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(s *Store) *PaymentRepository {
	return &PaymentRepository{s: s}
}

const paymentColumns = `id, order_reference, payment_key, order_ids, user_id,
	gateway_name, method, amount, fee_amount, net_amount, currency, status,
	transaction_id, gateway_ref, failure_reason, created_at, updated_at, processed_at`

func (r *PaymentRepository) Create(ctx context.Context, tx domain.Tx, p *domain.Payment) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.OrderReference, p.PaymentKey, pq.Array(p.OrderIDs), p.UserID,
		p.GatewayName, p.Method, p.Amount, p.FeeAmount, p.NetAmount, p.Currency, p.Status,
		p.TransactionID, p.GatewayRef, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.ProcessedAt)
	return err
}

func (r *PaymentRepository) Update(ctx context.Context, tx domain.Tx, p *domain.Payment) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx,
		`UPDATE payments SET status = $2, transaction_id = $3, gateway_ref = $4,
			failure_reason = $5, updated_at = $6, processed_at = $7
		WHERE id = $1`,
		p.ID, p.Status, p.TransactionID, p.GatewayRef,
		p.FailureReason, p.UpdatedAt, p.ProcessedAt)
	if err != nil {
		return err
	}
	return oneRow(res, domain.ErrPaymentNotFound)
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(r.s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PaymentRepository) Lock(ctx context.Context, tx domain.Tx, id string) (*domain.Payment, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	return scanPayment(t.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (r *PaymentRepository) LatestByReference(ctx context.Context, ref string) (*domain.Payment, error) {
	return scanPayment(r.s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE order_reference = $1 ORDER BY created_at DESC LIMIT 1`, ref))
}

func (r *PaymentRepository) AttemptCount(ctx context.Context, tx domain.Tx, paymentID string) (int, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return 0, err
	}
	var count int
	err = t.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_attempts WHERE payment_id = $1`, paymentID).Scan(&count)
	return count, err
}

func (r *PaymentRepository) CreateAttempt(ctx context.Context, tx domain.Tx, a *domain.PaymentAttempt) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	response := a.Response
	if response == nil {
		response = map[string]string{}
	}
	blob, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO payment_attempts (payment_id, number, status, error_message, response, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.PaymentID, a.Number, a.Status, a.ErrorMessage, blob, a.AttemptedAt)
	return err
}

func (r *PaymentRepository) ListAttempts(ctx context.Context, paymentID string) ([]*domain.PaymentAttempt, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT payment_id, number, status, error_message, response, attempted_at
		FROM payment_attempts WHERE payment_id = $1 ORDER BY number`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*domain.PaymentAttempt
	for rows.Next() {
		var a domain.PaymentAttempt
		var blob []byte
		if err := rows.Scan(&a.PaymentID, &a.Number, &a.Status, &a.ErrorMessage, &blob, &a.AttemptedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(blob, &a.Response); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func (r *PaymentRepository) CreateRefund(ctx context.Context, tx domain.Tx, refund *domain.Refund) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx,
		`INSERT INTO refunds (id, payment_id, amount, reason, status, gateway_ref, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		refund.ID, refund.PaymentID, refund.Amount, refund.Reason,
		refund.Status, refund.GatewayRef, refund.CreatedAt, refund.ProcessedAt)
	return err
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, tx domain.Tx, refund *domain.Refund) error {
	t, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx,
		`UPDATE refunds SET status = $2, gateway_ref = $3, processed_at = $4 WHERE id = $1`,
		refund.ID, refund.Status, refund.GatewayRef, refund.ProcessedAt)
	if err != nil {
		return err
	}
	return oneRow(res, domain.ErrPaymentNotFound)
}

func (r *PaymentRepository) RefundedTotal(ctx context.Context, tx domain.Tx, paymentID string) (decimal.Decimal, error) {
	t, err := sqlTx(tx)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err = t.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = $1 AND status IN ($2, $3)`,
		paymentID, domain.RefundCompleted, domain.RefundProcessing).Scan(&total)
	return total, err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var orderIDs pq.StringArray
	err := row.Scan(&p.ID, &p.OrderReference, &p.PaymentKey, &orderIDs, &p.UserID,
		&p.GatewayName, &p.Method, &p.Amount, &p.FeeAmount, &p.NetAmount, &p.Currency, &p.Status,
		&p.TransactionID, &p.GatewayRef, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.OrderIDs = orderIDs
	return &p, nil
}
