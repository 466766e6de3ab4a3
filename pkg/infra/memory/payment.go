package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sokoide/orderflow/pkg/domain"
)

// PaymentRepository implements domain.PaymentRepository on a Store.
type PaymentRepository struct {
	s *Store
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(s *Store) *PaymentRepository {
	return &PaymentRepository{s: s}
}

func (r *PaymentRepository) Create(ctx context.Context, tx domain.Tx, p *domain.Payment) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() { delete(r.s.payments, p.ID) })
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, tx domain.Tx, p *domain.Payment) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	t.undo = append(t.undo, func() { r.s.payments[p.ID] = prev })
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) Lock(ctx context.Context, tx domain.Tx, id string) (*domain.Payment, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) LatestByReference(ctx context.Context, ref string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.Payment
	for _, p := range r.s.payments {
		if p.OrderReference != ref {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(latest), nil
}

func (r *PaymentRepository) AttemptCount(ctx context.Context, tx domain.Tx, paymentID string) (int, error) {
	if _, err := r.s.tx(tx); err != nil {
		return 0, err
	}
	return len(r.s.attempts[paymentID]), nil
}

func (r *PaymentRepository) CreateAttempt(ctx context.Context, tx domain.Tx, a *domain.PaymentAttempt) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	id := a.PaymentID
	t.undo = append(t.undo, func() {
		r.s.attempts[id] = r.s.attempts[id][:len(r.s.attempts[id])-1]
	})
	r.s.attempts[id] = append(r.s.attempts[id], cloneAttempt(a))
	return nil
}

func (r *PaymentRepository) ListAttempts(ctx context.Context, paymentID string) ([]*domain.PaymentAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	attempts := make([]*domain.PaymentAttempt, 0, len(r.s.attempts[paymentID]))
	for _, a := range r.s.attempts[paymentID] {
		attempts = append(attempts, cloneAttempt(a))
	}
	return attempts, nil
}

func (r *PaymentRepository) CreateRefund(ctx context.Context, tx domain.Tx, refund *domain.Refund) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	id := refund.PaymentID
	t.undo = append(t.undo, func() {
		r.s.refunds[id] = r.s.refunds[id][:len(r.s.refunds[id])-1]
	})
	r.s.refunds[id] = append(r.s.refunds[id], cloneRefund(refund))
	return nil
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, tx domain.Tx, refund *domain.Refund) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	refunds := r.s.refunds[refund.PaymentID]
	for i, existing := range refunds {
		if existing.ID == refund.ID {
			prev := existing
			idx := i
			t.undo = append(t.undo, func() { refunds[idx] = prev })
			refunds[i] = cloneRefund(refund)
			return nil
		}
	}
	return domain.ErrPaymentNotFound
}

func (r *PaymentRepository) RefundedTotal(ctx context.Context, tx domain.Tx, paymentID string) (decimal.Decimal, error) {
	if _, err := r.s.tx(tx); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, refund := range r.s.refunds[paymentID] {
		if refund.Status == domain.RefundCompleted || refund.Status == domain.RefundProcessing {
			total = total.Add(refund.Amount)
		}
	}
	return total, nil
}
