// Package memory provides in-memory implementations of the orderflow
// repositories. The store serializes transactions behind one mutex and
// keeps an undo log per transaction, so rollback semantics match the
// relational adapters closely enough for tests and the demo binary.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sokoide/orderflow/pkg/domain"
)

var errTxClosed = errors.New("memory: transaction already closed")

type productRecord struct {
	hasSizes bool
	retired  bool
}

type lineKey struct {
	cartID string
	ref    domain.UnitRef
}

// Store holds all relational state. It implements domain.Transactor;
// the repository types in this package share one Store.
type Store struct {
	mu sync.Mutex

	products map[string]*productRecord
	levels   map[domain.UnitRef]*domain.StockLevel

	lines    map[string]*domain.CartLine
	lineKeys map[lineKey]string

	orders map[string]*domain.Order

	payments map[string]*domain.Payment
	attempts map[string][]*domain.PaymentAttempt
	refunds  map[string][]*domain.Refund
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]*productRecord),
		levels:   make(map[domain.UnitRef]*domain.StockLevel),
		lines:    make(map[string]*domain.CartLine),
		lineKeys: make(map[lineKey]string),
		orders:   make(map[string]*domain.Order),
		payments: make(map[string]*domain.Payment),
		attempts: make(map[string][]*domain.PaymentAttempt),
		refunds:  make(map[string][]*domain.Refund),
	}
}

type storeTx struct {
	s    *Store
	done bool
	undo []func()
}

// Begin takes the store lock; the transaction holds it until Commit or
// Rollback, which serializes writers exactly like row locks would.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	s.mu.Lock()
	return &storeTx{s: s}, nil
}

func (t *storeTx) Commit() error {
	if t.done {
		return errTxClosed
	}
	t.done = true
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

func (t *storeTx) Rollback() error {
	if t.done {
		return errTxClosed
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

func (s *Store) tx(x domain.Tx) (*storeTx, error) {
	t, ok := x.(*storeTx)
	if !ok || t.s != s {
		return nil, errors.New("memory: foreign transaction")
	}
	if t.done {
		return nil, errTxClosed
	}
	return t, nil
}

// SeedProduct registers a simple product with the given availability.
func (s *Store) SeedProduct(id string, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &productRecord{}
	ref := domain.UnitRef{ProductID: id}
	s.levels[ref] = &domain.StockLevel{Ref: ref, Available: available}
}

// SeedSizedProduct registers a sized product with per-size availability.
func (s *Store) SeedSizedProduct(id string, sizes map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &productRecord{hasSizes: true}
	for size, available := range sizes {
		ref := domain.UnitRef{ProductID: id, Size: size}
		s.levels[ref] = &domain.StockLevel{Ref: ref, Available: available}
	}
}

func cloneLevel(l *domain.StockLevel) *domain.StockLevel {
	c := *l
	return &c
}

func cloneLine(l *domain.CartLine) *domain.CartLine {
	c := *l
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.PaymentExpiresAt != nil {
		t := *o.PaymentExpiresAt
		c.PaymentExpiresAt = &t
	}
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.OrderIDs = append([]string(nil), p.OrderIDs...)
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func cloneAttempt(a *domain.PaymentAttempt) *domain.PaymentAttempt {
	c := *a
	if a.Response != nil {
		c.Response = make(map[string]string, len(a.Response))
		for k, v := range a.Response {
			c.Response[k] = v
		}
	}
	return &c
}

func cloneRefund(r *domain.Refund) *domain.Refund {
	c := *r
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
