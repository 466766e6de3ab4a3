package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tx is one unit of work against the relational store. Row locks taken
// through a Tx are held until Commit or Rollback.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor opens transactions against the store backing the
// repositories below. All repositories handed the same Tx operate
// inside the same transaction.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// InventoryRepository persists stock counters. LockLevel takes an
// exclusive row lock on the unit (product row, or size row for sized
// products) so the read-validate-write cycle is serialized; unlocked
// read-then-write would allow overselling.
type InventoryRepository interface {
	// LockLevel loads the unit's counters under an exclusive lock.
	// Fails with ErrVariantRequired, ErrVariantNotFound or
	// ErrVariantMismatch when the ref does not match the product mode.
	LockLevel(ctx context.Context, tx Tx, ref UnitRef) (*StockLevel, error)
	SaveLevel(ctx context.Context, tx Tx, level *StockLevel) error
	// Level is a lock-free read for availability checks.
	Level(ctx context.Context, ref UnitRef) (StockLevel, error)
	// RetireProduct marks the product and every size variant
	// unavailable in one statement batch under the product lock.
	RetireProduct(ctx context.Context, tx Tx, productID string) error
}

// CartLineRepository persists reservation holders. Create enforces the
// one-line-per-(cart, unit) invariant and fails with
// ErrDuplicateCartLine when it is violated.
type CartLineRepository interface {
	Create(ctx context.Context, tx Tx, line *CartLine) error
	Update(ctx context.Context, tx Tx, line *CartLine) error
	Delete(ctx context.Context, tx Tx, id string) error
	Get(ctx context.Context, tx Tx, id string) (*CartLine, error)
	// FindByUnit returns the cart's line for a unit, or ErrCartLineNotFound.
	FindByUnit(ctx context.Context, tx Tx, cartID string, ref UnitRef) (*CartLine, error)
	ListByCart(ctx context.Context, tx Tx, cartID string) ([]*CartLine, error)
}

// OrderRepository persists orders. Lock variants take exclusive row
// locks; money-driven transitions must go through them.
type OrderRepository interface {
	Create(ctx context.Context, tx Tx, order *Order) error
	Update(ctx context.Context, tx Tx, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Lock(ctx context.Context, tx Tx, id string) (*Order, error)
	// LockBatch returns all under_paying orders sharing the payment
	// hash/key pair, locked, in creation order.
	LockBatch(ctx context.Context, tx Tx, hash, key string) ([]*Order, error)
	// FindExpired returns an unlocked snapshot of under_paying orders
	// whose payment window lapsed before now. Callers must re-check
	// each order under its lock before mutating.
	FindExpired(ctx context.Context, now time.Time) ([]*Order, error)
}

// PaymentRepository persists payments, their append-only attempt
// history and refunds.
type PaymentRepository interface {
	Create(ctx context.Context, tx Tx, p *Payment) error
	Update(ctx context.Context, tx Tx, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Lock(ctx context.Context, tx Tx, id string) (*Payment, error)
	// LatestByReference returns the most recent payment for an order
	// reference (payment hash).
	LatestByReference(ctx context.Context, ref string) (*Payment, error)
	AttemptCount(ctx context.Context, tx Tx, paymentID string) (int, error)
	CreateAttempt(ctx context.Context, tx Tx, a *PaymentAttempt) error
	ListAttempts(ctx context.Context, paymentID string) ([]*PaymentAttempt, error)
	CreateRefund(ctx context.Context, tx Tx, r *Refund) error
	UpdateRefund(ctx context.Context, tx Tx, r *Refund) error
	// RefundedTotal sums completed and still-processing refunds.
	// In-flight refunds count against the payment so concurrent
	// callers cannot oversubscribe it; a failed refund releases its
	// share.
	RefundedTotal(ctx context.Context, tx Tx, paymentID string) (decimal.Decimal, error)
}

// Catalog is the read-only product capability consumed from the
// surrounding system: current price, name and variant list.
type Catalog interface {
	Product(ctx context.Context, id string) (ProductInfo, error)
}

// CatalogWriter is the catalog mutation surface. Implementations call
// nothing implicitly; snapshot recording is the caller's job.
type CatalogWriter interface {
	SaveProduct(ctx context.Context, info ProductInfo) error
}

// SnapshotStore records point-in-time copies of catalog fields.
type SnapshotStore interface {
	// RecordSnapshotIfChanged writes a snapshot when the latest one
	// differs from info (or none exists). Returns whether it wrote.
	RecordSnapshotIfChanged(ctx context.Context, info ProductInfo) (bool, error)
	LatestSnapshot(ctx context.Context, productID string) (*ProductSnapshot, error)
}

// Notifier is the fire-and-forget notification capability. Callers log
// and ignore failures; delivery is never waited on.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any) error
}

// Gateway is the payment gateway strategy. One implementation per
// gateway type, selected by configuration, never by branching.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (RefundResult, error)
}
