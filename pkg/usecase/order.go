package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Notification event types emitted on state transitions.
const (
	EventOrderConfirmed     = "order.confirmed"
	EventPaymentFailed      = "payment.failed"
	EventPaymentRefunded    = "payment.refunded"
	EventReservationExpired = "reservation.expired"
)

// DefaultPaymentTimeout is how long a checkout batch may stay unpaid.
const DefaultPaymentTimeout = 15 * time.Minute

// OrdersDeps wires the collaborators of the order service.
type OrdersDeps struct {
	Store     domain.Transactor
	Orders    domain.OrderRepository
	Lines     domain.CartLineRepository
	Ledger    *Ledger
	Catalog   domain.Catalog
	Snapshots domain.SnapshotStore
	Notifier  domain.Notifier
	Logger    *zap.Logger
}

// CheckoutOptions carry the buyer-supplied checkout details.
type CheckoutOptions struct {
	ShippingAddress string
	PaymentMethod   string
	CustomerNotes   string
}

// Orders drives the order lifecycle: creation from cart lines at
// checkout, payment confirmation, expiry cancellation and the
// store-owner fulfillment progression.
type Orders struct {
	store     domain.Transactor
	orders    domain.OrderRepository
	lines     domain.CartLineRepository
	ledger    *Ledger
	catalog   domain.Catalog
	snapshots domain.SnapshotStore
	notifier  domain.Notifier
	log       *zap.Logger

	paymentTimeout time.Duration
	now            func() time.Time
}

// NewOrders creates a new order service with the given payment window.
func NewOrders(deps OrdersDeps, paymentTimeout time.Duration) *Orders {
	if paymentTimeout <= 0 {
		paymentTimeout = DefaultPaymentTimeout
	}
	return &Orders{
		store:          deps.Store,
		orders:         deps.Orders,
		lines:          deps.Lines,
		ledger:         deps.Ledger,
		catalog:        deps.Catalog,
		snapshots:      deps.Snapshots,
		notifier:       deps.Notifier,
		log:            deps.Logger,
		paymentTimeout: paymentTimeout,
		now:            time.Now,
	}
}

// CheckoutCart converts every line of the cart into orders sharing one
// payment hash/key pair. Reservation ownership transfers from the lines
// to the orders; the lines are deleted without touching the ledger.
func (s *Orders) CheckoutCart(ctx context.Context, userID, cartID string, opts CheckoutOptions) ([]*domain.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	lines, err := s.lines.ListByCart(ctx, tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(lines) == 0 {
		tx.Rollback()
		return nil, domain.ErrCartEmpty
	}

	orders, err := s.createOrders(ctx, tx, userID, lines, opts)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.Info("checkout created orders",
		zap.String("cart_id", cartID),
		zap.Int("order_count", len(orders)),
		zap.String("payment_hash", orders[0].PaymentHash))
	return orders, nil
}

// CheckoutLine converts a single cart line into one order, leaving the
// rest of the cart untouched.
func (s *Orders) CheckoutLine(ctx context.Context, userID, lineID string, opts CheckoutOptions) (*domain.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	line, err := s.lines.Get(ctx, tx, lineID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	orders, err := s.createOrders(ctx, tx, userID, []*domain.CartLine{line}, opts)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return orders[0], nil
}

func (s *Orders) createOrders(ctx context.Context, tx domain.Tx, userID string, lines []*domain.CartLine, opts CheckoutOptions) ([]*domain.Order, error) {
	hash, key := domain.NewPaymentRef()
	now := s.now()
	expires := now.Add(s.paymentTimeout)

	orders := make([]*domain.Order, 0, len(lines))
	for _, line := range lines {
		info, err := s.catalog.Product(ctx, line.Unit.ProductID)
		if err != nil {
			return nil, fmt.Errorf("checkout of %s: %w", line.Unit, err)
		}

		// Price is frozen here; later catalog changes never alter it.
		unitPrice := info.Price
		totalPrice := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

		deadline := expires
		order := &domain.Order{
			ID:               domain.NewOrderID(),
			UserID:           userID,
			Unit:             line.Unit,
			ProductName:      info.Name,
			Quantity:         line.Quantity,
			UnitPrice:        unitPrice,
			TotalPrice:       totalPrice,
			Status:           domain.OrderUnderPaying,
			PaymentStatus:    domain.PaymentPending,
			PaymentHash:      hash,
			PaymentKey:       key,
			PaymentMethod:    opts.PaymentMethod,
			ShippingAddress:  opts.ShippingAddress,
			CustomerNotes:    opts.CustomerNotes,
			PaymentExpiresAt: &deadline,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return nil, err
		}
		if err := s.lines.Delete(ctx, tx, line.ID); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ConfirmPayment converts the reservations of every under_paying order
// sharing the hash/key pair into confirmed sales, all or nothing, and
// advances them to pending/completed.
func (s *Orders) ConfirmPayment(ctx context.Context, hash, key string) ([]*domain.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.ConfirmPaymentTx(ctx, tx, hash, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.notifyOrdersConfirmed(ctx, orders)
	return orders, nil
}

// ConfirmPaymentTx is ConfirmPayment inside a caller-owned transaction,
// so payment completion and order confirmation commit together. The
// caller is responsible for post-commit notifications.
func (s *Orders) ConfirmPaymentTx(ctx context.Context, tx domain.Tx, hash, key string) ([]*domain.Order, error) {
	orders, err := s.orders.LockBatch(ctx, tx, hash, key)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrPaymentBatchNotFound
	}

	now := s.now()
	for _, order := range orders {
		if err := s.ledger.ConfirmSaleTx(ctx, tx, order.Unit, order.Quantity); err != nil {
			return nil, fmt.Errorf("confirm sale for order %s: %w", order.ID, err)
		}
		if err := order.TransitionTo(domain.OrderPending); err != nil {
			return nil, err
		}
		order.PaymentStatus = domain.PaymentCompleted
		paidAt := now
		order.PaidAt = &paidAt
		if err := s.orders.Update(ctx, tx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Orders) notifyOrdersConfirmed(ctx context.Context, orders []*domain.Order) {
	for _, order := range orders {
		s.notify(ctx, EventOrderConfirmed, map[string]any{
			"order_id":     order.ID,
			"user_id":      order.UserID,
			"product_id":   order.Unit.ProductID,
			"quantity":     order.Quantity,
			"total_price":  order.TotalPrice.String(),
			"payment_hash": order.PaymentHash,
		})
	}
}

// CancelDueToExpiry releases the order's reservation and cancels it,
// valid only for an under_paying order whose window lapsed. Status is
// re-verified under the row lock so the sweep can race checkout and
// payment confirmation safely. Already-cancelled orders are a no-op;
// the returned flag reports whether this call did the cancelling.
func (s *Orders) CancelDueToExpiry(ctx context.Context, orderID string) (bool, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return false, err
	}

	order, err := s.orders.Lock(ctx, tx, orderID)
	if err != nil {
		tx.Rollback()
		return false, err
	}

	if order.Status != domain.OrderUnderPaying {
		// Paid or already cancelled since the caller looked; nothing to do.
		tx.Rollback()
		return false, nil
	}
	if !order.PaymentExpired(s.now()) {
		tx.Rollback()
		return false, domain.ErrPaymentWindowActive
	}

	if err := s.ledger.UnreserveTx(ctx, tx, order.Unit, order.Quantity); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := order.TransitionTo(domain.OrderCancelled); err != nil {
		tx.Rollback()
		return false, err
	}
	order.PaymentStatus = domain.PaymentExpired
	order.AdminNotes = appendNote(order.AdminNotes,
		fmt.Sprintf("cancelled: payment window expired at %s", order.PaymentExpiresAt.Format(time.RFC3339)))
	if err := s.orders.Update(ctx, tx, order); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	s.notify(ctx, EventReservationExpired, map[string]any{
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"product_id": order.Unit.ProductID,
		"quantity":   order.Quantity,
	})
	return true, nil
}

// UpdateStatus progresses fulfillment on behalf of the store owner.
// Money-driven transitions (under_paying in or out) are reserved for
// ConfirmPayment and CancelDueToExpiry.
func (s *Orders) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, adminNotes string) (*domain.Order, error) {
	switch next {
	case domain.OrderOnProcess, domain.OrderOnShipping, domain.OrderArrived, domain.OrderCancelled:
	default:
		return nil, fmt.Errorf("%w: %s is not a fulfillment status", domain.ErrInvalidStatusTransition, next)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Lock(ctx, tx, orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.Status == domain.OrderUnderPaying {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %s orders change only through payment or expiry",
			domain.ErrInvalidStatusTransition, order.Status)
	}
	if err := order.TransitionTo(next); err != nil {
		tx.Rollback()
		return nil, err
	}
	if adminNotes != "" {
		order.AdminNotes = appendNote(order.AdminNotes, adminNotes)
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// Get returns an order by id.
func (s *Orders) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ValidateProductConsistency compares the order's frozen name and price
// against the live product, falling back to the latest catalog snapshot
// when the product is gone. Advisory only: the storefront may warn the
// buyer, but payment processing never consults this.
func (s *Orders) ValidateProductConsistency(ctx context.Context, orderID string) (domain.DriftReport, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.DriftReport{}, err
	}

	report := domain.DriftReport{OrderID: order.ID, ProductID: order.Unit.ProductID}

	name, price := "", decimal.Zero
	info, err := s.catalog.Product(ctx, order.Unit.ProductID)
	switch {
	case err == nil:
		name, price = info.Name, info.Price
	case errors.Is(err, domain.ErrProductNotFound) && s.snapshots != nil:
		snap, snapErr := s.snapshots.LatestSnapshot(ctx, order.Unit.ProductID)
		if snapErr != nil {
			return report, snapErr
		}
		if snap == nil {
			return report, err
		}
		report.FromSnapshot = true
		name, price = snap.Name, snap.Price
	default:
		return report, err
	}

	if order.ProductName != name {
		report.Drift = append(report.Drift, domain.FieldDrift{
			Field: "product_name", Ordered: order.ProductName, Current: name,
		})
	}
	if !order.UnitPrice.Equal(price) {
		report.Drift = append(report.Drift, domain.FieldDrift{
			Field: "unit_price", Ordered: order.UnitPrice.String(), Current: price.String(),
		})
	}
	return report, nil
}

func (s *Orders) notify(ctx context.Context, event string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, payload); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("event", event), zap.Error(err))
	}
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
