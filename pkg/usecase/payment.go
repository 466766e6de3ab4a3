package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// GatewayEntry pairs a gateway strategy with its fee schedule.
type GatewayEntry struct {
	Gateway domain.Gateway
	Fees    domain.FeeSchedule
}

// GatewayRegistry selects gateway strategies by name. Population
// happens at wiring time; the core never branches on gateway type.
type GatewayRegistry struct {
	entries map[string]GatewayEntry
}

// NewGatewayRegistry creates an empty registry.
func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{entries: make(map[string]GatewayEntry)}
}

// Register adds a gateway under its own name.
func (r *GatewayRegistry) Register(gw domain.Gateway, fees domain.FeeSchedule) {
	r.entries[gw.Name()] = GatewayEntry{Gateway: gw, Fees: fees}
}

// Resolve returns the entry for a gateway name.
func (r *GatewayRegistry) Resolve(name string) (GatewayEntry, error) {
	entry, ok := r.entries[name]
	if !ok {
		return GatewayEntry{}, fmt.Errorf("%w: %s", domain.ErrGatewayNotFound, name)
	}
	return entry, nil
}

// ProcessRequest carries the instrument details for one processing try.
type ProcessRequest struct {
	CardNumber string
	Metadata   map[string]string
}

// Payments creates and processes payments against order batches.
type Payments struct {
	store    domain.Transactor
	payments domain.PaymentRepository
	orders   *Orders
	registry *GatewayRegistry
	notifier domain.Notifier
	log      *zap.Logger

	now func() time.Time
}

// NewPayments creates a new payment service.
func NewPayments(store domain.Transactor, payments domain.PaymentRepository, orders *Orders, registry *GatewayRegistry, notifier domain.Notifier, log *zap.Logger) *Payments {
	return &Payments{
		store:    store,
		payments: payments,
		orders:   orders,
		registry: registry,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// CreateForOrders creates one payment covering 1..N orders of a single
// checkout batch. The gateway fee is computed here, once, and never
// recomputed even if the fee schedule changes later.
func (p *Payments) CreateForOrders(ctx context.Context, orders []*domain.Order, method, gatewayName string) (*domain.Payment, error) {
	if len(orders) == 0 {
		return nil, domain.ErrOrderNotFound
	}

	hash, key := orders[0].PaymentHash, orders[0].PaymentKey
	amount := decimal.Zero
	orderIDs := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.PaymentHash != hash || o.PaymentKey != key {
			return nil, fmt.Errorf("order %s does not belong to payment batch %s", o.ID, hash)
		}
		amount = amount.Add(o.TotalPrice)
		orderIDs = append(orderIDs, o.ID)
	}

	entry, err := p.registry.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}
	fee := entry.Fees.Fee(amount)

	now := p.now()
	payment := &domain.Payment{
		ID:             uuid.New().String(),
		OrderReference: hash,
		PaymentKey:     key,
		OrderIDs:       orderIDs,
		UserID:         orders[0].UserID,
		GatewayName:    gatewayName,
		Method:         method,
		Amount:         amount,
		FeeAmount:      fee,
		NetAmount:      amount.Sub(fee),
		Currency:       "USD",
		Status:         domain.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.payments.Create(ctx, tx, payment); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.log.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("payment_hash", hash),
		zap.Int("order_count", len(orders)),
		zap.String("amount", amount.String()))
	return payment, nil
}

// Process runs one attempt against the gateway. Success completes the
// payment and confirms the covered orders in the same transaction;
// failure records the reason and leaves the orders under_paying,
// retryable until their window expires. Once the gateway call is
// dispatched it runs to completion; expiry only touches orders before
// dispatch or after.
func (p *Payments) Process(ctx context.Context, paymentID string, req ProcessRequest) (*domain.Payment, error) {
	payment, entry, attemptNo, err := p.beginAttempt(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result, chargeErr := entry.Gateway.Charge(ctx, domain.ChargeRequest{
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Method:     payment.Method,
		CardNumber: req.CardNumber,
		Metadata:   req.Metadata,
	})
	if chargeErr != nil {
		// Transport-level failure: same outcome as a declined charge,
		// with the transport error as the reason.
		result = domain.ChargeResult{Success: false, FailureReason: chargeErr.Error()}
	}

	if result.Success {
		return p.completeAttempt(ctx, payment, attemptNo, result)
	}
	return p.failAttempt(ctx, payment, attemptNo, result)
}

// beginAttempt transitions the payment to processing and allocates the
// next attempt number before the gateway is contacted. The gateway is
// resolved before any state changes: a miswired registry must not
// strand the payment in processing, which beginAttempt would refuse to
// pick up again.
func (p *Payments) beginAttempt(ctx context.Context, paymentID string) (*domain.Payment, GatewayEntry, int, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, GatewayEntry{}, 0, err
	}
	payment, err := p.payments.Lock(ctx, tx, paymentID)
	if err != nil {
		tx.Rollback()
		return nil, GatewayEntry{}, 0, err
	}
	if payment.Status != domain.PaymentPending && payment.Status != domain.PaymentFailed {
		tx.Rollback()
		return nil, GatewayEntry{}, 0, fmt.Errorf("payment %s is %s, not processable", payment.ID, payment.Status)
	}

	entry, err := p.registry.Resolve(payment.GatewayName)
	if err != nil {
		tx.Rollback()
		return nil, GatewayEntry{}, 0, err
	}

	count, err := p.payments.AttemptCount(ctx, tx, payment.ID)
	if err != nil {
		tx.Rollback()
		return nil, GatewayEntry{}, 0, err
	}

	payment.Status = domain.PaymentProcessing
	payment.UpdatedAt = p.now()
	if err := p.payments.Update(ctx, tx, payment); err != nil {
		tx.Rollback()
		return nil, GatewayEntry{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, GatewayEntry{}, 0, err
	}
	return payment, entry, count + 1, nil
}

func (p *Payments) completeAttempt(ctx context.Context, payment *domain.Payment, attemptNo int, result domain.ChargeResult) (*domain.Payment, error) {
	now := p.now()

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentCompleted
	payment.TransactionID = result.TransactionID
	payment.GatewayRef = result.Reference
	payment.ProcessedAt = &now
	payment.UpdatedAt = now
	if err := p.payments.Update(ctx, tx, payment); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := p.payments.CreateAttempt(ctx, tx, &domain.PaymentAttempt{
		PaymentID:   payment.ID,
		Number:      attemptNo,
		Status:      domain.PaymentCompleted,
		Response:    result.Response,
		AttemptedAt: now,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}

	// Order confirmation rides the same transaction: the payment is
	// completed if and only if the whole batch converts its
	// reservations.
	orders, err := p.orders.ConfirmPaymentTx(ctx, tx, payment.OrderReference, payment.PaymentKey)
	if err != nil {
		tx.Rollback()
		p.log.Error("stock conversion failed after successful charge",
			zap.String("payment_id", payment.ID),
			zap.String("payment_hash", payment.OrderReference),
			zap.Error(err))
		return p.recordConversionFailure(ctx, payment, attemptNo, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.orders.notifyOrdersConfirmed(ctx, orders)
	p.log.Info("payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
		zap.Int("attempt", attemptNo))
	return payment, nil
}

func (p *Payments) failAttempt(ctx context.Context, payment *domain.Payment, attemptNo int, result domain.ChargeResult) (*domain.Payment, error) {
	now := p.now()

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentFailed
	payment.FailureReason = result.FailureReason
	payment.UpdatedAt = now
	if err := p.payments.Update(ctx, tx, payment); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := p.payments.CreateAttempt(ctx, tx, &domain.PaymentAttempt{
		PaymentID:    payment.ID,
		Number:       attemptNo,
		Status:       domain.PaymentFailed,
		ErrorMessage: result.FailureReason,
		Response:     result.Response,
		AttemptedAt:  now,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.notify(ctx, EventPaymentFailed, map[string]any{
		"payment_id":   payment.ID,
		"payment_hash": payment.OrderReference,
		"reason":       payment.FailureReason,
		"attempt":      attemptNo,
	})
	p.log.Warn("payment attempt failed",
		zap.String("payment_id", payment.ID),
		zap.Int("attempt", attemptNo),
		zap.String("reason", payment.FailureReason))
	return payment, nil
}

// recordConversionFailure marks a charged-but-unconvertible payment
// failed. The money side succeeded, so the reason is preserved for
// manual reconciliation.
func (p *Payments) recordConversionFailure(ctx context.Context, payment *domain.Payment, attemptNo int, cause error) (*domain.Payment, error) {
	result := domain.ChargeResult{
		FailureReason: fmt.Sprintf("charge succeeded but stock conversion failed: %v", cause),
	}
	return p.failAttempt(ctx, payment, attemptNo, result)
}

// Refund returns part or all of a completed payment through its
// gateway. Cash-on-delivery payments are not refundable.
func (p *Payments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*domain.Refund, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := p.payments.Lock(ctx, tx, paymentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !payment.Refundable() {
		tx.Rollback()
		return nil, domain.ErrNotRefundable
	}
	entry, err := p.registry.Resolve(payment.GatewayName)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// RefundedTotal counts in-flight refunds too, so a concurrent
	// caller that already holds its slice of the payment blocks this
	// one here, under the payment row lock, before any money moves.
	refunded, err := p.payments.RefundedTotal(ctx, tx, payment.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if refunded.Add(amount).GreaterThan(payment.Amount) {
		tx.Rollback()
		return nil, domain.ErrRefundExceedsPayment
	}

	now := p.now()
	refund := &domain.Refund{
		ID:        uuid.New().String(),
		PaymentID: payment.ID,
		Amount:    amount,
		Reason:    reason,
		Status:    domain.RefundProcessing,
		CreatedAt: now,
	}
	if err := p.payments.CreateRefund(ctx, tx, refund); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result, gwErr := entry.Gateway.Refund(ctx, payment.ID, amount)

	tx, err = p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	payment, err = p.payments.Lock(ctx, tx, paymentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if gwErr != nil || !result.Success {
		refund.Status = domain.RefundFailed
	} else {
		refund.Status = domain.RefundCompleted
		refund.GatewayRef = result.RefundID
		processedAt := p.now()
		refund.ProcessedAt = &processedAt

		if refunded.Add(amount).Equal(payment.Amount) {
			payment.Status = domain.PaymentRefunded
		} else {
			payment.Status = domain.PaymentPartRefund
		}
		payment.UpdatedAt = p.now()
		if err := p.payments.Update(ctx, tx, payment); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := p.payments.UpdateRefund(ctx, tx, refund); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if refund.Status == domain.RefundCompleted {
		p.notify(ctx, EventPaymentRefunded, map[string]any{
			"payment_id": payment.ID,
			"refund_id":  refund.ID,
			"amount":     amount.String(),
		})
	}
	return refund, nil
}

// Status returns the latest payment and its attempt history for an
// order reference (payment hash).
func (p *Payments) Status(ctx context.Context, orderRef string) (*domain.Payment, []*domain.PaymentAttempt, error) {
	payment, err := p.payments.LatestByReference(ctx, orderRef)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := p.payments.ListAttempts(ctx, payment.ID)
	if err != nil {
		return nil, nil, err
	}
	return payment, attempts, nil
}

func (p *Payments) notify(ctx context.Context, event string, payload map[string]any) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event, payload); err != nil {
		p.log.Warn("notification dispatch failed",
			zap.String("event", event), zap.Error(err))
	}
}
