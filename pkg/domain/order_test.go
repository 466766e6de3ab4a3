package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderUnderPaying, OrderPending, true},
		{OrderUnderPaying, OrderCancelled, true},
		{OrderPending, OrderOnProcess, true},
		{OrderPending, OrderCancelled, true},
		{OrderOnProcess, OrderOnShipping, true},
		{OrderOnProcess, OrderCancelled, true},
		{OrderOnShipping, OrderArrived, true},
		{OrderOnCart, OrderUnderPaying, true},
		{OrderUnderPaying, OrderOnShipping, false},
		{OrderPending, OrderArrived, false},
		{OrderOnShipping, OrderCancelled, false},
		{OrderArrived, OrderCancelled, false},
		{OrderCancelled, OrderPending, false},
	}

	for _, c := range cases {
		o := &Order{Status: c.from}
		err := o.TransitionTo(c.to)
		if c.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.ok {
			if !errors.Is(err, ErrInvalidStatusTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidStatusTransition, got %v", c.from, c.to, err)
			}
			if o.Status != c.from {
				t.Errorf("%s -> %s: status changed on rejected transition", c.from, c.to)
			}
		}
	}
}

func TestOrderPaymentExpired(t *testing.T) {
	now := time.Now()
	deadline := now.Add(15 * time.Minute)
	o := &Order{Status: OrderUnderPaying, PaymentExpiresAt: &deadline}

	if o.PaymentExpired(now) {
		t.Error("order expired before its deadline")
	}
	if !o.PaymentExpired(now.Add(16 * time.Minute)) {
		t.Error("order not expired after its deadline")
	}

	// Orders outside under_paying never report expiry.
	o.Status = OrderPending
	if o.PaymentExpired(now.Add(16 * time.Minute)) {
		t.Error("pending order reported expiry")
	}
}

func TestOrderPaymentTimeRemaining(t *testing.T) {
	now := time.Now()
	deadline := now.Add(90 * time.Second)
	o := &Order{Status: OrderUnderPaying, PaymentExpiresAt: &deadline}

	if got := o.PaymentTimeRemaining(now); got != 90 {
		t.Errorf("expected 90s remaining, got %d", got)
	}
	if got := o.PaymentTimeRemaining(now.Add(2 * time.Minute)); got != 0 {
		t.Errorf("expected 0 after deadline, got %d", got)
	}
}

func TestIdentifierFormats(t *testing.T) {
	id := NewOrderID()
	if !strings.HasPrefix(id, "ORD-") || len(id) != 12 {
		t.Errorf("bad order id %q", id)
	}

	hash, key := NewPaymentRef()
	if !strings.HasPrefix(hash, "PAY-") || len(hash) != 12 {
		t.Errorf("bad payment hash %q", hash)
	}
	if !strings.HasPrefix(key, "KEY-") || len(key) != 16 {
		t.Errorf("bad payment key %q", key)
	}
	if hash != strings.ToUpper(hash) || key != strings.ToUpper(key) {
		t.Error("payment refs must be upper case")
	}
}
