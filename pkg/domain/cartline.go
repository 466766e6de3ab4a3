package domain

import "time"

// CartLine is one reservation holder: a cart entry referencing an
// inventory unit and quantity. While ReservationHeld is true the line
// owns a ledger reservation for its full quantity. At most one line
// exists per (cart, product, size); callers merge before insert and the
// storage layer enforces uniqueness as a backstop.
type CartLine struct {
	ID              string
	CartID          string
	Unit            UnitRef
	Quantity        int
	ReservationHeld bool
	AddedAt         time.Time
	UpdatedAt       time.Time
}
