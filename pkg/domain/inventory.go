package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnitRef identifies one inventory unit: a product, or one size of a
// sized product. Size is empty for simple products.
type UnitRef struct {
	ProductID string
	Size      string
}

func (r UnitRef) String() string {
	if r.Size == "" {
		return r.ProductID
	}
	return fmt.Sprintf("%s/%s", r.ProductID, r.Size)
}

// StockLevel is the available/reserved counter pair for one inventory
// unit. Available + Reserved is the total non-sold stock; only a
// confirmed sale shrinks that total.
type StockLevel struct {
	Ref       UnitRef
	Available int
	Reserved  int
	Retired   bool
	UpdatedAt time.Time
}

// Reserve moves quantity from available to reserved.
func (l *StockLevel) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if l.Retired {
		return ErrUnitRetired
	}
	if l.Available < quantity {
		return ErrInsufficientStock
	}
	l.Available -= quantity
	l.Reserved += quantity
	l.UpdatedAt = time.Now()
	return nil
}

// Unreserve moves quantity back from reserved to available. Reserved is
// floored at zero: unreserving more than is currently reserved still
// returns the full quantity to available, so stock is never stranded.
// The returned flag reports that the floor was hit.
func (l *StockLevel) Unreserve(quantity int) (clamped bool, err error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	l.Available += quantity
	l.Reserved -= quantity
	if l.Reserved < 0 {
		l.Reserved = 0
		clamped = true
	}
	l.UpdatedAt = time.Now()
	return clamped, nil
}

// ConfirmSale permanently removes reserved stock; available is
// untouched because the stock already left it at reservation time.
func (l *StockLevel) ConfirmSale(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if l.Reserved < quantity {
		return ErrInsufficientReservedStock
	}
	l.Reserved -= quantity
	l.UpdatedAt = time.Now()
	return nil
}

// Total is the non-sold stock still in the system.
func (l StockLevel) Total() int {
	return l.Available + l.Reserved
}

// ProductInfo is the read-only view of a product served by the catalog
// capability. Price and name are what checkout freezes onto an order.
type ProductInfo struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	HasSizes    bool            `json:"has_sizes"`
	Sizes       []string        `json:"sizes,omitempty"`
	Retired     bool            `json:"retired,omitempty"`
}

// ProductSnapshot is a point-in-time copy of the catalog fields an
// order freezes. Snapshots are recorded explicitly by the catalog write
// path and consulted when the live product is gone.
type ProductSnapshot struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	TakenAt   time.Time
}

// Changed reports whether the live product differs from the snapshot in
// any frozen field.
func (s ProductSnapshot) Changed(info ProductInfo) bool {
	return s.Name != info.Name || !s.Price.Equal(info.Price)
}
