package domain

import "errors"

var (
	// Validation errors. Rejected before any state is touched.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrVariantRequired = errors.New("size must be specified for products with sizes")
	ErrVariantMismatch = errors.New("product does not track stock per size")
	ErrVariantNotFound = errors.New("size not found for product")

	// Conflict errors. Checked against freshly locked rows.
	ErrInsufficientStock         = errors.New("not enough stock available")
	ErrInsufficientReservedStock = errors.New("not enough reserved stock")
	ErrInvalidStatusTransition   = errors.New("invalid order status transition")
	ErrUnitRetired               = errors.New("inventory unit is retired")
	ErrPaymentWindowActive       = errors.New("payment window has not expired")
	ErrDuplicateCartLine         = errors.New("cart line already exists for this unit")
	ErrRefundExceedsPayment      = errors.New("refund amount exceeds payment amount")
	ErrNotRefundable             = errors.New("payment cannot be refunded")

	// Lookup errors.
	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartLineNotFound     = errors.New("cart line not found")
	ErrCartEmpty            = errors.New("cart is empty")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentBatchNotFound = errors.New("no payable orders for payment reference")
	ErrGatewayNotFound      = errors.New("payment gateway not found")
)
