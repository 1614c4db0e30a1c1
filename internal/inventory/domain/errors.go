package domain

import "errors"

var (
	// ErrReservationConflict: a Reserved batch already exists for the order.
	// To a retrying caller this means "already done", not a failure.
	ErrReservationConflict = errors.New("reservation already exists for order")

	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// ItemOutcome is the per-item admission verdict for a reservation request.
// AvailableStock reports what the store observed under the product lock.
type ItemOutcome struct {
	ProductID      string
	Requested      int
	AvailableStock int
	OK             bool
	Reason         error
	ReservationID  string
}
