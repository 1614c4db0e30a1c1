package domain

import "time"

type ReservationStatus string

const (
	// StatusReserved is the only non-terminal status.
	StatusReserved ReservationStatus = "reserved"
	StatusDebited  ReservationStatus = "debited"
	StatusReleased ReservationStatus = "released"
)

// StockReservation is a temporary hold of stock against a pending order.
// Exactly one row exists per (order, product) pair.
type StockReservation struct {
	ID            string
	OrderID       string
	ProductID     string
	ProductName   string
	Quantity      int
	Status        ReservationStatus
	ReservedAt    time.Time
	ProcessedAt   *time.Time
	CorrelationID string
}

// Debit converts the hold into a permanent deduction. Terminal statuses
// absorb: debiting an already-debited or released reservation reports false
// and changes nothing.
func (r *StockReservation) Debit(now time.Time) bool {
	if r.Status != StatusReserved {
		return false
	}
	r.Status = StatusDebited
	r.ProcessedAt = &now
	return true
}

// Release returns the held quantity to available stock. Same absorbing
// contract as Debit.
func (r *StockReservation) Release(now time.Time) bool {
	if r.Status != StatusReserved {
		return false
	}
	r.Status = StatusReleased
	r.ProcessedAt = &now
	return true
}

// Product is a catalog row. Stock is the nominal quantity remaining after
// debits; holds are tracked separately as Reserved reservations.
type Product struct {
	ID             string
	Name           string
	UnitPriceCents int64
	Stock          int
}

// Available is the quantity new reservations may still claim, given the sum
// of currently Reserved quantities for the product.
func (p Product) Available(reservedSum int) int {
	return p.Stock - reservedSum
}
