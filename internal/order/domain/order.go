package domain

import (
	"errors"
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusCancelled OrderStatus = "cancelled"
	StatusFulfilled OrderStatus = "fulfilled"
	StatusFailed    OrderStatus = "failed"
)

var (
	ErrNoItems          = errors.New("order requires at least one item")
	ErrInvalidQuantity  = errors.New("item quantity must be positive")
	ErrDuplicateProduct = errors.New("duplicate product in order")
)

// ErrInvalidTransition is a business-rule rejection of a status change, never
// a crash: cancelling a fulfilled order is the canonical case.
type ErrInvalidTransition struct {
	From   OrderStatus
	Action string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s order in status %q", e.Action, e.From)
}

type Order struct {
	ID            string
	CustomerID    string
	Status        OrderStatus
	Items         []OrderItem
	TotalCents    int64
	CorrelationID string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem snapshots name and price at order time; later catalog changes do
// not touch a confirmed order.
type OrderItem struct {
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

func NewOrder(id, customerID, correlationID, createdBy string, items []OrderItem) Order {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	now := time.Now().UTC()
	return Order{
		ID:            id,
		CustomerID:    customerID,
		Status:        StatusPending,
		Items:         items,
		TotalCents:    total,
		CorrelationID: correlationID,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ValidateItems checks command shape before anything touches the reservation
// protocol.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("product %s: %w", item.ProductID, ErrInvalidQuantity)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: %s", ErrDuplicateProduct, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return &ErrInvalidTransition{From: o.Status, Action: "confirm"}
	}
	o.transition(StatusConfirmed)
	return nil
}

func (o *Order) Cancel() error {
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return &ErrInvalidTransition{From: o.Status, Action: "cancel"}
	}
	o.transition(StatusCancelled)
	return nil
}

func (o *Order) Fulfill() error {
	if o.Status != StatusConfirmed {
		return &ErrInvalidTransition{From: o.Status, Action: "fulfill"}
	}
	o.transition(StatusFulfilled)
	return nil
}

// Fail marks an order whose reservation was rejected or unreachable. A failed
// order never holds a reservation.
func (o *Order) Fail() error {
	if o.Status != StatusPending {
		return &ErrInvalidTransition{From: o.Status, Action: "fail"}
	}
	o.transition(StatusFailed)
	return nil
}

func (o *Order) transition(to OrderStatus) {
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
}
