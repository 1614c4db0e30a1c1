package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderflow/orderflow/internal/order/domain"
)

type OrderRepository interface {
	// Save persists the order and its items.
	Save(ctx context.Context, o domain.Order) error
	// SaveWithOutbox persists the order and the event in one transaction,
	// so the broker sees the event only if the state change is durable.
	SaveWithOutbox(ctx context.Context, o domain.Order, eventID, eventType string, payload []byte, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, bool, error)
}

// ErrReservationUnavailable: the reservation service could not be reached
// within the retry budget. The outcome of any in-flight attempt is unknown;
// the order id makes a later retry safe.
var ErrReservationUnavailable = errors.New("reservation service unavailable")

type ReservationRequest struct {
	OrderID       string
	CorrelationID string
	Items         []ReservationItem
}

type ReservationItem struct {
	ProductID string
	Quantity  int
}

type ReservationItemResult struct {
	ProductID         string
	RequestedQuantity int
	AvailableStock    int
	Success           bool
	ErrorMessage      string
}

// ReservationOutcome is the decoded reply of the reservation protocol.
// AlreadyReserved marks the idempotency-conflict reply, which a retrying
// caller treats as success.
type ReservationOutcome struct {
	Success         bool
	AlreadyReserved bool
	Results         []ReservationItemResult
}

type ReservationClient interface {
	CreateReservation(ctx context.Context, req ReservationRequest) (ReservationOutcome, error)
}

// ReservationRejectedError carries the per-item verdicts of a business
// rejection. No reservation was persisted.
type ReservationRejectedError struct {
	OrderID string
	Results []ReservationItemResult
}

func (e *ReservationRejectedError) Error() string {
	return fmt.Sprintf("reservation rejected for order %s", e.OrderID)
}

type CatalogProduct struct {
	ID             string
	Name           string
	UnitPriceCents int64
}

// ProductCatalog supplies authoritative name and price snapshots for items
// the caller did not fully specify.
type ProductCatalog interface {
	Product(ctx context.Context, id string) (CatalogProduct, bool, error)
}
