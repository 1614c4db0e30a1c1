package application

import (
	"context"
	"time"

	"github.com/orderflow/orderflow/internal/inventory/domain"
)

// ReservationStore is the durable reservation record. Implementations must
// make ReserveBatch a single atomic unit: the availability check and the
// insert of every row commit together or not at all, serialized per product
// against concurrent requests.
type ReservationStore interface {
	// ReserveBatch admits or rejects the whole batch. On admission every
	// row is persisted with status Reserved; on rejection nothing is, and
	// the outcomes carry the per-item verdicts. A Reserved batch already
	// existing for the order yields domain.ErrReservationConflict with no
	// mutation.
	ReserveBatch(ctx context.Context, reservations []domain.StockReservation) ([]domain.ItemOutcome, error)

	GetByOrder(ctx context.Context, orderID string) ([]domain.StockReservation, error)
	Get(ctx context.Context, id string) (domain.StockReservation, bool, error)

	// MarkDebited and MarkReleased transition every Reserved reservation of
	// the order to the terminal status and report how many moved. Zero is a
	// normal outcome under at-least-once delivery.
	MarkDebited(ctx context.Context, orderID string, now time.Time) (int, error)
	MarkReleased(ctx context.Context, orderID string, now time.Time) (int, error)

	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
}
