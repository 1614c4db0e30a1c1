package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/inventory/domain"
	"github.com/orderflow/orderflow/pkg/metrics"
)

var (
	ErrNoItems          = errors.New("reservation requires at least one item")
	ErrDuplicateProduct = errors.New("duplicate product in reservation request")
)

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type ItemResult struct {
	ProductID         string
	RequestedQuantity int
	AvailableStock    int
	Success           bool
	ReservationID     string
	ErrorMessage      string
}

type CreateResult struct {
	Success        bool
	Results        []ItemResult
	ReservationIDs []string
}

type Service struct {
	log   *slog.Logger
	store ReservationStore
	now   func() time.Time
}

func NewService(log *slog.Logger, store ReservationStore) *Service {
	return &Service{log: log, store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CreateReservation atomically checks and holds stock for every item of the
// order. The order id is the idempotency key: a batch that already exists
// yields domain.ErrReservationConflict without touching the store.
func (s *Service) CreateReservation(ctx context.Context, orderID, correlationID string, items []ItemRequest) (CreateResult, error) {
	if err := validateItems(items); err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	reservations := make([]domain.StockReservation, 0, len(items))
	for _, it := range items {
		reservations = append(reservations, domain.StockReservation{
			ID:            uuid.NewString(),
			OrderID:       orderID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			Status:        domain.StatusReserved,
			ReservedAt:    now,
			CorrelationID: correlationID,
		})
	}

	outcomes, err := s.store.ReserveBatch(ctx, reservations)
	if err != nil {
		if errors.Is(err, domain.ErrReservationConflict) {
			metrics.ReservationsRejected.WithLabelValues("conflict").Inc()
			s.log.Info("reservation conflict", "order_id", orderID, "correlation_id", correlationID)
		}
		return CreateResult{}, err
	}

	result := CreateResult{Success: true}
	for _, o := range outcomes {
		r := ItemResult{
			ProductID:         o.ProductID,
			RequestedQuantity: o.Requested,
			AvailableStock:    o.AvailableStock,
			Success:           o.OK,
			ReservationID:     o.ReservationID,
		}
		if !o.OK {
			result.Success = false
			if o.Reason != nil {
				r.ErrorMessage = o.Reason.Error()
			}
		} else {
			result.ReservationIDs = append(result.ReservationIDs, o.ReservationID)
		}
		result.Results = append(result.Results, r)
	}

	if result.Success {
		metrics.ReservationsAdmitted.Inc()
		s.log.Info("reservation created", "order_id", orderID, "items", len(items), "correlation_id", correlationID)
	} else {
		// All-or-nothing: the store persisted no rows for this batch.
		result.ReservationIDs = nil
		metrics.ReservationsRejected.WithLabelValues("unavailable").Inc()
		s.log.Info("reservation rejected", "order_id", orderID, "correlation_id", correlationID)
	}
	return result, nil
}

func (s *Service) GetReservationsByOrder(ctx context.Context, orderID string) ([]domain.StockReservation, error) {
	return s.store.GetByOrder(ctx, orderID)
}

func (s *Service) GetReservation(ctx context.Context, id string) (domain.StockReservation, bool, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	return s.store.GetProduct(ctx, id)
}

// ApplyConfirmation debits every Reserved reservation of the order. Duplicate
// confirmations find nothing Reserved and no-op; delivery is at-least-once so
// that is a success, not an error.
func (s *Service) ApplyConfirmation(ctx context.Context, orderID, correlationID string) error {
	n, err := s.store.MarkDebited(ctx, orderID, s.now())
	if err != nil {
		return fmt.Errorf("debit reservations for order %s: %w", orderID, err)
	}
	if n == 0 {
		s.log.Info("no reserved reservations to debit", "order_id", orderID, "correlation_id", correlationID)
		return nil
	}
	metrics.ReservationsDebited.Add(float64(n))
	s.log.Info("reservations debited", "order_id", orderID, "count", n, "correlation_id", correlationID)
	return nil
}

// ApplyRelease is the compensation path, symmetric to ApplyConfirmation.
func (s *Service) ApplyRelease(ctx context.Context, orderID, correlationID, reason string) error {
	n, err := s.store.MarkReleased(ctx, orderID, s.now())
	if err != nil {
		return fmt.Errorf("release reservations for order %s: %w", orderID, err)
	}
	if n == 0 {
		s.log.Info("no reserved reservations to release", "order_id", orderID, "correlation_id", correlationID)
		return nil
	}
	metrics.ReservationsReleased.Add(float64(n))
	s.log.Info("reservations released", "order_id", orderID, "count", n, "reason", reason, "correlation_id", correlationID)
	return nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("product %s: %w", it.ProductID, domain.ErrInvalidQuantity)
		}
		if seen[it.ProductID] {
			return fmt.Errorf("%w: %s", ErrDuplicateProduct, it.ProductID)
		}
		seen[it.ProductID] = true
	}
	return nil
}
