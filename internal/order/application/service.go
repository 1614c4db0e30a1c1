package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/correlation"
	"github.com/orderflow/orderflow/pkg/metrics"
	"github.com/orderflow/orderflow/pkg/tracing"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found in catalog")
)

type CreateOrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	// UnitPriceCents nil means "look it up"; zero is a valid price.
	UnitPriceCents *int64
}

type CreateOrderCommand struct {
	OrderID       string
	CustomerID    string
	CorrelationID string
	CreatedBy     string
	Items         []CreateOrderItem
}

// Coordinator orchestrates the order half of the saga: synchronous
// reservation on creation, compensating events on cancellation.
type Coordinator struct {
	log     *slog.Logger
	repo    OrderRepository
	client  ReservationClient
	catalog ProductCatalog
}

func NewCoordinator(log *slog.Logger, repo OrderRepository, client ReservationClient, catalog ProductCatalog) *Coordinator {
	return &Coordinator{log: log, repo: repo, client: client, catalog: catalog}
}

// CreateOrder validates, enriches and persists the order, then reserves stock
// synchronously. The order ends Confirmed with an OrderConfirmed event queued,
// or Failed with no reservation held; there is no state in between.
func (c *Coordinator) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	items, err := c.buildItems(ctx, cmd.Items)
	if err != nil {
		metrics.OrdersCreated.WithLabelValues("invalid").Inc()
		return domain.Order{}, err
	}

	orderID := cmd.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	corrID := correlation.Ensure(cmd.CorrelationID)
	ctx = correlation.WithID(ctx, corrID)

	o := domain.NewOrder(orderID, cmd.CustomerID, corrID, cmd.CreatedBy, items)
	if err := c.repo.Save(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("persist pending order: %w", err)
	}

	req := ReservationRequest{OrderID: o.ID, CorrelationID: corrID}
	for _, item := range items {
		req.Items = append(req.Items, ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	outcome, err := c.client.CreateReservation(ctx, req)
	if err != nil {
		// The retry budget is spent and the outcome of any in-flight
		// attempt is unknown: a timed-out call may have committed a hold
		// server-side. Queue a cancellation so the inventory side releases
		// it; the release no-ops when nothing was held.
		c.failOrderUnknownOutcome(ctx, &o)
		metrics.OrdersCreated.WithLabelValues("unavailable").Inc()
		c.log.Error("reservation transport failed", "order_id", o.ID, "correlation_id", corrID, "err", err)
		return domain.Order{}, err
	}
	if !outcome.Success && !outcome.AlreadyReserved {
		c.failOrder(ctx, &o)
		metrics.OrdersCreated.WithLabelValues("rejected").Inc()
		c.log.Info("reservation rejected", "order_id", o.ID, "correlation_id", corrID)
		return domain.Order{}, &ReservationRejectedError{OrderID: o.ID, Results: outcome.Results}
	}

	if err := o.Confirm(); err != nil {
		return domain.Order{}, err
	}
	if err := c.saveWithConfirmedEvent(ctx, o); err != nil {
		return domain.Order{}, err
	}
	metrics.OrdersCreated.WithLabelValues("confirmed").Inc()
	c.log.Info("order confirmed", "order_id", o.ID, "total_cents", o.TotalCents, "correlation_id", corrID)
	return o, nil
}

// ConfirmOrder is the explicit confirmation command for orders left Pending
// by flows that skipped reservation-at-creation.
func (c *Coordinator) ConfirmOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, found, err := c.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return domain.Order{}, ErrOrderNotFound
	}
	if err := o.Confirm(); err != nil {
		return domain.Order{}, err
	}
	if err := c.saveWithConfirmedEvent(ctx, o); err != nil {
		return domain.Order{}, err
	}
	c.log.Info("order confirmed", "order_id", o.ID, "correlation_id", o.CorrelationID)
	return o, nil
}

// CancelOrder publishes OrderCancelled with the correlation id the order was
// created under, so the inventory side ties the release to the original hold.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	o, found, err := c.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return domain.Order{}, ErrOrderNotFound
	}
	if err := o.Cancel(); err != nil {
		return domain.Order{}, err
	}

	ev := domain.OrderCancelledEvent{
		EventID:       uuid.NewString(),
		CorrelationID: o.CorrelationID,
		OrderID:       o.ID,
		Reason:        reason,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal cancel event: %w", err)
	}
	if err := c.repo.SaveWithOutbox(ctx, o, ev.EventID, domain.EventTypeOrderCancelled, payload, tracing.Traceparent(ctx)); err != nil {
		return domain.Order{}, err
	}
	c.log.Info("order cancelled", "order_id", o.ID, "reason", reason, "correlation_id", o.CorrelationID)
	return o, nil
}

func (c *Coordinator) MarkOrderAsFulfilled(ctx context.Context, orderID string) (domain.Order, error) {
	o, found, err := c.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return domain.Order{}, ErrOrderNotFound
	}
	if err := o.Fulfill(); err != nil {
		return domain.Order{}, err
	}
	if err := c.repo.Save(ctx, o); err != nil {
		return domain.Order{}, err
	}
	c.log.Info("order fulfilled", "order_id", o.ID, "correlation_id", o.CorrelationID)
	return o, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (domain.Order, bool, error) {
	return c.repo.Get(ctx, orderID)
}

// buildItems validates the command shape and snapshots name/price from the
// catalog for items the caller did not fully supply. Validation failures stay
// local; nothing here touches the reservation protocol.
func (c *Coordinator) buildItems(ctx context.Context, in []CreateOrderItem) ([]domain.OrderItem, error) {
	bare := make([]domain.OrderItem, 0, len(in))
	for _, it := range in {
		bare = append(bare, domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := domain.ValidateItems(bare); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(in))
	for _, it := range in {
		item := domain.OrderItem{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity}
		if it.UnitPriceCents != nil {
			item.UnitPriceCents = *it.UnitPriceCents
		}
		if it.ProductName == "" || it.UnitPriceCents == nil {
			p, found, err := c.catalog.Product(ctx, it.ProductID)
			if err != nil {
				return nil, fmt.Errorf("catalog lookup for %s: %w", it.ProductID, err)
			}
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
			}
			if item.ProductName == "" {
				item.ProductName = p.Name
			}
			if it.UnitPriceCents == nil {
				item.UnitPriceCents = p.UnitPriceCents
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Coordinator) saveWithConfirmedEvent(ctx context.Context, o domain.Order) error {
	ev := domain.OrderConfirmedEvent{
		EventID:       uuid.NewString(),
		CorrelationID: o.CorrelationID,
		OrderID:       o.ID,
	}
	for _, item := range o.Items {
		ev.Items = append(ev.Items, domain.EventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal confirm event: %w", err)
	}
	if err := c.repo.SaveWithOutbox(ctx, o, ev.EventID, domain.EventTypeOrderConfirmed, payload, tracing.Traceparent(ctx)); err != nil {
		return fmt.Errorf("persist confirmed order: %w", err)
	}
	return nil
}

// failOrder marks the order Failed after a definite business rejection.
// Nothing was reserved, so no compensation is queued.
func (c *Coordinator) failOrder(ctx context.Context, o *domain.Order) {
	if err := o.Fail(); err != nil {
		c.log.Error("mark order failed rejected", "order_id", o.ID, "err", err)
		return
	}
	if err := c.repo.Save(ctx, *o); err != nil {
		c.log.Error("persist failed order", "order_id", o.ID, "err", err)
	}
}

// failOrderUnknownOutcome marks the order Failed and queues OrderCancelled in
// the same transaction, so an orphaned hold from a half-committed reservation
// attempt is released.
func (c *Coordinator) failOrderUnknownOutcome(ctx context.Context, o *domain.Order) {
	if err := o.Fail(); err != nil {
		c.log.Error("mark order failed rejected", "order_id", o.ID, "err", err)
		return
	}
	ev := domain.OrderCancelledEvent{
		EventID:       uuid.NewString(),
		CorrelationID: o.CorrelationID,
		OrderID:       o.ID,
		Reason:        "reservation outcome unknown",
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("marshal cancel event", "order_id", o.ID, "err", err)
		return
	}
	if err := c.repo.SaveWithOutbox(ctx, *o, ev.EventID, domain.EventTypeOrderCancelled, payload, tracing.Traceparent(ctx)); err != nil {
		c.log.Error("persist failed order", "order_id", o.ID, "err", err)
	}
}
