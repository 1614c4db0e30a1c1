package application_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/internal/order/domain"
)

type outboxRecord struct {
	EventID string
	Type    string
	Payload []byte
}

type fakeRepo struct {
	orders map[string]domain.Order
	outbox []outboxRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]domain.Order)}
}

func (r *fakeRepo) Save(ctx context.Context, o domain.Order) error {
	r.orders[o.ID] = o
	return nil
}

func (r *fakeRepo) SaveWithOutbox(ctx context.Context, o domain.Order, eventID, eventType string, payload []byte, traceparent string) error {
	r.orders[o.ID] = o
	r.outbox = append(r.outbox, outboxRecord{EventID: eventID, Type: eventType, Payload: payload})
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (domain.Order, bool, error) {
	o, ok := r.orders[id]
	return o, ok, nil
}

type fakeClient struct {
	calls   int
	outcome application.ReservationOutcome
	err     error
}

func (c *fakeClient) CreateReservation(ctx context.Context, req application.ReservationRequest) (application.ReservationOutcome, error) {
	c.calls++
	return c.outcome, c.err
}

type fakeCatalog struct {
	products map[string]application.CatalogProduct
}

func (c *fakeCatalog) Product(ctx context.Context, id string) (application.CatalogProduct, bool, error) {
	p, ok := c.products[id]
	return p, ok, nil
}

func newCoordinator(client *fakeClient) (*application.Coordinator, *fakeRepo) {
	repo := newFakeRepo()
	catalog := &fakeCatalog{products: map[string]application.CatalogProduct{
		"p1": {ID: "p1", Name: "Widget", UnitPriceCents: 500},
		"p2": {ID: "p2", Name: "Gadget", UnitPriceCents: 250},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return application.NewCoordinator(log, repo, client, catalog), repo
}

func cmdWith(items ...application.CreateOrderItem) application.CreateOrderCommand {
	return application.CreateOrderCommand{
		CustomerID:    "cust-1",
		CorrelationID: "corr-1",
		CreatedBy:     "alice",
		Items:         items,
	}
}

func TestCreateOrderConfirmsAndQueuesEvent(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, repo := newCoordinator(client)

	o, err := coordinator.CreateOrder(context.Background(), cmdWith(
		application.CreateOrderItem{ProductID: "p1", Quantity: 2},
		application.CreateOrderItem{ProductID: "p2", Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, int64(1250), o.TotalCents, "prices come from the catalog snapshot")
	assert.Equal(t, "Widget", o.Items[0].ProductName)
	assert.Equal(t, 1, client.calls)

	require.Len(t, repo.outbox, 1)
	assert.Equal(t, domain.EventTypeOrderConfirmed, repo.outbox[0].Type)
	var ev domain.OrderConfirmedEvent
	require.NoError(t, json.Unmarshal(repo.outbox[0].Payload, &ev))
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Len(t, ev.Items, 2)
	assert.Equal(t, repo.outbox[0].EventID, ev.EventID)
}

func TestCreateOrderValidationNeverReachesReservation(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, repo := newCoordinator(client)
	ctx := context.Background()

	_, err := coordinator.CreateOrder(ctx, cmdWith())
	assert.ErrorIs(t, err, domain.ErrNoItems)

	_, err = coordinator.CreateOrder(ctx, cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: -1}))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = coordinator.CreateOrder(ctx, cmdWith(
		application.CreateOrderItem{ProductID: "p1", Quantity: 1},
		application.CreateOrderItem{ProductID: "p1", Quantity: 1},
	))
	assert.ErrorIs(t, err, domain.ErrDuplicateProduct)

	_, err = coordinator.CreateOrder(ctx, cmdWith(application.CreateOrderItem{ProductID: "unknown", Quantity: 1}))
	assert.ErrorIs(t, err, application.ErrProductNotFound)

	assert.Zero(t, client.calls)
	assert.Empty(t, repo.orders)
}

func TestCreateOrderReservationRejected(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{
		Success: false,
		Results: []application.ReservationItemResult{
			{ProductID: "p1", RequestedQuantity: 2, AvailableStock: 1, Success: false, ErrorMessage: "insufficient stock"},
		},
	}}
	coordinator, repo := newCoordinator(client)

	_, err := coordinator.CreateOrder(context.Background(), cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 2}))

	var rejected *application.ReservationRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Results, 1)
	assert.Equal(t, 1, rejected.Results[0].AvailableStock)

	require.Len(t, repo.orders, 1)
	for _, o := range repo.orders {
		assert.Equal(t, domain.StatusFailed, o.Status, "a failed order never holds a reservation")
	}
	assert.Empty(t, repo.outbox, "no lifecycle event for a failed order")
}

// An exhausted retry budget is an unknown outcome: a timed-out attempt may
// have committed a hold server-side, so failing the order must queue a
// cancellation that releases it (or no-ops when nothing was held).
func TestCreateOrderTransportFailureQueuesRelease(t *testing.T) {
	client := &fakeClient{err: application.ErrReservationUnavailable}
	coordinator, repo := newCoordinator(client)

	_, err := coordinator.CreateOrder(context.Background(), cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 1}))
	assert.ErrorIs(t, err, application.ErrReservationUnavailable)

	require.Len(t, repo.orders, 1)
	for _, o := range repo.orders {
		assert.Equal(t, domain.StatusFailed, o.Status)
	}

	require.Len(t, repo.outbox, 1)
	assert.Equal(t, domain.EventTypeOrderCancelled, repo.outbox[0].Type)
	var ev domain.OrderCancelledEvent
	require.NoError(t, json.Unmarshal(repo.outbox[0].Payload, &ev))
	assert.Equal(t, "corr-1", ev.CorrelationID,
		"release must correlate with the possibly-committed reservation")
}

func TestCreateOrderAlreadyReservedIsSuccess(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true, AlreadyReserved: true}}
	coordinator, _ := newCoordinator(client)

	o, err := coordinator.CreateOrder(context.Background(), cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, o.Status)
}

func TestCancelOrderEmitsEventWithCreationCorrelation(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, repo := newCoordinator(client)
	ctx := context.Background()

	created, err := coordinator.CreateOrder(ctx, cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	cancelled, err := coordinator.CancelOrder(ctx, created.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	require.Len(t, repo.outbox, 2)
	assert.Equal(t, domain.EventTypeOrderCancelled, repo.outbox[1].Type)
	var ev domain.OrderCancelledEvent
	require.NoError(t, json.Unmarshal(repo.outbox[1].Payload, &ev))
	assert.Equal(t, created.CorrelationID, ev.CorrelationID,
		"release must correlate with the original reservation")
	assert.Equal(t, "customer changed mind", ev.Reason)
}

func TestCancelGuards(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, repo := newCoordinator(client)
	ctx := context.Background()

	_, err := coordinator.CancelOrder(ctx, "missing", "")
	assert.ErrorIs(t, err, application.ErrOrderNotFound)

	created, err := coordinator.CreateOrder(ctx, cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	_, err = coordinator.MarkOrderAsFulfilled(ctx, created.ID)
	require.NoError(t, err)

	events := len(repo.outbox)
	_, err = coordinator.CancelOrder(ctx, created.ID, "too late")
	var invalid *domain.ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, repo.outbox, events, "rejected cancellation must not emit an event")
}

func TestMarkOrderAsFulfilled(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, _ := newCoordinator(client)
	ctx := context.Background()

	created, err := coordinator.CreateOrder(ctx, cmdWith(application.CreateOrderItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	o, err := coordinator.MarkOrderAsFulfilled(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, o.Status)

	_, err = coordinator.MarkOrderAsFulfilled(ctx, created.ID)
	assert.Error(t, err, "fulfilment is not repeatable")
}

func TestSuppliedSnapshotsAreKept(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, _ := newCoordinator(client)

	price := int64(999)
	o, err := coordinator.CreateOrder(context.Background(), cmdWith(application.CreateOrderItem{
		ProductID:      "p1",
		ProductName:    "Widget (promo)",
		Quantity:       1,
		UnitPriceCents: &price,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Widget (promo)", o.Items[0].ProductName)
	assert.Equal(t, int64(999), o.Items[0].UnitPriceCents, "caller-supplied price wins over the catalog")
}

func TestCreateOrderGeneratesIDsWhenAbsent(t *testing.T) {
	client := &fakeClient{outcome: application.ReservationOutcome{Success: true}}
	coordinator, _ := newCoordinator(client)

	cmd := application.CreateOrderCommand{
		CustomerID: "cust-1",
		Items:      []application.CreateOrderItem{{ProductID: "p1", Quantity: 1}},
	}
	o, err := coordinator.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.NotEmpty(t, o.CorrelationID)
}
