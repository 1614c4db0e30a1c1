package inventoryhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/pkg/correlation"
)

func testClient(url string) *Client {
	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), url)
	c.backoff = time.Millisecond
	c.attemptTimeout = 200 * time.Millisecond
	return c
}

func request() application.ReservationRequest {
	return application.ReservationRequest{
		OrderID:       "order-1",
		CorrelationID: "corr-1",
		Items:         []application.ReservationItem{{ProductID: "p1", Quantity: 2}},
	}
}

func TestCreateReservationSuccess(t *testing.T) {
	var gotCorrelation atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorrelation.Store(r.Header.Get(correlation.Header))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"reservationResults":[
			{"productId":"p1","requestedQuantity":2,"availableStock":8,"success":true,"reservationId":"r1"}]}`))
	}))
	defer srv.Close()

	outcome, err := testClient(srv.URL).CreateReservation(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, 8, outcome.Results[0].AvailableStock)
	assert.Equal(t, "corr-1", gotCorrelation.Load(), "correlation id must be forwarded")
}

func TestConflictMeansAlreadyReserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	outcome, err := testClient(srv.URL).CreateReservation(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.AlreadyReserved)
}

func TestBusinessRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"reservationResults":[
			{"productId":"p1","requestedQuantity":2,"availableStock":1,"success":false,"errorMessage":"insufficient stock"}]}`))
	}))
	defer srv.Close()

	outcome, err := testClient(srv.URL).CreateReservation(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, int32(1), calls.Load(), "insufficient stock must not be retried")
}

func TestTransientFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"reservationResults":[]}`))
	}))
	defer srv.Close()

	outcome, err := testClient(srv.URL).CreateReservation(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhaustedSurfaceAsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateReservation(context.Background(), request())
	assert.ErrorIs(t, err, application.ErrReservationUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTimeoutIsRetriedThenUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.attemptTimeout = 20 * time.Millisecond

	_, err := c.CreateReservation(context.Background(), request())
	assert.ErrorIs(t, err, application.ErrReservationUnavailable,
		"a timeout is an unknown outcome, retried under the idempotency key")
	assert.Equal(t, int32(3), calls.Load())
}
