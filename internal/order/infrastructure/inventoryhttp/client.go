// Package inventoryhttp is the synchronous transport to the stock-reservation
// API. Transport failures are retried under the order-id idempotency key;
// business rejections are returned as-is and never retried.
package inventoryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/pkg/correlation"
)

type Client struct {
	log     *slog.Logger
	baseURL string
	hc      *http.Client
	tracer  trace.Tracer

	attempts       int
	backoff        time.Duration
	attemptTimeout time.Duration
}

func NewClient(log *slog.Logger, baseURL string) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		// Per-attempt deadlines come from contexts, not a client-wide
		// timeout, so the retry budget stays in one place.
		hc: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		}},
		tracer:         otel.Tracer("reservation-client"),
		attempts:       3,
		backoff:        200 * time.Millisecond,
		attemptTimeout: 2 * time.Second,
	}
}

type createReservationBody struct {
	OrderID       string            `json:"orderId"`
	CorrelationID string            `json:"correlationId"`
	Items         []reservationItem `json:"items"`
}

type reservationItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type reservationReply struct {
	Success            bool `json:"success"`
	ReservationResults []struct {
		ProductID         string `json:"productId"`
		RequestedQuantity int    `json:"requestedQuantity"`
		AvailableStock    int    `json:"availableStock"`
		Success           bool   `json:"success"`
		ErrorMessage      string `json:"errorMessage"`
	} `json:"reservationResults"`
}

func (c *Client) CreateReservation(ctx context.Context, req application.ReservationRequest) (application.ReservationOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "ReserveStock", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body := createReservationBody{OrderID: req.OrderID, CorrelationID: req.CorrelationID}
	for _, it := range req.Items {
		body.Items = append(body.Items, reservationItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return application.ReservationOutcome{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return application.ReservationOutcome{}, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.backoff):
			}
		}

		outcome, retry, err := c.attempt(ctx, req, payload)
		if err == nil {
			return outcome, nil
		}
		if !retry {
			return application.ReservationOutcome{}, err
		}
		// A timed-out attempt may still have committed server-side; the
		// order id makes the retry safe, and a committed first attempt
		// surfaces as 409 on the next one.
		lastErr = err
		c.log.Warn("reservation attempt failed", "order_id", req.OrderID, "attempt", attempt, "err", err)
	}
	return application.ReservationOutcome{}, fmt.Errorf("%w: %v", application.ErrReservationUnavailable, lastErr)
}

// attempt performs one round trip. retry reports whether the failure is a
// transport-level one worth another attempt.
func (c *Client) attempt(ctx context.Context, req application.ReservationRequest, payload []byte) (application.ReservationOutcome, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stockreservations", bytes.NewReader(payload))
	if err != nil {
		return application.ReservationOutcome{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(correlation.Header, req.CorrelationID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return application.ReservationOutcome{}, true, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		outcome, err := decodeReply(resp.Body)
		return outcome, false, err
	case http.StatusConflict:
		// Idempotency hit: the batch already exists, i.e. already done.
		return application.ReservationOutcome{Success: true, AlreadyReserved: true}, false, nil
	case http.StatusUnprocessableEntity:
		// Business rejection with per-item detail; no retry.
		outcome, err := decodeReply(resp.Body)
		if err != nil {
			return application.ReservationOutcome{}, false, err
		}
		outcome.Success = false
		return outcome, false, nil
	default:
		err := fmt.Errorf("reservation service returned status %s", resp.Status)
		return application.ReservationOutcome{}, resp.StatusCode >= 500, err
	}
}

func decodeReply(r io.Reader) (application.ReservationOutcome, error) {
	var reply reservationReply
	if err := json.NewDecoder(r).Decode(&reply); err != nil {
		return application.ReservationOutcome{}, fmt.Errorf("decode reservation reply: %w", err)
	}
	outcome := application.ReservationOutcome{Success: reply.Success}
	for _, res := range reply.ReservationResults {
		outcome.Results = append(outcome.Results, application.ReservationItemResult{
			ProductID:         res.ProductID,
			RequestedQuantity: res.RequestedQuantity,
			AvailableStock:    res.AvailableStock,
			Success:           res.Success,
			ErrorMessage:      res.ErrorMessage,
		})
	}
	return outcome, nil
}
