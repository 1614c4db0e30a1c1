package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/inventory/application"
	orderdom "github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/idempotency"
	"github.com/orderflow/orderflow/pkg/metrics"
	"github.com/orderflow/orderflow/pkg/tracing"
)

// Consumer drives reservations to their terminal state from order lifecycle
// events. Delivery is at-least-once and unordered, so everything it calls is
// an idempotent state-machine transition; the redis seen-store only spares
// the database a round trip on obvious duplicates.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	svc    *application.Service
	idem   *idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:    log,
		reader: r,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("reservation-event-handler"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		key := c.dedupKey(msg)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			// The state machine tolerates duplicates; process anyway.
			seen = false
		}
		if seen {
			c.log.Info("duplicate event skipped", "key", key)
			metrics.EventsConsumed.WithLabelValues(headerValue(msg.Headers, "event_type"), "duplicate").Inc()
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		if err := c.handle(msgCtx, msg); err != nil {
			// The key is still unmarked and the offset uncommitted, so the
			// broker redelivers and the retry is not skipped.
			c.log.Error("event handling failed, will be redelivered", "key", key, "err", err)
			continue
		}
		// Mark only after handling; a crash in between redelivers an
		// unmarked event instead of silently dropping it.
		if err := c.idem.Mark(ctx, key); err != nil {
			c.log.Error("idempotency mark failed", "key", key, "err", err)
		}
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	eventType := headerValue(msg.Headers, "event_type")
	ctx, span := c.tracer.Start(ctx, "Consume"+eventType)
	defer span.End()

	switch eventType {
	case orderdom.EventTypeOrderConfirmed:
		var ev orderdom.OrderConfirmedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// Malformed payloads never become parseable; drop, don't loop.
			c.log.Error("unmarshal failed", "event_type", eventType, "err", err)
			metrics.EventsConsumed.WithLabelValues(eventType, "malformed").Inc()
			return nil
		}
		if err := c.svc.ApplyConfirmation(ctx, ev.OrderID, ev.CorrelationID); err != nil {
			metrics.EventsConsumed.WithLabelValues(eventType, "error").Inc()
			return err
		}
		metrics.EventsConsumed.WithLabelValues(eventType, "ok").Inc()
	case orderdom.EventTypeOrderCancelled:
		var ev orderdom.OrderCancelledEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "event_type", eventType, "err", err)
			metrics.EventsConsumed.WithLabelValues(eventType, "malformed").Inc()
			return nil
		}
		if err := c.svc.ApplyRelease(ctx, ev.OrderID, ev.CorrelationID, ev.Reason); err != nil {
			metrics.EventsConsumed.WithLabelValues(eventType, "error").Inc()
			return err
		}
		metrics.EventsConsumed.WithLabelValues(eventType, "ok").Inc()
	default:
		c.log.Warn("unknown event type skipped", "event_type", eventType)
		metrics.EventsConsumed.WithLabelValues(eventType, "unknown").Inc()
	}
	return nil
}

// dedupKey prefers the producer-assigned event id; broker coordinates are the
// fallback for events published outside the outbox.
func (c *Consumer) dedupKey(msg kafka.Message) string {
	if id := headerValue(msg.Headers, "event_id"); id != "" {
		return c.idem.EventKey(id)
	}
	return c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
