package eventbus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a single topic with full-ISR acks.
type KafkaPublisher struct {
	log    *slog.Logger
	writer *kafka.Writer
	topic  string
}

func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		log:   log,
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if err := p.writer.WriteMessages(ctx, toMessage(p.topic, ev)); err != nil {
		p.log.Error("event publish failed", "event_id", ev.ID, "type", ev.Type, "err", err)
		return err
	}
	p.log.Info("event published", "event_id", ev.ID, "type", ev.Type, "key", ev.Key)
	return nil
}

func (p *KafkaPublisher) PublishMany(ctx context.Context, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		msgs = append(msgs, toMessage(p.topic, ev))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return nil
	}

	// kafka-go reports batch outcomes per message; translate into the
	// partial-failure contract so only rejected events are re-queued.
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		pe := &PublishError{}
		for i, werr := range werrs {
			if werr != nil {
				pe.Failures = append(pe.Failures, Failure{EventID: evs[i].ID, Err: werr})
			}
		}
		return pe
	}

	// Whole-batch failure: nothing was accepted.
	pe := &PublishError{}
	for _, ev := range evs {
		pe.Failures = append(pe.Failures, Failure{EventID: ev.ID, Err: err})
	}
	return pe
}

func toMessage(topic string, ev Event) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(ev.ID)},
		{Key: "event_type", Value: []byte(ev.Type)},
	}
	if ev.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(ev.CorrelationID)})
	}
	if ev.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(ev.Traceparent)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(ev.Key),
		Value:   ev.Payload,
		Headers: headers,
	}
}
