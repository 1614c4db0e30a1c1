package eventbus

import (
	"context"
	"log/slog"
)

// NopPublisher accepts every event and delivers none. Used when a service
// runs without a broker (local smoke tests, read-only deployments).
type NopPublisher struct {
	log *slog.Logger
}

func NewNopPublisher(log *slog.Logger) *NopPublisher {
	return &NopPublisher{log: log}
}

func (p *NopPublisher) Publish(ctx context.Context, ev Event) error {
	p.log.Debug("event dropped (noop publisher)", "event_id", ev.ID, "type", ev.Type)
	return nil
}

func (p *NopPublisher) PublishMany(ctx context.Context, evs []Event) error {
	for _, ev := range evs {
		_ = p.Publish(ctx, ev)
	}
	return nil
}
