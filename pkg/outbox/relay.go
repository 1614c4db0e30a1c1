package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/pkg/eventbus"
)

// Store is the durable queue behind the relay. LockBatch leases a batch to
// this relay instance so concurrent replicas do not double-send.
type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// Relay polls pending outbox rows and hands them to the publisher. Rows whose
// events the publisher rejects are marked failed and retried on later ticks;
// the rest are marked sent in one update.
type Relay struct {
	log       *slog.Logger
	store     Store
	pub       eventbus.Publisher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, pub eventbus.Publisher, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		pub:       pub,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	rows, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		r.log.Error("relay lock batch error", "err", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	byEventID := make(map[string]Event, len(rows))
	evs := make([]eventbus.Event, 0, len(rows))
	for _, row := range rows {
		byEventID[row.EventID] = row
		evs = append(evs, eventbus.Event{
			ID:            row.EventID,
			Type:          row.Type,
			Key:           row.AggregateID,
			CorrelationID: row.CorrelationID,
			Traceparent:   row.Traceparent,
			Payload:       row.Payload,
		})
	}

	failed := map[int64]bool{}
	if err := r.pub.PublishMany(ctx, evs); err != nil {
		var pe *eventbus.PublishError
		if !errors.As(err, &pe) {
			r.log.Error("relay publish error", "err", err)
			return
		}
		for _, f := range pe.Failures {
			row, ok := byEventID[f.EventID]
			if !ok {
				continue
			}
			failed[row.ID] = true
			if merr := r.store.MarkFailed(ctx, row.ID, f.Err.Error()); merr != nil {
				r.log.Error("relay mark failed error", "outbox_id", row.ID, "err", merr)
			}
		}
	}

	sent := make([]int64, 0, len(rows))
	for _, row := range rows {
		if !failed[row.ID] {
			sent = append(sent, row.ID)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			r.log.Error("relay mark sent error", "err", err)
		}
	}
}
