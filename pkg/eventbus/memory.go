package eventbus

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus delivers events synchronously to in-process subscribers. It keeps
// the same contracts as the kafka publisher (at-least-once, PublishMany with
// partial-failure report) so services and tests can run without a broker.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []Handler
	// published keeps every accepted event, delivered or not, for assertions.
	published []Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a handler invoked once per published event. Re-publishing
// the same event is how tests exercise duplicate delivery.
func (b *MemoryBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	// Every subscriber sees every event, as independent consumer groups
	// would; errors are aggregated rather than short-circuiting delivery.
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *MemoryBus) PublishMany(ctx context.Context, evs []Event) error {
	pe := &PublishError{}
	for _, ev := range evs {
		if err := b.Publish(ctx, ev); err != nil {
			pe.Failures = append(pe.Failures, Failure{EventID: ev.ID, Err: err})
		}
	}
	if len(pe.Failures) > 0 {
		return pe
	}
	return nil
}

// Published returns a snapshot of every event accepted so far.
func (b *MemoryBus) Published() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.published))
	copy(out, b.published)
	return out
}
