// Package eventbus is the at-least-once transport for order lifecycle events.
// Variant publishers (kafka, no-op, in-memory) implement one interface and
// are chosen by wiring at startup.
package eventbus

import (
	"context"
	"fmt"
	"strings"
)

// Event is the broker-level envelope. ID is a stable producer-assigned id
// that consumers may use for de-duplication; Key groups events of one order
// onto one partition.
type Event struct {
	ID            string
	Type          string
	Key           string
	CorrelationID string
	Traceparent   string
	Payload       []byte
}

// Publisher delivers events with an at-least-once contract.
//
// Publish either succeeds (broker accepted) or returns an error. PublishMany
// is best-effort with a partial-failure report: events accepted before a
// failure stay published, and the returned *PublishError names exactly the
// events that were not, so callers re-queue only those.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	PublishMany(ctx context.Context, evs []Event) error
}

// Handler consumes one delivered event. Delivery is at-least-once, so
// handlers must be idempotent.
type Handler func(ctx context.Context, ev Event) error

// Failure is one undelivered event inside a PublishError.
type Failure struct {
	EventID string
	Err     error
}

// PublishError reports the subset of a batch that was not accepted.
type PublishError struct {
	Failures []Failure
}

func (e *PublishError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.EventID)
	}
	return fmt.Sprintf("publish failed for %d event(s): %s", len(e.Failures), strings.Join(ids, ","))
}
