package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	var got []Event
	bus.Subscribe(func(ctx context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	ev := Event{ID: "e1", Type: "OrderConfirmed", Key: "o1", Payload: []byte(`{}`)}
	require.NoError(t, bus.Publish(context.Background(), ev))

	// At-least-once: nothing stops the same event arriving twice.
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Len(t, bus.Published(), 2)
}

// One failing subscriber must not starve the others of the event.
func TestPublishDeliversToAllSubscribersDespiteError(t *testing.T) {
	bus := NewMemoryBus()
	bus.Subscribe(func(ctx context.Context, ev Event) error {
		return errors.New("first handler refused")
	})
	var got []string
	bus.Subscribe(func(ctx context.Context, ev Event) error {
		got = append(got, ev.ID)
		return nil
	})

	err := bus.Publish(context.Background(), Event{ID: "e1"})
	assert.Error(t, err)
	assert.Equal(t, []string{"e1"}, got)
}

func TestPublishManyReportsPartialFailure(t *testing.T) {
	bus := NewMemoryBus()
	bus.Subscribe(func(ctx context.Context, ev Event) error {
		if ev.ID == "bad" {
			return errors.New("handler refused")
		}
		return nil
	})

	err := bus.PublishMany(context.Background(), []Event{
		{ID: "ok-1"}, {ID: "bad"}, {ID: "ok-2"},
	})

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Failures, 1)
	assert.Equal(t, "bad", pe.Failures[0].EventID)

	// Best-effort batch: the events around the failure went through.
	assert.Len(t, bus.Published(), 3)
}

func TestNopPublisherAcceptsEverything(t *testing.T) {
	p := NewNopPublisher(discardLogger())
	assert.NoError(t, p.Publish(context.Background(), Event{ID: "e1"}))
	assert.NoError(t, p.PublishMany(context.Background(), []Event{{ID: "e2"}, {ID: "e3"}}))
}
