// Package idempotency tracks processed event ids in redis so event consumers
// can skip duplicates cheaply before hitting the state machine, which remains
// the authoritative idempotency guard.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// EventKey keys on the producer-assigned event id.
func (s *Store) EventKey(eventID string) string {
	return "idem:event:" + eventID
}

// MessageKey keys on broker coordinates, for events that arrive without an id.
func (s *Store) MessageKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen reports whether the key was marked processed. It never marks: a
// consumer marks only after the event was handled, so a crash mid-handling
// leaves the redelivery unmarked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the key as processed for the store's TTL.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
