package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventTTL bounds how long a delivered webhook event id is remembered.
// Stripe retries for up to three days.
const EventTTL = 72 * time.Hour

// EventClaimTTL bounds how long an event stays claimed while it is being
// dispatched. An uncommitted claim expires and the next retry is processed.
const EventClaimTTL = 5 * time.Minute

const eventKeyPrefix = "webhook:event:"

// EventStore deduplicates webhook deliveries in Redis.
type EventStore struct {
	client *redis.Client
}

// NewEventStore creates a new EventStore.
func NewEventStore(client *redis.Client) *EventStore {
	return &EventStore{client: client}
}

// MarkProcessed claims eventID. Returns false if it was already claimed.
func (s *EventStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, eventKeyPrefix+eventID, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Commit keeps a processed eventID for ttl. An expired claim is written again.
func (s *EventStore) Commit(ctx context.Context, eventID string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, eventKeyPrefix+eventID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return s.client.Set(ctx, eventKeyPrefix+eventID, time.Now().Unix(), ttl).Err()
	}
	return nil
}

// Release forgets eventID so the next delivery is processed again.
func (s *EventStore) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, eventKeyPrefix+eventID).Err()
}
