package redis

import (
	"context"
	"time"

	"gympay/internal/domain"
)

// EventStoreInterface records which processor events were already handled.
type EventStoreInterface interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Commit(ctx context.Context, eventID string, ttl time.Duration) error
	Release(ctx context.Context, eventID string) error
}

// EnrollmentCacheInterface caches enrollment lookups.
type EnrollmentCacheInterface interface {
	GetEnrollment(ctx context.Context, id int64) (*domain.Enrollment, error)
	SetEnrollment(ctx context.Context, enrollment *domain.Enrollment) error
	InvalidateEnrollment(ctx context.Context, id int64) error
}

// Ensure concrete types implement interfaces.
var (
	_ EventStoreInterface      = (*EventStore)(nil)
	_ EnrollmentCacheInterface = (*CacheStore)(nil)
)
