package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gympay/internal/domain"
)

// EnrollmentCacheTTL keeps parent contact details reasonably fresh.
const EnrollmentCacheTTL = 5 * time.Minute

const enrollmentCachePrefix = "cache:enrollment:"

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client, ttl: EnrollmentCacheTTL}
}

// cachedEnrollment is the JSON form stored in Redis.
type cachedEnrollment struct {
	ID          int64  `json:"id"`
	StudentName string `json:"student_name"`
	ParentName  string `json:"parent_name"`
	ParentEmail string `json:"parent_email"`
	ParentPhone string `json:"parent_phone"`
}

func enrollmentKey(id int64) string {
	return enrollmentCachePrefix + strconv.FormatInt(id, 10)
}

// GetEnrollment retrieves an enrollment from cache. A miss returns nil, nil.
func (s *CacheStore) GetEnrollment(ctx context.Context, id int64) (*domain.Enrollment, error) {
	data, err := s.client.Get(ctx, enrollmentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached cachedEnrollment
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.Enrollment{
		ID:          cached.ID,
		StudentName: cached.StudentName,
		ParentName:  cached.ParentName,
		ParentEmail: cached.ParentEmail,
		ParentPhone: cached.ParentPhone,
	}, nil
}

// SetEnrollment stores an enrollment in cache.
func (s *CacheStore) SetEnrollment(ctx context.Context, enrollment *domain.Enrollment) error {
	data, err := json.Marshal(cachedEnrollment{
		ID:          enrollment.ID,
		StudentName: enrollment.StudentName,
		ParentName:  enrollment.ParentName,
		ParentEmail: enrollment.ParentEmail,
		ParentPhone: enrollment.ParentPhone,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, enrollmentKey(enrollment.ID), data, s.ttl).Err()
}

// InvalidateEnrollment removes an enrollment from cache.
func (s *CacheStore) InvalidateEnrollment(ctx context.Context, id int64) error {
	return s.client.Del(ctx, enrollmentKey(id)).Err()
}
