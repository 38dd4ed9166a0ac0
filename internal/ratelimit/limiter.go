// Package ratelimit provides fixed-window request counters keyed by caller.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	limiterlib "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetTime time.Time
}

// RetryAfter is how long the caller should wait before the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetTime.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

// Limiter counts requests per key within a fixed window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)
}

// Service is a Limiter backed by a ulule/limiter store.
// Every check increments the counter atomically in the store.
type Service struct {
	store    limiterlib.Store
	limiters sync.Map
}

// NewService wraps an existing store.
func NewService(store limiterlib.Store) *Service {
	return &Service{store: store}
}

// NewRedisService shares counters across instances through Redis.
func NewRedisService(client *redis.Client, prefix string) (*Service, error) {
	store, err := sredis.NewStoreWithOptions(client, limiterlib.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis limiter store: %w", err)
	}
	return NewService(store), nil
}

// NewMemoryService keeps counters in process memory.
func NewMemoryService() *Service {
	return NewService(memory.NewStore())
}

// Check increments the counter for key and reports whether it is within limit.
func (s *Service) Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	lim := s.limiter(limit, window)

	lctx, err := lim.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetTime: time.Unix(lctx.Reset, 0),
	}, nil
}

func (s *Service) limiter(limit int64, window time.Duration) *limiterlib.Limiter {
	key := fmt.Sprintf("%d/%s", limit, window)
	if lim, ok := s.limiters.Load(key); ok {
		return lim.(*limiterlib.Limiter)
	}

	lim := limiterlib.New(s.store, limiterlib.Rate{Period: window, Limit: limit})
	actual, _ := s.limiters.LoadOrStore(key, lim)
	return actual.(*limiterlib.Limiter)
}

// Rule is a parsed "<limit>-<period>" setting.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// ParseRule parses formats such as "5-S", "60-M", "1000-H" and "2000-D".
func ParseRule(formatted string) (Rule, error) {
	rate, err := limiterlib.NewRateFromFormatted(strings.ReplaceAll(formatted, "/", "-"))
	if err != nil {
		return Rule{}, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}
	return Rule{Limit: rate.Limit, Window: rate.Period}, nil
}
