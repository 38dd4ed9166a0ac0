package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestService_FixedWindow(t *testing.T) {
	t.Parallel()

	svc := NewMemoryService()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := svc.Check(ctx, "parent-1:/payments", 3, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 3-i, res.Remaining)
		}
	}

	res, err := svc.Check(ctx, "parent-1:/payments", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}
	if !res.ResetTime.After(time.Now()) {
		t.Error("reset time should be in the future")
	}
	if res.RetryAfter(time.Now()) < time.Second {
		t.Error("retry after should be at least one second")
	}

	other, err := svc.Check(ctx, "parent-2:/payments", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !other.Allowed {
		t.Error("keys must be counted independently")
	}
}

func TestService_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	svc := NewMemoryService()
	ctx := context.Background()

	const (
		limit   = 50
		callers = 200
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Check(ctx, "shared", limit, time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("expected exactly %d allowed requests, got %d", limit, allowed)
	}
}

func TestParseRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		limit   int64
		window  time.Duration
		wantErr bool
	}{
		{"5-S", 5, time.Second, false},
		{"60-M", 60, time.Minute, false},
		{"1000-H", 1000, time.Hour, false},
		{"2000-D", 2000, 24 * time.Hour, false},
		{"fast", 0, 0, true},
	}

	for _, tt := range tests {
		rule, err := ParseRule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.in, err)
			continue
		}
		if rule.Limit != tt.limit || rule.Window != tt.window {
			t.Errorf("%s: got %+v", tt.in, rule)
		}
	}
}
