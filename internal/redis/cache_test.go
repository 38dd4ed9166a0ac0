package redis

import (
	"context"
	"testing"

	"gympay/internal/domain"
)

func TestCacheStore_EnrollmentRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	cached, err := store.GetEnrollment(ctx, 7)
	if err != nil || cached != nil {
		t.Fatalf("expected a clean miss, got %v, %v", cached, err)
	}

	enrollment := &domain.Enrollment{
		ID:          7,
		StudentName: "Maya Chen",
		ParentName:  "Lin Chen",
		ParentEmail: "lin@example.com",
		ParentPhone: "555-0100",
	}
	if err := store.SetEnrollment(ctx, enrollment); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if ttl := mr.TTL("cache:enrollment:7"); ttl != EnrollmentCacheTTL {
		t.Errorf("expected ttl %v, got %v", EnrollmentCacheTTL, ttl)
	}

	cached, err = store.GetEnrollment(ctx, 7)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cached == nil || *cached != *enrollment {
		t.Errorf("expected %+v, got %+v", enrollment, cached)
	}

	if err := store.InvalidateEnrollment(ctx, 7); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if cached, _ := store.GetEnrollment(ctx, 7); cached != nil {
		t.Error("expected a miss after invalidation")
	}
}

func TestCacheStore_ExpiresAfterTTL(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	if err := store.SetEnrollment(ctx, &domain.Enrollment{ID: 9, ParentEmail: "a@example.com"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mr.FastForward(EnrollmentCacheTTL)

	if cached, err := store.GetEnrollment(ctx, 9); err != nil || cached != nil {
		t.Errorf("expected expiry, got %v, %v", cached, err)
	}
}

func TestCacheStore_CorruptEntryIsAnError(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCacheStore(client)

	if err := mr.Set("cache:enrollment:11", "{not json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := store.GetEnrollment(context.Background(), 11); err == nil {
		t.Error("expected a decode error")
	}
}
