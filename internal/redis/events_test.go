package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEventStore_ClaimCommitRelease(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewEventStore(client)
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "evt_1", EventClaimTTL)
	if err != nil || !first {
		t.Fatalf("expected first claim to succeed, got %v, %v", first, err)
	}
	if ttl := mr.TTL("webhook:event:evt_1"); ttl != EventClaimTTL {
		t.Errorf("expected claim ttl %v, got %v", EventClaimTTL, ttl)
	}

	again, err := store.MarkProcessed(ctx, "evt_1", EventClaimTTL)
	if err != nil || again {
		t.Fatalf("expected duplicate claim to be refused, got %v, %v", again, err)
	}

	if err := store.Commit(ctx, "evt_1", EventTTL); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if ttl := mr.TTL("webhook:event:evt_1"); ttl != EventTTL {
		t.Errorf("expected committed ttl %v, got %v", EventTTL, ttl)
	}

	if err := store.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if mr.Exists("webhook:event:evt_1") {
		t.Fatal("expected key to be removed")
	}
	reclaimed, err := store.MarkProcessed(ctx, "evt_1", EventClaimTTL)
	if err != nil || !reclaimed {
		t.Errorf("expected released event to be claimable, got %v, %v", reclaimed, err)
	}
}

func TestEventStore_ExpiredClaimIsRetried(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewEventStore(client)
	ctx := context.Background()

	if _, err := store.MarkProcessed(ctx, "evt_2", EventClaimTTL); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// The worker died before committing.
	mr.FastForward(EventClaimTTL + time.Second)

	retried, err := store.MarkProcessed(ctx, "evt_2", EventClaimTTL)
	if err != nil || !retried {
		t.Fatalf("expected expired claim to be taken again, got %v, %v", retried, err)
	}
}

func TestEventStore_CommitAfterExpiryRewritesKey(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewEventStore(client)
	ctx := context.Background()

	if _, err := store.MarkProcessed(ctx, "evt_3", time.Second); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if err := store.Commit(ctx, "evt_3", EventTTL); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !mr.Exists("webhook:event:evt_3") {
		t.Fatal("expected committed key to exist")
	}
	if ttl := mr.TTL("webhook:event:evt_3"); ttl != EventTTL {
		t.Errorf("expected ttl %v, got %v", EventTTL, ttl)
	}
}
