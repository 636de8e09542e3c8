package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
)

func TestRedisKeysCarryExpiryAndIndexes(t *testing.T) {
	b, mr, rdb := newRedisBackendTest(t)
	store, _ := newStoreTest(b, time.Hour, 5)
	ctx := context.Background()

	issued, err := store.Create(ctx, "u-1", permission.RoleTrainer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	member := hashHex(issued.Session.TokenHash)

	if !mr.Exists(b.sessionKey(member)) {
		t.Fatal("expected session hash key")
	}
	ttl := mr.TTL(b.sessionKey(member))
	if ttl != time.Hour+time.Minute {
		t.Fatalf("expected key ttl of session ttl plus grace, got %v", ttl)
	}

	score, err := rdb.ZScore(ctx, b.expiryKey(), member).Result()
	if err != nil {
		t.Fatalf("expiry index: %v", err)
	}
	if int64(score) != issued.Session.ExpiresAt.UnixMilli() {
		t.Fatalf("expected expiry score %d, got %d", issued.Session.ExpiresAt.UnixMilli(), int64(score))
	}

	if err := store.Invalidate(ctx, issued.Token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(b.sessionKey(member)) {
		t.Fatal("expected session key removed")
	}
	if n, _ := rdb.ZCard(ctx, b.userKey("u-1")).Result(); n != 0 {
		t.Fatalf("expected empty user index, got %d", n)
	}
	if n, _ := rdb.ZCard(ctx, b.expiryKey()).Result(); n != 0 {
		t.Fatalf("expected empty expiry index, got %d", n)
	}
}

func TestRedisSweepRunsInBatches(t *testing.T) {
	b, _, rdb := newRedisBackendTest(t)
	b.sweepBatch = 3
	store, clock := newStoreTest(b, time.Minute, 100)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := store.Create(ctx, "u-bulk", permission.RoleInstructor); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	clock.Advance(time.Minute)

	n, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 swept, got %d", n)
	}
	if c, _ := rdb.ZCard(ctx, b.userKey("u-bulk")).Result(); c != 0 {
		t.Fatalf("expected user index cleared, got %d", c)
	}
}

func TestRedisCorruptRecordIsStorageError(t *testing.T) {
	b, _, rdb := newRedisBackendTest(t)
	store, _ := newStoreTest(b, time.Hour, 5)
	ctx := context.Background()

	issued, err := store.Create(ctx, "u-1", permission.RoleTrainer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := b.sessionKey(hashHex(issued.Session.TokenHash))
	if err := rdb.HSet(ctx, key, "d", "garbage").Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	if _, err := store.Validate(ctx, issued.Token); err == nil {
		t.Fatal("expected error for corrupt record")
	}
}
