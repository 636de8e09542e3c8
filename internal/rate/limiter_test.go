package rate

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLimiterBlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Prefix: "gk:login", MaxAttempts: 3, Window: time.Minute})
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if err := l.Reserve(ctx, "Alice@Example.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Reserve(ctx, " ALICE@example.com ", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected identifier to be limited, got %v", err)
	}
	if err := l.Reserve(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("other identifiers must not be limited: %v", err)
	}

	n, err := l.Attempts(ctx, "alice@example.com")
	if err != nil || n != 4 {
		t.Fatalf("expected 4 counted attempts, got %d (%v)", n, err)
	}
}

func TestLimiterConcurrentReservations(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 3, Window: time.Minute})
	ctx := t.Context()

	var allowed, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := l.Reserve(ctx, "alice", ""); {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 3 || limited.Load() != 37 {
		t.Fatalf("expected 3 allowed and 37 limited, got %d and %d", allowed.Load(), limited.Load())
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := t.Context()

	if err := l.Reserve(ctx, "alice", ""); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := l.Reserve(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if ttl := mr.TTL("login:u:alice"); ttl != time.Minute {
		t.Fatalf("expected window TTL of 1m, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Reserve(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestLimiterReleaseKeepsIPFailures(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, PerIP: true})
	ctx := t.Context()

	if err := l.Reserve(ctx, "bob", "10.0.0.1"); err != nil {
		t.Fatalf("bob attempt: %v", err)
	}
	if err := l.Reserve(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("alice attempt: %v", err)
	}
	if err := l.Release(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if n, _ := l.Attempts(ctx, "alice"); n != 0 {
		t.Fatalf("expected released counter, got %d", n)
	}

	// bob's failure still counts against the address.
	if err := l.Reserve(ctx, "carol", "10.0.0.1"); err != nil {
		t.Fatalf("second address attempt should fit the budget, got %v", err)
	}
	if err := l.Reserve(ctx, "dave", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected address budget to be exhausted, got %v", err)
	}
	if err := l.Reserve(ctx, "erin", "10.0.0.2"); err != nil {
		t.Fatalf("other addresses must pass, got %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l := New(rdb, Config{MaxAttempts: 2, Window: time.Minute})
	mr.Close()

	if err := l.Reserve(t.Context(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.Release(t.Context(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
