package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backendCase struct {
	name string
	make func(t *testing.T) Backend
}

func newRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "gk", time.Minute), mr, rdb
}

func newSQLBackendTest(t *testing.T) *SQLBackend {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLBackend(db)
}

func backendCases() []backendCase {
	return []backendCase{
		{name: "memory", make: func(t *testing.T) Backend { return NewMemoryBackend() }},
		{name: "redis", make: func(t *testing.T) Backend {
			b, _, _ := newRedisBackendTest(t)
			return b
		}},
		{name: "sqlite", make: func(t *testing.T) Backend { return newSQLBackendTest(t) }},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for _, bc := range backendCases() {
		bc := bc
		t.Run(bc.name, func(t *testing.T) {
			fn(t, bc.make(t))
		})
	}
}
