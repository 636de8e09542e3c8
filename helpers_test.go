package gatekeeper

import (
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/internal/audit"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct horse battery staple"

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

type testEnv struct {
	engine *Engine
	clock  *testClock
	mr     *miniredis.Miniredis
	stop   func()
	dir    *credential.MemoryDirectory
	events *audit.ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = credential.HashConfig{
		Memory:           8 * 1024,
		Time:             1,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: 128,
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.BufferSize = 256
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	hasher, err := credential.NewHasher(cfg.Password)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	dir := credential.NewMemoryDirectory()
	for _, u := range []credential.UserRecord{
		{ID: "u-admin", Identifier: "root@example.com", Role: permission.RoleAdmin},
		{ID: "u-trainer", Identifier: "alice@example.com", Role: permission.RoleTrainer},
		{ID: "u-instructor", Identifier: "ian@example.com", Role: permission.RoleInstructor},
		{ID: "u-instructor-2", Identifier: "ivy@example.com", Role: permission.RoleInstructor},
	} {
		u.PasswordHash = hash
		if err := dir.Add(u); err != nil {
			t.Fatalf("Add user failed: %v", err)
		}
	}

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	events := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithAuditSink(events).
		WithClock(clock.Now).
		Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(mr.Close) }
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		stop()
	})

	return &testEnv{engine: engine, clock: clock, mr: mr, stop: stop, dir: dir, events: events}
}

func (env *testEnv) login(t *testing.T, identifier string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(t.Context(), LoginRequest{Identifier: identifier, Secret: testPassword})
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", identifier, err)
	}
	return res
}

// nextEvent returns the next audit event of eventType, skipping others.
func (env *testEnv) nextEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.events.Events():
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s audit event", eventType)
			return AuditEvent{}
		}
	}
}

func gateError(t *testing.T, err error) *GateError {
	t.Helper()
	if err == nil {
		t.Fatal("expected gate error, got nil")
	}
	ge, ok := err.(*GateError)
	if !ok {
		t.Fatalf("expected *GateError, got %T: %v", err, err)
	}
	return ge
}
