package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(b Backend, ttl time.Duration, maxPerUser int) (*Store, *testClock) {
	clock := newTestClock()
	store := NewStore(b, Config{TTL: ttl, MaxPerUser: maxPerUser}, WithClock(clock.Now))
	return store, clock
}

func TestCreateAndValidate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, clock := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		issued, err := store.Create(ctx, "u-trainer", permission.RoleTrainer)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if len(issued.Token) != TokenLength {
			t.Fatalf("unexpected token length %d", len(issued.Token))
		}
		if issued.Session.ID == "" || issued.Session.ID == issued.Token {
			t.Fatal("session id must be set and distinct from the token")
		}
		if !issued.Session.ExpiresAt.After(issued.Session.CreatedAt) {
			t.Fatal("expires_at must be after created_at")
		}
		if issued.Session.CSRFSecret == ([32]byte{}) {
			t.Fatal("expected non-zero csrf secret")
		}

		clock.Advance(10 * time.Minute)
		sc, err := store.Validate(ctx, issued.Token)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if sc.UserID != "u-trainer" || sc.Role != permission.RoleTrainer {
			t.Fatalf("unexpected context: %+v", sc)
		}
		if sc.SessionID != issued.Session.ID || sc.CSRFSecret != issued.Session.CSRFSecret {
			t.Fatal("context does not match issued session")
		}

		list, err := store.ActiveSessions(ctx, "u-trainer")
		if err != nil {
			t.Fatalf("active sessions: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 session, got %d", len(list))
		}
		if !list[0].LastAccessedAt.Equal(clock.Now()) {
			t.Fatalf("expected last access %v, got %v", clock.Now(), list[0].LastAccessedAt)
		}
		if list[0].CSRFSecret != ([32]byte{}) {
			t.Fatal("listed sessions must not expose csrf secrets")
		}
	})
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	store, _ := newStoreTest(NewMemoryBackend(), time.Hour, 5)
	ctx := context.Background()

	if _, err := store.Create(ctx, "", permission.RoleAdmin); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := store.Create(ctx, "u-1", permission.RoleUnknown); !errors.Is(err, permission.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestValidateMalformedAndUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, _ := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		for _, tok := range []string{"", "has space", "semi;colon", string(make([]byte, 300))} {
			if _, err := store.Validate(ctx, tok); !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("Validate(%q) expected ErrMalformedToken, got %v", tok, err)
			}
		}

		if _, err := store.Validate(ctx, "not-a-real-token"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
		}
	})
}

func TestExpiryIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, clock := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		issued, err := store.Create(ctx, "u-1", permission.RoleInstructor)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		clock.Advance(time.Hour)
		if _, err := store.Validate(ctx, issued.Token); !errors.Is(err, ErrExpired) {
			t.Fatalf("first validate after expiry: expected ErrExpired, got %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := store.Validate(ctx, issued.Token); !errors.Is(err, ErrNotFound) {
				t.Fatalf("validate #%d after expiry: expected ErrNotFound, got %v", i+2, err)
			}
		}

		n, err := store.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected lazily deleted session to be gone before sweep, swept %d", n)
		}
	})
}

func TestCapKeepsMostRecent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		const k, n = 3, 8
		store, clock := newStoreTest(b, time.Hour, k)
		ctx := context.Background()

		var issued []*Issued
		evicted := 0
		for i := 0; i < n; i++ {
			is, err := store.Create(ctx, "u-cap", permission.RoleTrainer)
			if err != nil {
				t.Fatalf("create %d: %v", i, err)
			}
			evicted += is.Evicted
			issued = append(issued, is)
			if i%2 == 0 {
				clock.Advance(time.Second)
			}
		}
		if evicted != n-k {
			t.Fatalf("expected %d evictions, got %d", n-k, evicted)
		}

		list, err := store.ActiveSessions(ctx, "u-cap")
		if err != nil {
			t.Fatalf("active sessions: %v", err)
		}
		if len(list) != k {
			t.Fatalf("expected %d sessions, got %d", k, len(list))
		}
		for i, sess := range list {
			want := issued[n-k+i].Session.ID
			if sess.ID != want {
				t.Fatalf("session %d: expected %s, got %s", i, want, sess.ID)
			}
		}

		for i, is := range issued {
			_, err := store.Validate(ctx, is.Token)
			if i < n-k {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("evicted session %d: expected ErrNotFound, got %v", i, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("retained session %d: %v", i, err)
			}
		}
	})
}

func TestCapIgnoresExpiredSessions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, clock := newStoreTest(b, time.Hour, 2)
		ctx := context.Background()

		old, err := store.Create(ctx, "u-1", permission.RoleAdmin)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		clock.Advance(2 * time.Hour)

		a, err := store.Create(ctx, "u-1", permission.RoleAdmin)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		bIssued, err := store.Create(ctx, "u-1", permission.RoleAdmin)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if a.Evicted != 0 || bIssued.Evicted != 0 {
			t.Fatalf("expired sessions must not count toward the cap (evicted %d, %d)", a.Evicted, bIssued.Evicted)
		}
		if _, err := store.Validate(ctx, old.Token); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected expired session purged on insert, got %v", err)
		}
	})
}

func TestInvalidateIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, _ := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		issued, err := store.Create(ctx, "u-1", permission.RoleTrainer)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := store.Invalidate(ctx, issued.Token); err != nil {
			t.Fatalf("first invalidate: %v", err)
		}
		if err := store.Invalidate(ctx, issued.Token); err != nil {
			t.Fatalf("second invalidate: %v", err)
		}
		if err := store.Invalidate(ctx, ""); err != nil {
			t.Fatalf("invalidate empty token: %v", err)
		}
		if _, err := store.Validate(ctx, issued.Token); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after logout, got %v", err)
		}

		list, err := store.ActiveSessions(ctx, "u-1")
		if err != nil {
			t.Fatalf("active sessions: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("expected user index to be empty, got %d", len(list))
		}
	})
}

func TestInvalidateUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, _ := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		var tokens []string
		for i := 0; i < 3; i++ {
			is, err := store.Create(ctx, "u-1", permission.RoleTrainer)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			tokens = append(tokens, is.Token)
		}
		other, err := store.Create(ctx, "u-2", permission.RoleTrainer)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		n, err := store.InvalidateUser(ctx, "u-1")
		if err != nil {
			t.Fatalf("invalidate user: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 sessions removed, got %d", n)
		}
		for _, tok := range tokens {
			if _, err := store.Validate(ctx, tok); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		}
		if _, err := store.Validate(ctx, other.Token); err != nil {
			t.Fatalf("other user's session should survive: %v", err)
		}
	})
}

func TestSweepExpired(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, clock := newStoreTest(b, time.Hour, 10)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			if _, err := store.Create(ctx, "u-old", permission.RoleInstructor); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		clock.Advance(30 * time.Minute)
		fresh, err := store.Create(ctx, "u-new", permission.RoleInstructor)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		clock.Advance(30 * time.Minute)
		n, err := store.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 4 {
			t.Fatalf("expected 4 swept, got %d", n)
		}
		if _, err := store.Validate(ctx, fresh.Token); err != nil {
			t.Fatalf("unexpired session should survive sweep: %v", err)
		}

		n, err = store.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("second sweep: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected nothing left to sweep, got %d", n)
		}
	})
}

func TestConcurrentCreateRespectsCap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		const k, workers = 3, 16
		store, _ := newStoreTest(b, time.Hour, k)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Create(ctx, "u-race", permission.RoleTrainer); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent create: %v", err)
		}

		list, err := store.ActiveSessions(ctx, "u-race")
		if err != nil {
			t.Fatalf("active sessions: %v", err)
		}
		if len(list) != k {
			t.Fatalf("expected exactly %d sessions after concurrent creates, got %d", k, len(list))
		}
	})
}

func TestConcurrentValidateOfExpiredSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		store, clock := newStoreTest(b, time.Hour, 5)
		ctx := context.Background()

		issued, err := store.Create(ctx, "u-1", permission.RoleTrainer)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		clock.Advance(2 * time.Hour)

		const workers = 12
		results := make(chan error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Validate(ctx, issued.Token)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		expired := 0
		for err := range results {
			switch {
			case errors.Is(err, ErrExpired):
				expired++
			case errors.Is(err, ErrNotFound):
			default:
				t.Fatalf("unexpected validate result: %v", err)
			}
		}
		if expired == 0 {
			t.Fatal("expected at least one validator to observe expiry")
		}
		if _, err := store.Validate(ctx, issued.Token); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound once settled, got %v", err)
		}
	})
}

func TestRedisUnavailableFailsClosed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	store, _ := newStoreTest(NewRedisBackend(rdb, "gk", 0), time.Hour, 5)
	ctx := context.Background()

	issued, err := store.Create(ctx, "u-1", permission.RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.Close()
	if _, err := store.Validate(ctx, issued.Token); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := store.Create(ctx, "u-1", permission.RoleAdmin); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable on create, got %v", err)
	}
}

func TestValidateHonorsCanceledContext(t *testing.T) {
	store, _ := newStoreTest(NewMemoryBackend(), time.Hour, 5)
	issued, err := store.Create(context.Background(), "u-1", permission.RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Validate(ctx, issued.Token)
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected storage error wrapping context.Canceled, got %v", err)
	}
}
