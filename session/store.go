package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
)

var (
	// ErrMalformedToken is returned when a token fails the format check.
	ErrMalformedToken = errors.New("malformed session token")
	// ErrNotFound is returned when no session matches the token.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned the first time an expired session is presented.
	// The session is deleted before the error is returned.
	ErrExpired = errors.New("session expired")
	// ErrStorageUnavailable wraps backend failures and timeouts.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

const (
	// DefaultTTL is the session lifetime used when Config.TTL is zero.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxPerUser is the concurrent-session cap used when Config.MaxPerUser is zero.
	DefaultMaxPerUser = 5
)

// Config controls session lifetime and the per-user cap.
type Config struct {
	TTL        time.Duration
	MaxPerUser int
}

// Option customizes a [Store].
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the entropy source used for tokens, ids and CSRF secrets.
func WithRandom(r io.Reader) Option {
	return func(s *Store) {
		if r != nil {
			s.random = r
		}
	}
}

// Store applies session policy on top of a [Backend]. It is safe for
// concurrent use and holds no mutable state of its own.
type Store struct {
	backend    Backend
	ttl        time.Duration
	maxPerUser int
	now        func() time.Time
	random     io.Reader
}

// NewStore creates a [Store] over backend.
func NewStore(backend Backend, cfg Config, opts ...Option) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultMaxPerUser
	}
	s := &Store{
		backend:    backend,
		ttl:        cfg.TTL,
		maxPerUser: cfg.MaxPerUser,
		now:        time.Now,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the storage backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) clock() time.Time {
	return time.UnixMilli(s.now().UnixMilli())
}

// Create issues a new session for userID with a snapshot of role. When the
// user already holds the maximum number of sessions the oldest are evicted
// in the same atomic step.
//
//	Performance: 1 backend round-trip.
func (s *Store) Create(ctx context.Context, userID string, role permission.Role) (*Issued, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("session: %w", permission.ErrUnknownRole)
	}

	token, err := newToken(s.random)
	if err != nil {
		return nil, err
	}
	id, err := newSessionID(s.random)
	if err != nil {
		return nil, err
	}
	secret, err := newCSRFSecret(s.random)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sess := &Session{
		ID:             id,
		TokenHash:      HashToken(token),
		UserID:         userID,
		Role:           role,
		CSRFSecret:     secret,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastAccessedAt: now,
	}

	evicted, err := s.backend.Insert(ctx, sess, s.maxPerUser, now)
	if err != nil {
		return nil, storageError(err)
	}
	return &Issued{Session: sess, Token: token, Evicted: evicted}, nil
}

// Validate resolves token to its session context and refreshes
// LastAccessedAt. An expired session is deleted and reported as
// [ErrExpired]; afterwards the same token yields [ErrNotFound].
//
//	Performance: 1 backend round-trip.
func (s *Store) Validate(ctx context.Context, token string) (Context, error) {
	if token == "" || !WellFormed(token) {
		return Context{}, ErrMalformedToken
	}
	hash := HashToken(token)

	sess, status, err := s.backend.Lookup(ctx, hash, s.clock())
	if err != nil {
		return Context{}, storageError(err)
	}

	switch status {
	case StatusExpired:
		return Context{}, ErrExpired
	case StatusActive:
		if sess == nil || subtle.ConstantTimeCompare(sess.TokenHash[:], hash[:]) != 1 {
			return Context{}, ErrNotFound
		}
		return sess.Context(), nil
	default:
		return Context{}, ErrNotFound
	}
}

// Invalidate deletes the session for token. Unknown and malformed tokens
// are not an error.
func (s *Store) Invalidate(ctx context.Context, token string) error {
	if !WellFormed(token) {
		return nil
	}
	if err := s.backend.Delete(ctx, HashToken(token)); err != nil {
		return storageError(err)
	}
	return nil
}

// InvalidateUser deletes every session owned by userID and returns how
// many were removed.
func (s *Store) InvalidateUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	n, err := s.backend.DeleteUser(ctx, userID)
	if err != nil {
		return 0, storageError(err)
	}
	return n, nil
}

// SweepExpired deletes every expired session and returns the count.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.backend.DeleteExpired(ctx, s.clock())
	if err != nil {
		return n, storageError(err)
	}
	return n, nil
}

// ActiveSessions lists the user's live sessions, oldest first. CSRF
// secrets are cleared from the returned copies.
func (s *Store) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	list, err := s.backend.List(ctx, userID, s.clock())
	if err != nil {
		return nil, storageError(err)
	}
	out := make([]Session, 0, len(list))
	for _, sess := range list {
		c := *sess
		c.CSRFSecret = [32]byte{}
		out = append(out, c)
	}
	return out, nil
}

func storageError(err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
