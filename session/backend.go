package session

import (
	"context"
	"time"
)

// Status is the outcome of a [Backend.Lookup].
type Status uint8

const (
	StatusNotFound Status = iota
	StatusActive
	StatusExpired
)

// Backend is the storage contract behind [Store]. Every method must be a
// single atomic operation with respect to concurrent callers.
type Backend interface {
	// Insert removes the user's expired sessions, evicts the user's oldest
	// sessions (creation order) until fewer than maxPerUser remain, and
	// stores s. It returns how many live sessions were evicted.
	Insert(ctx context.Context, s *Session, maxPerUser int, now time.Time) (int, error)

	// Lookup finds the session for tokenHash. An expired session is deleted
	// and reported as StatusExpired; an active one has LastAccessedAt set to
	// now and is returned.
	Lookup(ctx context.Context, tokenHash [32]byte, now time.Time) (*Session, Status, error)

	// Delete removes the session for tokenHash if it exists.
	Delete(ctx context.Context, tokenHash [32]byte) error

	// DeleteUser removes every session owned by userID.
	DeleteUser(ctx context.Context, userID string) (int, error)

	// DeleteExpired removes every session with ExpiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// List returns the user's unexpired sessions, oldest first.
	List(ctx context.Context, userID string, now time.Time) ([]*Session, error)
}
