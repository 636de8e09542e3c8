package session

import (
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
)

// Session is one stored login session. The client-facing token is not part
// of the record; only its SHA-256 hash is kept.
type Session struct {
	ID        string
	TokenHash [32]byte
	UserID    string

	// Role is a snapshot taken at creation and never changes afterwards.
	Role permission.Role

	CSRFSecret [32]byte

	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

// Expired reports whether s is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Context is what a successful validation hands to request handlers.
type Context struct {
	SessionID  string
	UserID     string
	Role       permission.Role
	CSRFSecret [32]byte
	ExpiresAt  time.Time
}

// Issued is the result of [Store.Create]. Token is the only copy of the
// client credential and must be delivered to the client, never stored.
type Issued struct {
	Session *Session
	Token   string
	Evicted int
}

// Context returns the request-facing view of s.
func (s *Session) Context() Context {
	return Context{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Role:       s.Role,
		CSRFSecret: s.CSRFSecret,
		ExpiresAt:  s.ExpiresAt,
	}
}
