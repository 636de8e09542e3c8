package gatekeeper

import (
	"context"

	"github.com/MrEthical07/gatekeeper/session"
)

type clientIPContextKey struct{}
type sessionContextKey struct{}

// SessionContext is the authenticated caller handed to domain handlers.
type SessionContext = session.Context

// WithClientIP attaches the caller's IP address to ctx. The engine copies
// it into audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// WithSessionContext stores an authenticated session in ctx.
func WithSessionContext(ctx context.Context, sc SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sc)
}

// SessionFromContext returns the session stored by [WithSessionContext].
func SessionFromContext(ctx context.Context) (SessionContext, bool) {
	if ctx == nil {
		return SessionContext{}, false
	}

	sc, ok := ctx.Value(sessionContextKey{}).(SessionContext)
	return sc, ok
}
