package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/csrf"
	"github.com/MrEthical07/gatekeeper/permission"
)

type options struct {
	loginURL string
	ownerID  func(*http.Request) string
	self     bool
}

// Option customizes a guard.
type Option func(*options)

// WithLoginRedirect sends unauthenticated browser requests to url with
// 303 See Other instead of answering 401.
func WithLoginRedirect(url string) Option {
	return func(o *options) { o.loginURL = url }
}

// WithOwner extracts the owning user of the target row so "own" grants can
// apply. fn runs before authorization and must not trust the session.
func WithOwner(fn func(*http.Request) string) Option {
	return func(o *options) { o.ownerID = fn }
}

// WithSelf marks routes whose target is always the caller's own record
// (their sessions, their profile), so "own" grants apply.
func WithSelf() Option {
	return func(o *options) { o.self = true }
}

// Guard protects a route with a fixed (resource, action).
func Guard(engine *gatekeeper.Engine, resource, action string, opts ...Option) func(http.Handler) http.Handler {
	return guard(engine, resource, func(*http.Request) string { return action }, opts)
}

// Require protects a route on resource; GET, HEAD, OPTIONS and TRACE need
// read access, every other method write access.
func Require(engine *gatekeeper.Engine, resource string, opts ...Option) func(http.Handler) http.Handler {
	return guard(engine, resource, func(r *http.Request) string {
		if csrf.Mutating(r.Method) {
			return permission.ActionWrite
		}
		return permission.ActionRead
	}, opts)
}

func guard(engine *gatekeeper.Engine, resource string, action func(*http.Request) string, opts []Option) func(http.Handler) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := gatekeeper.WithClientIP(r.Context(), ClientIP(r))
			cfg := engine.Config()

			req := gatekeeper.GateRequest{
				Token:    engine.SessionToken(r),
				Mutating: csrf.Mutating(r.Method),
				Resource: resource,
				Action:   action(r),
			}
			if req.Mutating {
				req.CSRFToken = csrfToken(r, cfg.CSRF)
			}
			req.Owned = o.self
			if o.ownerID != nil {
				req.OwnerID = o.ownerID(r)
			}

			sc, err := engine.Authorize(ctx, req)
			if err != nil {
				writeDenied(w, r, err, o.loginURL)
				return
			}

			next.ServeHTTP(w, r.WithContext(gatekeeper.WithSessionContext(ctx, sc)))
		})
	}
}

func csrfToken(r *http.Request, cfg gatekeeper.CSRFConfig) string {
	if v := r.Header.Get(cfg.HeaderName); v != "" {
		return v
	}
	if cfg.FormField == "" {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return r.PostFormValue(cfg.FormField)
	}
	return ""
}

func writeDenied(w http.ResponseWriter, r *http.Request, err error, loginURL string) {
	outcome := gatekeeper.OutcomeServerError
	var ge *gatekeeper.GateError
	if errors.As(err, &ge) {
		outcome = ge.Outcome
	}

	switch outcome {
	case gatekeeper.OutcomeUnauthenticated:
		if loginURL != "" && wantsHTML(r) {
			http.Redirect(w, r, loginURL, http.StatusSeeOther)
			return
		}
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	case gatekeeper.OutcomeForbidden:
		http.Error(w, "not permitted", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
