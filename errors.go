package gatekeeper

import (
	"errors"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/csrf"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/MrEthical07/gatekeeper/session"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong secrets.
	ErrInvalidCredentials = credential.ErrInvalidCredentials
	// ErrMissingToken is returned when a request carries no session token.
	ErrMissingToken = errors.New("missing session token")
	// ErrMalformedToken is returned when a token fails the format check.
	ErrMalformedToken = session.ErrMalformedToken
	// ErrSessionNotFound is returned for unknown, revoked or already purged tokens.
	ErrSessionNotFound = session.ErrNotFound
	// ErrSessionExpired is returned once for an expired session, which is then deleted.
	ErrSessionExpired = session.ErrExpired
	// ErrForbidden matches every [ForbiddenError].
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFMismatch is returned when a mutating request carries a missing or wrong CSRF token.
	ErrCSRFMismatch = csrf.ErrMismatch
	// ErrStorageUnavailable is returned when the session backend fails or times out.
	ErrStorageUnavailable = session.ErrStorageUnavailable
	// ErrSelfRoleChange is returned when an actor tries to change their own role.
	ErrSelfRoleChange = errors.New("cannot change own role")
	// ErrRoleChangeUnsupported is returned when the user directory cannot update roles.
	ErrRoleChangeUnsupported = errors.New("user directory does not support role changes")
	// ErrOperatorRequired is returned by [Engine.AssignRole] without an operator name.
	ErrOperatorRequired = errors.New("operator required")
	// ErrLoginThrottled is returned when an identifier or client IP has
	// used up its login attempt budget. Credentials are not checked.
	ErrLoginThrottled = errors.New("too many failed login attempts")
	// ErrEngineClosed is returned by operations after [Engine.Close].
	ErrEngineClosed = errors.New("engine closed")
)

// ForbiddenError carries what was missing. Its Error text is deliberately
// generic; the details are for audit and logs.
type ForbiddenError struct {
	Permission   string
	RequiredRole permission.Role
	Reason       string
}

func (e *ForbiddenError) Error() string { return "forbidden" }

// Is reports whether target is [ErrForbidden].
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Outcome is the client-facing class of a gate result.
type Outcome uint8

const (
	OutcomeAllowed Outcome = iota
	OutcomeUnauthenticated
	OutcomeForbidden
	OutcomeServerError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	}
	return "internal error"
}

// GateError is returned by [Engine.Authorize] for every denied request.
type GateError struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func (e *GateError) Error() string { return e.Outcome.String() }

func (e *GateError) Unwrap() error { return e.Err }

// IsAuthenticationError reports whether err means the caller is not
// (or no longer) authenticated.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrLoginThrottled) ||
		errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired)
}

// IsAuthorizationError reports whether err means the caller is
// authenticated but the request is not permitted.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrCSRFMismatch)
}

// IsStorageError reports whether err came from the session backend.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Audit reason codes.
const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonLoginThrottled     = "login_throttled"
	reasonMissingToken       = "missing_token"
	reasonMalformedToken     = "malformed_token"
	reasonSessionNotFound    = "session_not_found"
	reasonSessionExpired     = "session_expired"
	reasonCSRFMismatch       = "csrf_mismatch"
	reasonStorageUnavailable = "storage_unavailable"
	reasonSelfRoleChange     = "self_role_change"
	reasonInternal           = "internal_error"
)

func reasonCode(err error) string {
	var forbidden *ForbiddenError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &forbidden):
		return forbidden.Reason
	case errors.Is(err, ErrInvalidCredentials):
		return reasonInvalidCredentials
	case errors.Is(err, ErrLoginThrottled):
		return reasonLoginThrottled
	case errors.Is(err, ErrMissingToken):
		return reasonMissingToken
	case errors.Is(err, ErrMalformedToken):
		return reasonMalformedToken
	case errors.Is(err, ErrSessionExpired):
		return reasonSessionExpired
	case errors.Is(err, ErrSessionNotFound):
		return reasonSessionNotFound
	case errors.Is(err, ErrCSRFMismatch):
		return reasonCSRFMismatch
	case errors.Is(err, ErrStorageUnavailable):
		return reasonStorageUnavailable
	case errors.Is(err, ErrSelfRoleChange):
		return reasonSelfRoleChange
	}
	return reasonInternal
}
