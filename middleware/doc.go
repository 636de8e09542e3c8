// Package middleware adapts the gatekeeper request gate to net/http.
//
// # Guards
//
//   - [Guard]: fixed (resource, action) for a route.
//   - [Require]: action derived from the HTTP method (safe methods read,
//     everything else writes).
//
// Each guard reads the session cookie, takes the CSRF token from the
// configured header (or the hidden form field for form posts), calls
// Engine.Authorize and stores the session in the request context.
//
// # Client responses
//
// Failures never reveal why the request was refused:
//
//   - unauthenticated: 401, or 303 to the login page for browser requests
//   - forbidden (including CSRF mismatch): 403 "not permitted"
//   - storage failure: 500 "internal error"
//
// The domain handler is not invoked on any failure.
package middleware
