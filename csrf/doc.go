// Package csrf derives and verifies the per-session anti-forgery token.
//
// The token is HMAC-SHA256(csrf_secret, label || session_id), encoded as
// base64url. It is static for the lifetime of a session and changes only
// when a new session is created, so clients can cache it. Nothing is
// stored: verification re-derives the expected value.
package csrf
