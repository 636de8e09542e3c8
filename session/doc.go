// Package session owns the lifecycle of server-side login sessions: creation
// with a per-user concurrency cap, validation with lazy expiry, explicit
// invalidation, and active sweeping of expired records.
//
// # Architecture boundaries
//
// [Store] holds the policy (TTL, cap, token format, clock) and delegates every
// mutation to a [Backend]. Each Backend method is one atomic step against the
// shared storage: a Lua script for [RedisBackend], a single transaction for
// [SQLBackend], and a mutex-guarded section for [MemoryBackend].
//
// # Tokens
//
// Clients receive a 256-bit random token. Backends index sessions by the
// SHA-256 of that token, so a storage dump never contains a usable token.
// Tokens are never logged and never appear in error text.
//
// # What this package must NOT do
//
//   - Make authorization decisions or verify CSRF tokens.
//   - Return a session whose expiry has passed.
//   - Treat deletion of a missing session as an error.
package session
