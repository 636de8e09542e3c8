// Package rate throttles repeated failed logins with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under the configured prefix:
//   - <prefix>:u:<identifier>: failures per login identifier
//   - <prefix>:ip:<address>  : failures per client IP (optional)
//
// Identifiers are lower-cased and trimmed before keying, matching how the
// user directory resolves them.
package rate
