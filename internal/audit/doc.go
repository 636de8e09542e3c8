// Package audit relays authentication and authorization events to a
// caller-supplied sink without ever blocking the request that produced them.
//
// # Components
//
//   - [Event]: one decision record (actor, action, resource, decision, reason).
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered async relay that drops events when full.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the engine does that.
//   - Let a slow or failing sink delay or fail an authorization decision.
//   - Import gatekeeper or any sibling internal package.
package audit
