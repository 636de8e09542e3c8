// Package permission implements the role-based authorization engine: a closed
// role enum, a registry that assigns each (resource, action) permission a bit,
// and a per-role bitmask matrix evaluated by [Authorizer.Decide].
//
// # Default deny
//
// A permission that is not registered, a role outside the enum, and a grant
// that is absent from the role's masks all evaluate to allowed=false. Admin
// holds the reserved root bit and therefore every registered permission, but
// never an unregistered one.
//
// # Ownership
//
// Grants with [ScopeOwn] only apply when the caller asserts that the
// authenticated user owns the target row. The engine never derives ownership
// itself.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import gatekeeper, session, or csrf.
//   - Change masks after the [Authorizer] is constructed.
package permission
