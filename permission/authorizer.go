package permission

// Decision reasons. They are safe to record in audit events and are never
// shown to clients.
const (
	ReasonGranted           = "granted"
	ReasonGrantedOwn        = "granted_own"
	ReasonUnknownRole       = "unknown_role"
	ReasonUnknownPermission = "unknown_permission"
	ReasonOwnershipRequired = "ownership_required"
	ReasonInsufficientRole  = "insufficient_role"
)

// Decision is the outcome of one authorization check.
//
// RequiredRole is RoleUnknown when the request was allowed; otherwise it names
// the least privileged role whose grant would have allowed the request.
type Decision struct {
	Allowed      bool
	Permission   string
	RequiredRole Role
	Reason       string
}

// Authorizer evaluates (role, resource, action, owned) against a compiled
// [Policy]. It is immutable and safe for concurrent use.
type Authorizer struct {
	registry *Registry
	masks    map[Role]roleMasks
}

// NewAuthorizer compiles policy into per-role bitmasks.
func NewAuthorizer(policy Policy) (*Authorizer, error) {
	reg, masks, err := policy.compile()
	if err != nil {
		return nil, err
	}
	return &Authorizer{registry: reg, masks: masks}, nil
}

// Registry exposes the frozen permission registry.
func (a *Authorizer) Registry() *Registry {
	return a.registry
}

// Decide is a pure function of its inputs. owned must be true only when the
// caller has verified that the authenticated user owns the target row.
func (a *Authorizer) Decide(role Role, resource, action string, owned bool) Decision {
	perm := Name(resource, action)
	d := Decision{Permission: perm}

	bit, ok := a.registry.Bit(perm)
	if !ok {
		d.Reason = ReasonUnknownPermission
		d.RequiredRole = RoleAdmin
		return d
	}

	if !role.Valid() {
		d.Reason = ReasonUnknownRole
		d.RequiredRole = a.minimumRole(bit)
		return d
	}

	m := a.masks[role]
	if m.all.Has(bit) {
		d.Allowed = true
		d.Reason = ReasonGranted
		return d
	}
	if m.own.Has(bit) {
		if owned {
			d.Allowed = true
			d.Reason = ReasonGrantedOwn
			return d
		}
		d.Reason = ReasonOwnershipRequired
		d.RequiredRole = a.minimumRole(bit)
		return d
	}

	d.Reason = ReasonInsufficientRole
	d.RequiredRole = a.minimumRole(bit)
	return d
}

// Allowed is shorthand for Decide(...).Allowed.
func (a *Authorizer) Allowed(role Role, resource, action string, owned bool) bool {
	return a.Decide(role, resource, action, owned).Allowed
}

// minimumRole returns the least privileged role holding bit at every scope.
// Admin holds the root bit, so the search always terminates.
func (a *Authorizer) minimumRole(bit int) Role {
	for _, r := range Roles {
		if a.masks[r].all.Has(bit) {
			return r
		}
	}
	return RoleAdmin
}
