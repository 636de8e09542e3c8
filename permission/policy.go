package permission

import (
	"errors"
	"fmt"
)

// Actions understood by the default policy.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Resources governed by the default policy.
const (
	ResourceUser      = "user"
	ResourceCompany   = "company"
	ResourceStudent   = "student"
	ResourceMaterial  = "material"
	ResourceTraining  = "training"
	ResourceProject   = "project"
	ResourceInterview = "interview"
	ResourceMeeting   = "meeting"
	ResourceProfile   = "profile"
	ResourceSession   = "session"
	ResourceSystem    = "system"
)

// Scope limits a grant to every row or only rows owned by the caller.
type Scope uint8

const (
	ScopeAll Scope = iota + 1
	ScopeOwn
)

// Grant gives a role one permission at a scope.
type Grant struct {
	Role     Role
	Resource string
	Action   string
	Scope    Scope
}

// Policy is the static permission matrix. Every resource is registered with
// every action; only the listed grants (plus admin's root bit) allow access.
type Policy struct {
	Resources []string
	Actions   []string
	Grants    []Grant
}

// DefaultPolicy returns the back-office permission matrix.
func DefaultPolicy() Policy {
	p := Policy{
		Resources: []string{
			ResourceUser, ResourceCompany, ResourceStudent, ResourceMaterial,
			ResourceTraining, ResourceProject, ResourceInterview, ResourceMeeting,
			ResourceProfile, ResourceSession, ResourceSystem,
		},
		Actions: []string{ActionRead, ActionWrite},
	}

	for _, res := range []string{ResourceMaterial, ResourceTraining, ResourceStudent, ResourceProject, ResourceInterview} {
		p.Grants = append(p.Grants,
			Grant{Role: RoleTrainer, Resource: res, Action: ActionRead, Scope: ScopeAll},
			Grant{Role: RoleTrainer, Resource: res, Action: ActionWrite, Scope: ScopeAll},
		)
	}
	for _, res := range []string{ResourceUser, ResourceCompany, ResourceMeeting} {
		p.Grants = append(p.Grants, Grant{Role: RoleTrainer, Resource: res, Action: ActionRead, Scope: ScopeAll})
	}

	p.Grants = append(p.Grants,
		Grant{Role: RoleTrainer, Resource: ResourceProfile, Action: ActionRead, Scope: ScopeOwn},
		Grant{Role: RoleTrainer, Resource: ResourceProfile, Action: ActionWrite, Scope: ScopeOwn},

		Grant{Role: RoleInstructor, Resource: ResourceMaterial, Action: ActionRead, Scope: ScopeAll},
		Grant{Role: RoleInstructor, Resource: ResourceTraining, Action: ActionRead, Scope: ScopeAll},
		Grant{Role: RoleInstructor, Resource: ResourceInterview, Action: ActionRead, Scope: ScopeOwn},
		Grant{Role: RoleInstructor, Resource: ResourceInterview, Action: ActionWrite, Scope: ScopeOwn},
		Grant{Role: RoleInstructor, Resource: ResourceProfile, Action: ActionRead, Scope: ScopeOwn},
		Grant{Role: RoleInstructor, Resource: ResourceProfile, Action: ActionWrite, Scope: ScopeOwn},
	)
	for _, role := range []Role{RoleTrainer, RoleInstructor} {
		p.Grants = append(p.Grants,
			Grant{Role: role, Resource: ResourceSession, Action: ActionRead, Scope: ScopeOwn},
			Grant{Role: role, Resource: ResourceSession, Action: ActionWrite, Scope: ScopeOwn},
		)
	}
	return p
}

type roleMasks struct {
	all Mask
	own Mask
}

func (p Policy) compile() (*Registry, map[Role]roleMasks, error) {
	if len(p.Resources) == 0 || len(p.Actions) == 0 {
		return nil, nil, errors.New("policy must define resources and actions")
	}

	reg := NewRegistry()
	for _, res := range p.Resources {
		for _, act := range p.Actions {
			if res == "" || act == "" {
				return nil, nil, errors.New("policy resource and action names cannot be empty")
			}
			if _, err := reg.Register(Name(res, act)); err != nil {
				return nil, nil, err
			}
		}
	}
	reg.Freeze()

	masks := map[Role]roleMasks{
		RoleAdmin: {all: Mask(0).Set(rootBit)},
	}
	for _, g := range p.Grants {
		if !g.Role.Valid() {
			return nil, nil, fmt.Errorf("grant for invalid role %d", g.Role)
		}
		bit, ok := reg.Bit(Name(g.Resource, g.Action))
		if !ok {
			return nil, nil, fmt.Errorf("grant references unregistered permission %q", Name(g.Resource, g.Action))
		}
		m := masks[g.Role]
		switch g.Scope {
		case ScopeAll:
			m.all = m.all.Set(bit)
		case ScopeOwn:
			m.own = m.own.Set(bit)
		default:
			return nil, nil, fmt.Errorf("grant %q has invalid scope", Name(g.Resource, g.Action))
		}
		masks[g.Role] = m
	}
	return reg, masks, nil
}
