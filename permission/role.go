package permission

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned by [ParseRole] for names outside the role enum.
var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of back-office roles. The zero value is not a
// valid role and is denied everything.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleInstructor
	RoleTrainer
	RoleAdmin
)

// Roles lists the valid roles from least to most privileged. The order is
// used to report the minimum role that would satisfy a denied request.
var Roles = []Role{RoleInstructor, RoleTrainer, RoleAdmin}

// ParseRole parses a role name case-insensitively.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin":
		return RoleAdmin, nil
	case "trainer":
		return RoleTrainer, nil
	case "instructor":
		return RoleInstructor, nil
	}
	return RoleUnknown, ErrUnknownRole
}

// Valid reports whether r is one of the enum members.
func (r Role) Valid() bool {
	return r >= RoleInstructor && r <= RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTrainer:
		return "trainer"
	case RoleInstructor:
		return "instructor"
	}
	return "unknown"
}
