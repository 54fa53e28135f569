package domain

import dErrors "mobirides/pkg/domain-errors"

// Role is the marketplace role a verification record is opened for.
type Role string

const (
	RoleRenter     Role = "renter"
	RoleHost       Role = "host"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var validRoles = map[Role]bool{
	RoleRenter:     true,
	RoleHost:       true,
	RoleAdmin:      true,
	RoleSuperAdmin: true,
}

// ParseRole validates a role string at trust boundaries.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsAdmin reports whether the role may act in the back office.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanVerify reports whether the role goes through identity verification.
// Admins are provisioned out of band and never open a verification record.
func (r Role) CanVerify() bool {
	return r == RoleRenter || r == RoleHost
}

func (r Role) String() string {
	return string(r)
}
