package auth

import "strings"

// UserRole is the role carried by a principal
type UserRole string

const (
	RoleUser  UserRole = "ROLE_USER"
	RoleAdmin UserRole = "ROLE_ADMIN"
)

// IsValid checks if the role is one of the predefined roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r UserRole) String() string {
	return string(r)
}

// ParseRole maps a stored role to a known role, falling back to RoleUser
func ParseRole(s string) UserRole {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleUser
}
