package model

import "fmt"

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleUser       Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleUser:
		return true
	}
	return false
}

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is the authenticated caller. Users are owned by an external identity
// service; the API only ever sees what is carried in the access token.
type Actor struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}
