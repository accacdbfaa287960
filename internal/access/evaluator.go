// Package access decides what an actor may do with a document. It performs no
// I/O and holds no state.
package access

import "doclocker/internal/model"

// Operation is an action on a document.
type Operation string

const (
	OpView       Operation = "view"
	OpEdit       Operation = "edit"
	OpDelete     Operation = "delete"
	OpAddVersion Operation = "addVersion"
)

// Resource is the subset of a document that authorization depends on.
type Resource struct {
	CreatedBy   string
	Department  string
	AccessRoles []model.Role
}

// ResourceOf extracts the authorization-relevant fields of d.
func ResourceOf(d *model.Document) Resource {
	return Resource{
		CreatedBy:   d.CreatedBy,
		Department:  d.Department,
		AccessRoles: d.AccessRoles,
	}
}

// Rank orders roles; unknown roles rank 0.
func Rank(r model.Role) int {
	switch r {
	case model.RoleAdmin:
		return 3
	case model.RoleSupervisor:
		return 2
	case model.RoleUser:
		return 1
	}
	return 0
}

// HasPermission reports whether role is at least as privileged as required.
func HasPermission(role, required model.Role) bool {
	return Rank(role) > 0 && Rank(role) >= Rank(required)
}

// Can reports whether actor may perform op on res.
func Can(actor model.Actor, res Resource, op Operation) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleSupervisor:
		if res.Department == actor.Department || res.CreatedBy == actor.ID {
			return true
		}
		return op == OpView && hasRole(res.AccessRoles, model.RoleSupervisor)
	case model.RoleUser:
		if op != OpView {
			return false
		}
		return res.CreatedBy == actor.ID || hasRole(res.AccessRoles, model.RoleUser)
	}
	return false
}

// Scope is the visibility predicate for list queries, expressed as data so a
// repository can compile it to SQL. A zero Scope with All set matches every
// document; otherwise a document is visible when any non-empty clause matches.
type Scope struct {
	All        bool
	None       bool
	OwnerID    string
	Department string
	AnyRole    model.Role
}

// ScopeFor returns the rows actor may view. It mirrors Can(actor, _, OpView).
func ScopeFor(actor model.Actor) Scope {
	switch actor.Role {
	case model.RoleAdmin:
		return Scope{All: true}
	case model.RoleSupervisor:
		return Scope{OwnerID: actor.ID, Department: actor.Department, AnyRole: model.RoleSupervisor}
	case model.RoleUser:
		return Scope{OwnerID: actor.ID, AnyRole: model.RoleUser}
	}
	return Scope{None: true}
}

// Matches evaluates the scope in memory.
func (s Scope) Matches(res Resource) bool {
	switch {
	case s.All:
		return true
	case s.None:
		return false
	}
	if s.OwnerID != "" && res.CreatedBy == s.OwnerID {
		return true
	}
	if s.Department != "" && res.Department == s.Department {
		return true
	}
	return s.AnyRole != "" && hasRole(res.AccessRoles, s.AnyRole)
}

func hasRole(roles []model.Role, r model.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
