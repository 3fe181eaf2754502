package authz

import (
	"fmt"
	"sort"
	"strings"
)

// RoleDefinition is a named bundle of permission codes.
type RoleDefinition struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// Registry maps role names to their permission lists. It is immutable
// after construction and shared freely across requests.
type Registry struct {
	roles map[string]RoleDefinition
}

// NewRegistry validates every role and permission code and builds an
// immutable registry. Invalid codes are a construction-time error, never
// a runtime surprise.
func NewRegistry(roles []RoleDefinition) (*Registry, error) {
	m := make(map[string]RoleDefinition, len(roles))
	for _, role := range roles {
		name := strings.TrimSpace(strings.ToLower(role.Name))
		if name == "" {
			return nil, fmt.Errorf("role name is required")
		}
		if _, ok := m[name]; ok {
			return nil, fmt.Errorf("duplicate role %q", name)
		}
		for _, code := range role.Permissions {
			if !ValidCode(code) {
				return nil, fmt.Errorf("role %q: invalid permission code %q", name, code)
			}
		}
		role.Name = name
		role.Permissions = append([]string(nil), role.Permissions...)
		m[name] = role
	}
	return &Registry{roles: m}, nil
}

// Permissions returns the codes granted to a role, or nil for unknown roles.
func (r *Registry) Permissions(role string) []string {
	def, ok := r.roles[strings.TrimSpace(strings.ToLower(role))]
	if !ok {
		return nil
	}
	out := make([]string, len(def.Permissions))
	copy(out, def.Permissions)
	return out
}

// Role returns the full definition for a role name.
func (r *Registry) Role(name string) (RoleDefinition, bool) {
	def, ok := r.roles[strings.TrimSpace(strings.ToLower(name))]
	return def, ok
}

// Roles lists the registered definitions sorted by name.
func (r *Registry) Roles() []RoleDefinition {
	out := make([]RoleDefinition, 0, len(r.roles))
	for _, def := range r.roles {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRoles returns the statically configured role catalogue.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        "admin",
			DisplayName: "Administrator",
			Description: "Full access to every capability.",
			Permissions: []string{Wildcard},
		},
		{
			Name:        "manager",
			DisplayName: "Manager",
			Description: "Manages users and reviews activity.",
			Permissions: []string{
				PermUsersRead, PermUsersCreate, PermUsersUpdate,
				PermRolesRead, PermAuditRead,
			},
		},
		{
			Name:        "user",
			DisplayName: "Member",
			Description: "Works with their own profile and settings.",
			Permissions: []string{
				PermProfileRead, PermProfileWrite,
				PermSettingsRead, PermSettingsUpdate,
				PermWorkspacesRead,
			},
		},
	}
}
