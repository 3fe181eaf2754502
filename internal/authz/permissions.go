// Package authz implements the permission registry and the role-based
// access evaluator. Permission codes are lowercase "category:action"
// strings; a grant may carry the category wildcard "category:*" or the
// global wildcard "*".
package authz

import "strings"

// Wildcard is the global grant matching every permission code.
const Wildcard = "*"

// Builtin permission codes. The catalogue is closed at compile time;
// dynamic role storage may reference these but cannot invent new grammar.
const (
	PermProfileRead  = "profile:read"
	PermProfileWrite = "profile:update"

	PermUsersRead   = "users:read"
	PermUsersCreate = "users:create"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"

	PermRolesRead   = "roles:read"
	PermRolesManage = "roles:manage"

	PermWorkspacesRead   = "workspaces:read"
	PermWorkspacesManage = "workspaces:manage"

	PermSettingsRead   = "settings:read"
	PermSettingsUpdate = "settings:update"

	PermAuditRead = "audit:read"
)

// ValidCode reports whether code matches the permission grammar:
// "category:action", "category:*", or the global "*". Both segments are
// lowercase and non-empty.
func ValidCode(code string) bool {
	if code == Wildcard {
		return true
	}
	category, action, ok := strings.Cut(code, ":")
	if !ok || category == "" || action == "" {
		return false
	}
	if strings.Contains(action, ":") {
		return false
	}
	for _, seg := range []string{category, action} {
		if seg == Wildcard {
			continue
		}
		for _, r := range seg {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
				return false
			}
		}
	}
	// "*:action" is not part of the grammar.
	return category != Wildcard
}

// Matches reports whether a single grant satisfies a required code.
// Wildcards flow only from the grant side: a caller holding "users:read"
// never satisfies a requirement of "users:*" or "*".
func Matches(granted, required string) bool {
	if granted == Wildcard {
		return true
	}
	if granted == required {
		return true
	}
	if category, ok := strings.CutSuffix(granted, ":*"); ok {
		reqCategory, _, found := strings.Cut(required, ":")
		return found && reqCategory == category
	}
	return false
}

// HasPermission tests a required code against a grant list, succeeding on
// the first match.
func HasPermission(granted []string, required string) bool {
	for _, g := range granted {
		if Matches(g, required) {
			return true
		}
	}
	return false
}
