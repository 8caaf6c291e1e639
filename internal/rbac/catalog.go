package rbac

import (
	"regexp"
	"strings"
)

// System roles. They can never be deleted or renamed.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCustomer = "customer"
)

// Core platform permissions.
const (
	PermManageUsers          = "manage:users"
	PermViewUsers            = "view:users"
	PermManageRoles          = "manage:roles"
	PermViewRoles            = "view:roles"
	PermManagePermissions    = "manage:permissions"
	PermViewPermissions      = "view:permissions"
	PermViewAnalytics        = "view:analytics"
	PermViewAuditLogs        = "view:audit_logs"
	PermManageEmailTemplates = "manage:email_templates"
	PermViewDashboard        = "view:dashboard"
	PermViewProfile          = "view:profile"
	PermEditProfile          = "edit:profile"
)

var (
	tokenPattern    = regexp.MustCompile(`^[a-z_]+$`)
	roleNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// Derive returns the canonical permission name for an action on a resource.
func Derive(action, resource string) string {
	return action + ":" + resource
}

// ParsePermission splits a canonical name into its action and resource.
func ParsePermission(name string) (action, resource string, ok bool) {
	action, resource, found := strings.Cut(name, ":")
	if !found || !ValidToken(action) || !ValidToken(resource) {
		return "", "", false
	}
	return action, resource, true
}

// ValidToken reports whether s is a valid resource or action token.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// ValidRoleName reports whether name uses the custom role charset.
func ValidRoleName(name string) bool {
	return roleNamePattern.MatchString(name)
}

// IsSystemRole reports whether name is a system role. Matching is case-sensitive.
func IsSystemRole(name string) bool {
	switch name {
	case RoleAdmin, RoleManager, RoleCustomer:
		return true
	}
	return false
}

// SystemRoles lists the system role names.
func SystemRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleCustomer}
}

// Catalog returns the static permission directory.
func Catalog() []Permission {
	entries := []struct {
		action, resource, description string
	}{
		{"manage", "users", "Create, update, delete users and their roles"},
		{"view", "users", "List and inspect users"},
		{"manage", "roles", "Create, update, delete roles"},
		{"view", "roles", "List and inspect roles"},
		{"manage", "permissions", "Create permissions and attach them to roles"},
		{"view", "permissions", "List permissions"},
		{"view", "analytics", "Open analytics dashboards"},
		{"view", "audit_logs", "Read the audit log"},
		{"manage", "email_templates", "Edit transactional email templates"},
		{"view", "dashboard", "Open the dashboard"},
		{"view", "profile", "Read own profile"},
		{"edit", "profile", "Edit own profile"},
	}
	perms := make([]Permission, 0, len(entries))
	for _, e := range entries {
		perms = append(perms, Permission{
			Name:        Derive(e.action, e.resource),
			Resource:    e.resource,
			Action:      e.action,
			Description: e.description,
		})
	}
	return perms
}

// DefaultGrants maps each system role to the catalog permissions it starts with.
func DefaultGrants() map[string][]string {
	all := make([]string, 0, len(Catalog()))
	for _, p := range Catalog() {
		all = append(all, p.Name)
	}
	return map[string][]string{
		RoleAdmin: all,
		RoleManager: {
			PermViewUsers,
			PermViewRoles,
			PermViewPermissions,
			PermViewAnalytics,
			PermViewAuditLogs,
			PermViewDashboard,
			PermViewProfile,
			PermEditProfile,
		},
		RoleCustomer: {
			PermViewDashboard,
			PermViewProfile,
			PermEditProfile,
		},
	}
}
