package rbac

// The predicates below are pure functions over the caller's roles so they can be
// used by enforcement code and by response shaping alike.

// HasPermission reports whether any role grants permission.
func HasPermission(roles []Role, permission string) bool {
	return Resolve(roles).Has(permission)
}

// HasAnyPermission reports whether the roles grant at least one of permissions.
func HasAnyPermission(roles []Role, permissions []string) bool {
	if len(permissions) == 0 || len(roles) == 0 {
		return false
	}
	return Resolve(roles).HasAny(permissions...)
}

// HasAllPermissions reports whether the roles grant every one of permissions.
func HasAllPermissions(roles []Role, permissions []string) bool {
	if len(permissions) == 0 {
		return true
	}
	return Resolve(roles).HasAll(permissions...)
}

// HasRole reports whether any role is named name (exact match).
func HasRole(roles []Role, name string) bool {
	for _, role := range roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether any role matches one of names.
func HasAnyRole(roles []Role, names []string) bool {
	for _, name := range names {
		if HasRole(roles, name) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the roles include the admin system role.
func IsAdmin(roles []Role) bool {
	return HasRole(roles, RoleAdmin)
}
