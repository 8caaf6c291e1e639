package rbac

import "sort"

// PermissionSet is a user's effective permission set.
type PermissionSet map[string]struct{}

// Resolve flattens roles into the union of their permission names.
// It performs no I/O and never fails: no roles yields an empty set.
func Resolve(roles []Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if perm.Name == "" {
				continue
			}
			set[perm.Name] = struct{}{}
		}
	}
	return set
}

// NewPermissionSet builds a set from already-flattened names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// HasAny reports whether the set intersects names. An empty list is false.
func (s PermissionSet) HasAny(names ...string) bool {
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains every name. An empty list is true.
func (s PermissionSet) HasAll(names ...string) bool {
	for _, n := range names {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return len(s)
}

// Names returns the permission names in sorted order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
