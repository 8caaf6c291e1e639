package rbac

import "time"

// Role represents a named bundle of permissions assignable to users.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsSystem reports whether the role is one of the immutable system roles.
func (r Role) IsSystem() bool {
	return IsSystemRole(r.Name)
}

// Permission represents an atomic capability named action:resource.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Canonical returns a copy whose Name is derived from Action and Resource.
func (p Permission) Canonical() Permission {
	p.Name = Derive(p.Action, p.Resource)
	return p
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}
