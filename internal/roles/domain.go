package roles

import "github.com/odyssey-erp/odyssey-admin/internal/rbac"

// RoleSummary is a role row decorated with the number of assigned users.
type RoleSummary struct {
	rbac.Role
	UserCount int `json:"user_count"`
}

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// PermissionInput carries the fields of a new permission. Name is optional and
// always replaced by the canonical action:resource form.
type PermissionInput struct {
	Name        string `json:"name"`
	Resource    string `json:"resource" validate:"required,max=64"`
	Action      string `json:"action" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// PermissionIDs is the payload replacing a role's permission set.
type PermissionIDs struct {
	PermissionIDs []int64 `json:"permission_ids"`
}
