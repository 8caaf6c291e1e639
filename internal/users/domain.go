package users

import (
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID        int64       `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	IsActive  bool        `json:"is_active"`
	Roles     []rbac.Role `json:"roles"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RoleNames lists the names of the user's roles.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// CreateInput carries a new account. Without role ids the customer role is
// assigned.
type CreateInput struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Name     string  `json:"name" validate:"max=128"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	RoleIDs  []int64 `json:"role_ids"`
}

// UpdateInput changes account fields; nil fields are left untouched.
type UpdateInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Name     *string `json:"name" validate:"omitempty,max=128"`
	IsActive *bool   `json:"is_active"`
}

// NewUser is the row written by the repository.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// RoleIDs is the payload replacing a user's role assignments.
type RoleIDs struct {
	RoleIDs []int64 `json:"role_ids"`
}
