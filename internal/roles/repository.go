package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/db"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles with their user counts.
func (r *Repository) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	rows, err := r.pool.Query(ctx, `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at, COUNT(ur.user_id)
FROM roles r
LEFT JOIN user_roles ur ON ur.role_id = r.id
GROUP BY r.id
ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()
	var out []RoleSummary
	for rows.Next() {
		var s RoleSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt, &s.UserCount); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: iterate: %w", err)
	}
	return out, nil
}

// GetRole loads a role together with its permissions.
func (r *Repository) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	var role rbac.Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, rbac.ErrNotFound
		}
		return rbac.Role{}, fmt.Errorf("roles: get: %w", err)
	}
	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.name, p.resource, p.action, p.description, p.created_at
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.name`, id)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("roles: get permissions: %w", err)
	}
	perms, err := scanPermissions(rows)
	if err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// InsertRole creates a role; duplicate names map to rbac.ErrConflict.
func (r *Repository) InsertRole(ctx context.Context, in RoleInput) (rbac.Role, error) {
	var role rbac.Role
	err := r.pool.QueryRow(ctx, `
INSERT INTO roles (name, description) VALUES ($1, $2)
RETURNING id, name, description, created_at, updated_at`, in.Name, in.Description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return rbac.Role{}, rbac.ConflictError("role %q already exists", in.Name)
		}
		return rbac.Role{}, fmt.Errorf("roles: insert: %w", err)
	}
	return role, nil
}

// UpdateRole changes name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, in RoleInput) (rbac.Role, error) {
	var role rbac.Role
	err := r.pool.QueryRow(ctx, `
UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, name, description, created_at, updated_at`, id, in.Name, in.Description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return rbac.Role{}, rbac.ErrNotFound
		case db.IsUniqueViolation(err):
			return rbac.Role{}, rbac.ConflictError("role %q already exists", in.Name)
		}
		return rbac.Role{}, fmt.Errorf("roles: update: %w", err)
	}
	return role, nil
}

// CountRoleUsers returns how many users hold the role.
func (r *Repository) CountRoleUsers(ctx context.Context, id int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("roles: count users: %w", err)
	}
	return n, nil
}

// DeleteRole removes a role. Assignments created concurrently trip the
// user_roles foreign key; that is reported as *rbac.RoleInUseError.
func (r *Repository) DeleteRole(ctx context.Context, role rbac.Role) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, role.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			count, cerr := r.CountRoleUsers(ctx, role.ID)
			if cerr != nil {
				count = 0
			}
			return &rbac.RoleInUseError{Role: role.Name, Count: count}
		}
		return fmt.Errorf("roles: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// ListPermissions returns every permission ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, description, created_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	return scanPermissions(rows)
}

// InsertPermission stores a canonical permission.
func (r *Repository) InsertPermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO permissions (name, resource, action, description) VALUES ($1, $2, $3, $4)
RETURNING id, created_at`, p.Name, p.Resource, p.Action, p.Description).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return rbac.Permission{}, rbac.ConflictError("permission %q already exists", p.Name)
		}
		return rbac.Permission{}, fmt.Errorf("roles: insert permission: %w", err)
	}
	return p, nil
}

// DeletePermission removes a permission; role grants cascade.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roles: delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// AttachPermission grants a permission to a role. Re-attaching is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return rbac.ErrNotFound
		}
		return fmt.Errorf("roles: attach permission: %w", err)
	}
	return nil
}

// DetachPermission revokes a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("roles: detach permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// ReplacePermissions swaps a role's permission set in one transaction.
func (r *Repository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rbac.ErrNotFound
			}
			return fmt.Errorf("roles: lock role: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("roles: clear permissions: %w", err)
		}
		if len(permissionIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionIDs)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return rbac.ErrNotFound
			}
			return fmt.Errorf("roles: insert permissions: %w", err)
		}
		return nil
	})
}

func scanPermissions(rows pgx.Rows) ([]rbac.Permission, error) {
	defer rows.Close()
	var out []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan permission: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: iterate permissions: %w", err)
	}
	return out, nil
}

var _ RepositoryPort = (*Repository)(nil)
