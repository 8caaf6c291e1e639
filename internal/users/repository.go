package users

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

const userColumns = `id, email, name, is_active, created_at, updated_at`

// ListUsers returns all users with their roles.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUserRow)
	if err != nil {
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	if len(users) == 0 {
		return users, nil
	}
	ids := make([]int64, len(users))
	index := make(map[int64]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
		index[u.ID] = i
	}
	roleRows, err := r.pool.Query(ctx, `
SELECT ur.user_id, ro.id, ro.name, ro.description, ro.created_at, ro.updated_at
FROM user_roles ur
JOIN roles ro ON ro.id = ur.role_id
WHERE ur.user_id = ANY($1)
ORDER BY ur.user_id, ro.name`, ids)
	if err != nil {
		return nil, fmt.Errorf("users: list roles: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var userID int64
		var role rbac.Role
		if err := roleRows.Scan(&userID, &role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan role: %w", err)
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, role)
		}
	}
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("users: iterate roles: %w", err)
	}
	return users, nil
}

// GetUser loads a user and their roles.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUserRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, rbac.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	roles, err := r.userRoles(ctx, r.pool, id)
	if err != nil {
		return User{}, err
	}
	u.Roles = roles
	return u, nil
}

// FindRoleByName resolves a role id from its name.
func (r *Repository) FindRoleByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, rbac.ErrNotFound
		}
		return 0, fmt.Errorf("users: find role: %w", err)
	}
	return id, nil
}

// InsertUser creates the account and its role assignments in one transaction.
func (r *Repository) InsertUser(ctx context.Context, in NewUser, roleIDs []int64) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3)
RETURNING `+userColumns, in.Email, in.Name, in.PasswordHash)
		if err != nil {
			return err
		}
		created, err = pgx.CollectExactlyOneRow(rows, scanUserRow)
		if err != nil {
			return err
		}
		if err := insertUserRoles(ctx, tx, created.ID, roleIDs); err != nil {
			return err
		}
		created.Roles, err = r.userRoles(ctx, tx, created.ID)
		return err
	})
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return User{}, rbac.ConflictError("email %q is already registered", in.Email)
		case db.IsForeignKeyViolation(err):
			return User{}, fmt.Errorf("users: unknown role: %w", rbac.ErrNotFound)
		case rbac.IsDomainError(err):
			return User{}, err
		}
		return User{}, fmt.Errorf("users: insert: %w", err)
	}
	return created, nil
}

// UpdateUser applies the non-nil fields of in.
func (r *Repository) UpdateUser(ctx context.Context, id int64, in UpdateInput) (User, error) {
	rows, err := r.pool.Query(ctx, `
UPDATE users SET
    email = COALESCE($2, email),
    name = COALESCE($3, name),
    is_active = COALESCE($4, is_active),
    updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, id, in.Email, in.Name, in.IsActive)
	var u User
	if err == nil {
		u, err = pgx.CollectExactlyOneRow(rows, scanUserRow)
	}
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return User{}, rbac.ErrNotFound
		case db.IsUniqueViolation(err):
			return User{}, rbac.ConflictError("email is already registered")
		}
		return User{}, fmt.Errorf("users: update: %w", err)
	}
	roles, err := r.userRoles(ctx, r.pool, id)
	if err != nil {
		return User{}, err
	}
	u.Roles = roles
	return u, nil
}

// DeleteUser removes the account; assignments and session rows cascade.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// ReplaceUserRoles swaps the user's assignment set atomically. The user row is
// locked so concurrent replacements serialise.
func (r *Repository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rbac.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return insertUserRoles(ctx, tx, userID, roleIDs)
	})
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			return err
		case db.IsForeignKeyViolation(err):
			return fmt.Errorf("users: unknown role: %w", rbac.ErrNotFound)
		}
		return fmt.Errorf("users: replace roles: %w", err)
	}
	return nil
}

// AssignRole grants one role; granting a held role is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return rbac.ErrNotFound
		}
		return fmt.Errorf("users: assign role: %w", err)
	}
	return nil
}

// RemoveRole revokes one role.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("users: remove role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) userRoles(ctx context.Context, q querier, userID int64) ([]rbac.Role, error) {
	rows, err := q.Query(ctx, `
SELECT ro.id, ro.name, ro.description, ro.created_at, ro.updated_at
FROM user_roles ur
JOIN roles ro ON ro.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY ro.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: load roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Role, error) {
		var role rbac.Role
		err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
		return role, err
	})
	if err != nil {
		return nil, fmt.Errorf("users: scan roles: %w", err)
	}
	return roles, nil
}

func insertUserRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
INSERT INTO user_roles (user_id, role_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`, userID, roleIDs)
	return err
}

func scanUserRow(row pgx.CollectableRow) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
