//go:build integration

package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/db/dbtest"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

func insertRole(t *testing.T, repo *Repository, name string) int64 {
	t.Helper()
	var id int64
	err := repo.pool.QueryRow(context.Background(), `INSERT INTO roles (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestRepositoryUserLifecycle(t *testing.T) {
	pool := dbtest.Start(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	customer := insertRole(t, repo, rbac.RoleCustomer)
	manager := insertRole(t, repo, rbac.RoleManager)

	found, err := repo.FindRoleByName(ctx, rbac.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, customer, found)

	u, err := repo.InsertUser(ctx, NewUser{Email: "ana@example.com", Name: "Ana", PasswordHash: "hash"}, []int64{customer})
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.Equal(t, []string{rbac.RoleCustomer}, u.RoleNames())

	_, err = repo.InsertUser(ctx, NewUser{Email: "ana@example.com", PasswordHash: "hash"}, nil)
	assert.ErrorIs(t, err, rbac.ErrConflict)
	_, err = repo.InsertUser(ctx, NewUser{Email: "bo@example.com", PasswordHash: "hash"}, []int64{999999})
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	require.NoError(t, repo.ReplaceUserRoles(ctx, u.ID, []int64{manager, customer}))
	got, err := repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{rbac.RoleCustomer, rbac.RoleManager}, got.RoleNames())

	require.NoError(t, repo.RemoveRole(ctx, u.ID, manager))
	assert.ErrorIs(t, repo.RemoveRole(ctx, u.ID, manager), rbac.ErrNotFound)
	require.NoError(t, repo.AssignRole(ctx, u.ID, manager))
	require.NoError(t, repo.AssignRole(ctx, u.ID, manager), "assigning a held role is a no-op")

	inactive := false
	name := "Ana Maria"
	updated, err := repo.UpdateUser(ctx, u.ID, UpdateInput{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.False(t, updated.IsActive)
	assert.Len(t, updated.Roles, 2)

	list, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Roles, 2)

	require.NoError(t, repo.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, repo.DeleteUser(ctx, u.ID), rbac.ErrNotFound)
	_, err = repo.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	var assignments int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles`).Scan(&assignments))
	assert.Zero(t, assignments, "assignments cascade with the user")
}

func TestRepositoryUpdateEmailConflict(t *testing.T) {
	pool := dbtest.Start(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	a, err := repo.InsertUser(ctx, NewUser{Email: "a@example.com", PasswordHash: "hash"}, nil)
	require.NoError(t, err)
	_, err = repo.InsertUser(ctx, NewUser{Email: "b@example.com", PasswordHash: "hash"}, nil)
	require.NoError(t, err)

	taken := "b@example.com"
	_, err = repo.UpdateUser(ctx, a.ID, UpdateInput{Email: &taken})
	assert.ErrorIs(t, err, rbac.ErrConflict)

	_, err = repo.UpdateUser(ctx, 999999, UpdateInput{Email: &taken})
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	assert.ErrorIs(t, repo.ReplaceUserRoles(ctx, 999999, nil), rbac.ErrNotFound)
}
