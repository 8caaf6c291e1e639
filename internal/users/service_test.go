package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/mailer"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

type serviceFixture struct {
	svc     *Service
	repo    *stubRepo
	revoker *revokerSpy
	queue   *queueSpy
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	composer, err := mailer.NewComposer()
	require.NoError(t, err)
	f := &serviceFixture{repo: newStubRepo(), revoker: &revokerSpy{}, queue: &queueSpy{}}
	f.svc = NewService(f.repo,
		WithSessionRevoker(f.revoker),
		WithNotifier(MailNotifier{Composer: composer, Queue: f.queue, LoginURL: "http://localhost/auth/login"}),
	)
	f.svc.cost = bcrypt.MinCost
	return f
}

func (f *serviceFixture) create(t *testing.T, email string, roles ...string) User {
	t.Helper()
	var ids []int64
	for _, r := range roles {
		ids = append(ids, f.repo.roleID(r))
	}
	u, err := f.svc.CreateUser(context.Background(), 1, CreateInput{Email: email, Password: "s3cret-pass", RoleIDs: ids})
	require.NoError(t, err)
	return u
}

func TestCreateUserDefaultsToCustomer(t *testing.T) {
	f := newServiceFixture(t)

	u, err := f.svc.CreateUser(context.Background(), 1, CreateInput{Email: " Ana@Example.com ", Name: "Ana", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, []string{rbac.RoleCustomer}, u.RoleNames())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.hashes[u.ID]), []byte("s3cret-pass")))

	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, mailer.TemplateWelcome, f.queue.messages[0].Template)
	assert.Equal(t, "ana@example.com", f.queue.messages[0].To)
	assert.Contains(t, f.queue.messages[0].Body, "Roles: customer")
}

func TestCreateUserErrors(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "ana@example.com")

	_, err := f.svc.CreateUser(context.Background(), 1, CreateInput{Email: "ana@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, rbac.ErrConflict)

	_, err = f.svc.CreateUser(context.Background(), 1, CreateInput{Email: "bo@example.com", Password: "s3cret-pass", RoleIDs: []int64{999}})
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	_, err = f.svc.CreateUser(context.Background(), 1, CreateInput{Email: "bo@example.com", Password: "short"})
	var verr *rbac.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "password")
}

func TestSelfModificationIsRejected(t *testing.T) {
	f := newServiceFixture(t)
	admin := f.create(t, "admin@example.com", rbac.RoleAdmin)
	ctx := context.Background()
	managerID := f.repo.roleID(rbac.RoleManager)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, admin.ID), rbac.ErrSelfModification)
	_, err := f.svc.SetUserRoles(ctx, admin.ID, admin.ID, []int64{managerID})
	assert.ErrorIs(t, err, rbac.ErrSelfModification)
	_, err = f.svc.AssignRole(ctx, admin.ID, admin.ID, managerID)
	assert.ErrorIs(t, err, rbac.ErrSelfModification)
	_, err = f.svc.RemoveRole(ctx, admin.ID, admin.ID, f.repo.roleID(rbac.RoleAdmin))
	assert.ErrorIs(t, err, rbac.ErrSelfModification)
	inactive := false
	_, err = f.svc.UpdateUser(ctx, admin.ID, admin.ID, UpdateInput{IsActive: &inactive})
	assert.ErrorIs(t, err, rbac.ErrSelfModification)

	got, err := f.svc.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{rbac.RoleAdmin}, got.RoleNames(), "roles unchanged")
	assert.Empty(t, f.revoker.revoked)
}

func TestSetUserRoles(t *testing.T) {
	f := newServiceFixture(t)
	admin := f.create(t, "admin@example.com", rbac.RoleAdmin)
	u := f.create(t, "bo@example.com")
	ctx := context.Background()

	got, err := f.svc.SetUserRoles(ctx, admin.ID, u.ID, []int64{f.repo.roleID(rbac.RoleManager), f.repo.roleID(rbac.RoleManager), f.repo.roleID(rbac.RoleCustomer)})
	require.NoError(t, err)
	assert.Equal(t, []string{rbac.RoleCustomer, rbac.RoleManager}, got.RoleNames())
	assert.Equal(t, []string{mailer.TemplateWelcome, mailer.TemplateWelcome, mailer.TemplateRolesChanged}, f.queue.templates())

	_, err = f.svc.SetUserRoles(ctx, admin.ID, u.ID, []int64{999})
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	got, err = f.svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, got.Roles, 2, "a failed replacement leaves assignments intact")

	got, err = f.svc.SetUserRoles(ctx, admin.ID, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Roles)

	_, err = f.svc.SetUserRoles(ctx, admin.ID, 4242, nil)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestAssignAndRemoveRole(t *testing.T) {
	f := newServiceFixture(t)
	admin := f.create(t, "admin@example.com", rbac.RoleAdmin)
	u := f.create(t, "bo@example.com")
	ctx := context.Background()
	managerID := f.repo.roleID(rbac.RoleManager)

	got, err := f.svc.AssignRole(ctx, admin.ID, u.ID, managerID)
	require.NoError(t, err)
	assert.Contains(t, got.RoleNames(), rbac.RoleManager)

	got, err = f.svc.RemoveRole(ctx, admin.ID, u.ID, managerID)
	require.NoError(t, err)
	assert.NotContains(t, got.RoleNames(), rbac.RoleManager)

	_, err = f.svc.RemoveRole(ctx, admin.ID, u.ID, managerID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestDeleteAndDeactivateRevokeSessions(t *testing.T) {
	f := newServiceFixture(t)
	admin := f.create(t, "admin@example.com", rbac.RoleAdmin)
	a := f.create(t, "a@example.com")
	b := f.create(t, "b@example.com")
	ctx := context.Background()

	inactive := false
	got, err := f.svc.UpdateUser(ctx, admin.ID, a.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, f.svc.DeleteUser(ctx, admin.ID, b.ID))
	assert.Equal(t, []int64{a.ID, b.ID}, f.revoker.revoked)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, b.ID), rbac.ErrNotFound)

	email := " NEW@example.com"
	got, err = f.svc.UpdateUser(ctx, admin.ID, a.ID, UpdateInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Len(t, f.revoker.revoked, 2, "email changes keep sessions")
}
