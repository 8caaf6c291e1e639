package roles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

type handlerFixture struct {
	repo   *stubRepo
	router chi.Router
}

func newHandlerFixture() *handlerFixture {
	repo := newStubRepo()
	h := NewHandler(nil, NewService(repo, nil, nil), rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/api/roles", h.MountRoutes)
	r.Route("/api/permissions", h.MountPermissionRoutes)
	return &handlerFixture{repo: repo, router: r}
}

func (f *handlerFixture) do(t *testing.T, id *rbac.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req = req.WithContext(rbac.ContextWithIdentity(context.Background(), id))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func identityWith(perms ...string) *rbac.Identity {
	role := rbac.Role{Name: "custom"}
	for _, p := range perms {
		action, resource, _ := rbac.ParsePermission(p)
		role.Permissions = append(role.Permissions, rbac.Permission{Name: p, Action: action, Resource: resource})
	}
	return &rbac.Identity{UserID: 7, Roles: []rbac.Role{role}}
}

func TestHandlerListRequiresViewOrManage(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(t, nil, http.MethodGet, "/api/roles", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, identityWith(rbac.PermViewProfile), http.MethodGet, "/api/roles", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, identityWith(rbac.PermViewRoles), http.MethodGet, "/api/roles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Roles []RoleSummary `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Len(t, payload.Roles, len(rbac.SystemRoles()))

	rr = f.do(t, identityWith(rbac.PermViewRoles), http.MethodPost, "/api/roles", `{"name":"support"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code, "view does not grant writes")
}

func TestHandlerCreateAndValidate(t *testing.T) {
	f := newHandlerFixture()
	manager := identityWith(rbac.PermManageRoles)

	rr := f.do(t, manager, http.MethodPost, "/api/roles", `{"name":"support","description":"Helpdesk"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var role rbac.Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &role))
	assert.Equal(t, "support", role.Name)

	rr = f.do(t, manager, http.MethodPost, "/api/roles", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name"`)

	rr = f.do(t, manager, http.MethodPost, "/api/roles", `{"name":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, manager, http.MethodPost, "/api/roles", `{"name":"support"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerDeleteReportsUsage(t *testing.T) {
	f := newHandlerFixture()
	manager := identityWith(rbac.PermManageRoles)
	admin := f.repo.roleByName(rbac.RoleAdmin)

	rr := f.do(t, manager, http.MethodDelete, "/api/roles/"+strconv.FormatInt(admin.ID, 10), "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, manager, http.MethodPost, "/api/roles", `{"name":"support"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var role rbac.Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &role))
	f.repo.assignments[role.ID] = 2

	target := "/api/roles/" + strconv.FormatInt(role.ID, 10)
	rr = f.do(t, manager, http.MethodDelete, target, "")
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem struct {
		Count *int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.NotNil(t, problem.Count)
	assert.Equal(t, 2, *problem.Count)

	f.repo.assignments[role.ID] = 0
	rr = f.do(t, manager, http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, manager, http.MethodDelete, "/api/roles/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRolePermissions(t *testing.T) {
	f := newHandlerFixture()
	manager := identityWith(rbac.PermManageRoles)
	customer := f.repo.roleByName(rbac.RoleCustomer)
	viewProfile := f.repo.permByName(rbac.PermViewProfile)
	editProfile := f.repo.permByName(rbac.PermEditProfile)
	base := "/api/roles/" + strconv.FormatInt(customer.ID, 10) + "/permissions"

	body := `{"permission_ids":[` + strconv.FormatInt(viewProfile.ID, 10) + `,` + strconv.FormatInt(editProfile.ID, 10) + `]}`
	rr := f.do(t, manager, http.MethodPut, base, body)
	require.Equal(t, http.StatusOK, rr.Code)
	var role rbac.Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &role))
	assert.Len(t, role.Permissions, 2)

	rr = f.do(t, manager, http.MethodDelete, base+"/"+strconv.FormatInt(editProfile.ID, 10), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, manager, http.MethodPost, base+"/9999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerPermissions(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(t, identityWith(rbac.PermViewPermissions), http.MethodGet, "/api/permissions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Permissions []rbac.Permission `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Len(t, payload.Permissions, len(rbac.Catalog()))

	rr = f.do(t, identityWith(rbac.PermViewPermissions), http.MethodPost, "/api/permissions", `{"resource":"reports","action":"export"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	manager := identityWith(rbac.PermManagePermissions)
	rr = f.do(t, manager, http.MethodPost, "/api/permissions", `{"name":"bogus","resource":"reports","action":"export"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var perm rbac.Permission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &perm))
	assert.Equal(t, "export:reports", perm.Name)

	rr = f.do(t, manager, http.MethodDelete, "/api/permissions/"+strconv.FormatInt(perm.ID, 10), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
