package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":                    "/",
		"admin":               "/admin",
		"//admin":             "/admin",
		"/x/../admin/":        "/admin",
		"/dashboard/./admin":  "/dashboard/admin",
		"/api/users/../roles": "/api/roles",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanPath(in), in)
	}
}

func TestMatchUsesSegmentBoundaries(t *testing.T) {
	p := MustPolicy(DefaultRules(), true)

	rule, ok := p.Match("/admin/users")
	require.True(t, ok)
	assert.Equal(t, "/admin", rule.Pattern)

	_, ok = p.Match("/administrator")
	assert.False(t, ok)

	rule, ok = p.Match("/dashboard/manager/reports")
	require.True(t, ok)
	assert.Equal(t, "/dashboard/manager", rule.Pattern, "longest pattern wins")

	rule, ok = p.Match("/dashboard/settings")
	require.True(t, ok)
	assert.Equal(t, "/dashboard", rule.Pattern)
	assert.Equal(t, RoleHolderCheck(), rule.Check)

	rule, ok = p.Match("/auth/refresh")
	require.True(t, ok)
	assert.Equal(t, AuthenticatedCheck(), rule.Check)
	rule, ok = p.Match("/auth/login")
	require.True(t, ok)
	assert.Equal(t, Public, rule.Check.Kind)
}

func TestDefaultForUndeclaredPaths(t *testing.T) {
	open := MustPolicy(DefaultRules(), true)
	check, pattern := open.CheckFor("/pricing")
	assert.Equal(t, Public, check.Kind)
	assert.Empty(t, pattern)

	closed := MustPolicy(DefaultRules(), false)
	check, _ = closed.CheckFor("/pricing")
	assert.Equal(t, Authenticated, check.Kind)
	assert.False(t, closed.DefaultPublic())
}

func TestNewPolicyValidation(t *testing.T) {
	bad := [][]Rule{
		{{Pattern: "admin", Check: AuthenticatedCheck()}},
		{{Pattern: "/admin/", Check: AuthenticatedCheck()}},
		{{Pattern: "/a", Check: AuthenticatedCheck()}, {Pattern: "/a", Check: PublicCheck()}},
		{{Pattern: "/a", Check: RoleCheck()}},
		{{Pattern: "/a", Check: AnyPermissionCheck("users")}},
		{{Pattern: "/a", Check: Check{Kind: CheckKind(42)}}},
	}
	for _, rules := range bad {
		_, err := NewPolicy(rules, true)
		assert.Error(t, err, "%+v", rules)
	}

	p, err := NewPolicy([]Rule{{Pattern: "/", Check: AuthenticatedCheck()}}, true)
	require.NoError(t, err)
	check, pattern := p.CheckFor("/anything/at/all")
	assert.Equal(t, Authenticated, check.Kind)
	assert.Equal(t, "/", pattern)
}

func TestCheckAllows(t *testing.T) {
	customer := &rbac.Identity{UserID: 2, Roles: []rbac.Role{{Name: rbac.RoleCustomer, Permissions: []rbac.Permission{{Name: rbac.PermViewProfile}}}}}
	noRoles := &rbac.Identity{UserID: 3}

	assert.True(t, PublicCheck().Allows(nil))
	assert.False(t, AuthenticatedCheck().Allows(nil))
	assert.True(t, AuthenticatedCheck().Allows(noRoles))
	assert.False(t, RoleHolderCheck().Allows(nil))
	assert.False(t, RoleHolderCheck().Allows(noRoles))
	assert.True(t, RoleHolderCheck().Allows(customer))
	assert.Equal(t, "role_holder", RoleHolder.String())
	assert.False(t, RoleCheck(rbac.RoleAdmin).Allows(customer))
	assert.True(t, RoleCheck(rbac.RoleAdmin, rbac.RoleCustomer).Allows(customer))
	assert.True(t, AnyPermissionCheck(rbac.PermManageUsers, rbac.PermViewProfile).Allows(customer))
	assert.False(t, AllPermissionsCheck(rbac.PermManageUsers, rbac.PermViewProfile).Allows(customer))
	assert.False(t, AnyPermissionCheck(rbac.PermViewProfile).Allows(noRoles))
}

func TestAuditAndHealthRules(t *testing.T) {
	closed := MustPolicy(DefaultRules(), false)

	check, pattern := closed.CheckFor("/api/audit-logs/export.csv")
	assert.Equal(t, "/api/audit-logs", pattern)
	assert.Equal(t, AnyPermission, check.Kind)
	assert.Equal(t, []string{rbac.PermViewAuditLogs}, check.Values)

	for _, p := range []string{"/metrics", "/healthz"} {
		check, _ := closed.CheckFor(p)
		assert.Equal(t, Public, check.Kind, p)
	}
}
