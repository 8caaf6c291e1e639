// Package access is the request gate: it decides, before routing, whether a
// caller may reach a path based on a declared policy table and the caller's
// authorization snapshot.
package access

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// CheckKind enumerates the predicates a rule may require.
type CheckKind int

const (
	Public CheckKind = iota
	Authenticated
	AnyRole
	AnyPermission
	AllPermissions
	RoleHolder
)

func (k CheckKind) String() string {
	switch k {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case AnyRole:
		return "any_role"
	case AnyPermission:
		return "any_permission"
	case AllPermissions:
		return "all_permissions"
	case RoleHolder:
		return "role_holder"
	default:
		return fmt.Sprintf("check(%d)", int(k))
	}
}

// Check is the predicate guarding a path prefix.
type Check struct {
	Kind   CheckKind
	Values []string
}

// PublicCheck lets every caller through.
func PublicCheck() Check { return Check{Kind: Public} }

// AuthenticatedCheck requires any signed-in identity.
func AuthenticatedCheck() Check { return Check{Kind: Authenticated} }

// RoleHolderCheck requires an identity holding at least one role.
func RoleHolderCheck() Check { return Check{Kind: RoleHolder} }

// RoleCheck requires one of the named roles.
func RoleCheck(roles ...string) Check { return Check{Kind: AnyRole, Values: roles} }

// AnyPermissionCheck requires at least one of the permissions.
func AnyPermissionCheck(perms ...string) Check { return Check{Kind: AnyPermission, Values: perms} }

// AllPermissionsCheck requires every permission.
func AllPermissionsCheck(perms ...string) Check { return Check{Kind: AllPermissions, Values: perms} }

// Allows evaluates the check against an identity. A nil identity only passes
// public checks.
func (c Check) Allows(id *rbac.Identity) bool {
	if c.Kind == Public {
		return true
	}
	if id == nil {
		return false
	}
	switch c.Kind {
	case Authenticated:
		return true
	case RoleHolder:
		return len(id.Roles) > 0
	case AnyRole:
		return rbac.HasAnyRole(id.Roles, c.Values)
	case AnyPermission:
		return rbac.HasAnyPermission(id.Roles, c.Values)
	case AllPermissions:
		return rbac.HasAllPermissions(id.Roles, c.Values)
	default:
		return false
	}
}

// Rule binds a path prefix to a check.
type Rule struct {
	Pattern string
	Check   Check
}

// Policy is an immutable, validated rule table.
type Policy struct {
	rules         []Rule
	defaultPublic bool
}

// NewPolicy validates rules and orders them so the longest pattern wins.
func NewPolicy(rules []Rule, defaultPublic bool) (*Policy, error) {
	seen := make(map[string]struct{}, len(rules))
	ordered := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("access: pattern %q must start with /", rule.Pattern)
		}
		pattern := CleanPath(rule.Pattern)
		if pattern != rule.Pattern {
			return nil, fmt.Errorf("access: pattern %q is not clean (want %q)", rule.Pattern, pattern)
		}
		if _, dup := seen[pattern]; dup {
			return nil, fmt.Errorf("access: duplicate pattern %q", pattern)
		}
		seen[pattern] = struct{}{}
		if err := validateCheck(rule.Check); err != nil {
			return nil, fmt.Errorf("access: pattern %q: %w", pattern, err)
		}
		ordered = append(ordered, rule)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Pattern) > len(ordered[j].Pattern)
	})
	return &Policy{rules: ordered, defaultPublic: defaultPublic}, nil
}

// MustPolicy is NewPolicy for static tables.
func MustPolicy(rules []Rule, defaultPublic bool) *Policy {
	p, err := NewPolicy(rules, defaultPublic)
	if err != nil {
		panic(err)
	}
	return p
}

func validateCheck(c Check) error {
	switch c.Kind {
	case Public, Authenticated, RoleHolder:
		return nil
	case AnyRole:
		if len(c.Values) == 0 {
			return fmt.Errorf("role check needs at least one role")
		}
	case AnyPermission, AllPermissions:
		if len(c.Values) == 0 {
			return fmt.Errorf("%s check needs at least one permission", c.Kind)
		}
		for _, name := range c.Values {
			if _, _, ok := rbac.ParsePermission(name); !ok {
				return fmt.Errorf("permission %q is not action:resource", name)
			}
		}
	default:
		return fmt.Errorf("unknown check kind %d", int(c.Kind))
	}
	return nil
}

// Match returns the most specific rule covering an already cleaned path.
func (p *Policy) Match(cleaned string) (Rule, bool) {
	for _, rule := range p.rules {
		if covers(rule.Pattern, cleaned) {
			return rule, true
		}
	}
	return Rule{}, false
}

// CheckFor returns the check guarding the path and the pattern that supplied
// it; undeclared paths fall back to the default policy with an empty pattern.
func (p *Policy) CheckFor(cleaned string) (Check, string) {
	if rule, ok := p.Match(cleaned); ok {
		return rule.Check, rule.Pattern
	}
	if p.defaultPublic {
		return PublicCheck(), ""
	}
	return AuthenticatedCheck(), ""
}

// Rules returns a copy of the ordered rule table.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// DefaultPublic reports how undeclared paths are treated.
func (p *Policy) DefaultPublic() bool { return p.defaultPublic }

// covers matches on segment boundaries: /admin covers /admin and /admin/x
// but not /administrator.
func covers(pattern, p string) bool {
	if pattern == "/" {
		return true
	}
	return p == pattern || strings.HasPrefix(p, pattern+"/")
}

// CleanPath normalises a request path so dot segments and duplicate slashes
// cannot step around a rule.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// DefaultRules is the route table of the admin application.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/admin", Check: RoleCheck(rbac.RoleAdmin)},
		{Pattern: "/dashboard", Check: RoleHolderCheck()},
		{Pattern: "/dashboard/admin", Check: RoleCheck(rbac.RoleAdmin)},
		{Pattern: "/dashboard/manager", Check: RoleCheck(rbac.RoleManager)},
		{Pattern: "/dashboard/customer", Check: RoleCheck(rbac.RoleCustomer)},
		{Pattern: "/api/users", Check: AnyPermissionCheck(rbac.PermManageUsers, rbac.PermViewUsers)},
		{Pattern: "/api/roles", Check: AnyPermissionCheck(rbac.PermManageRoles, rbac.PermViewRoles)},
		{Pattern: "/api/permissions", Check: AnyPermissionCheck(rbac.PermManagePermissions, rbac.PermViewPermissions)},
		{Pattern: "/api/audit-logs", Check: AnyPermissionCheck(rbac.PermViewAuditLogs)},
		{Pattern: "/jobs", Check: RoleCheck(rbac.RoleAdmin)},
		{Pattern: "/auth/refresh", Check: AuthenticatedCheck()},
		{Pattern: "/auth/token", Check: AuthenticatedCheck()},
		{Pattern: "/auth/me", Check: AuthenticatedCheck()},
		{Pattern: "/auth", Check: PublicCheck()},
		{Pattern: "/healthz", Check: PublicCheck()},
		{Pattern: "/metrics", Check: PublicCheck()},
		{Pattern: "/unauthorized", Check: PublicCheck()},
	}
}
