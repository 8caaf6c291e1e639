package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It reads the
// Identity placed in context by the access gate and never touches the store.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required
// permissions. An empty list denies everyone.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require any", func(id *Identity) bool {
		return id.Permissions().HasAny(normalized...)
	})
}

// RequireAll ensures the current user has all required permissions. An empty
// list still requires an identity.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require all", func(id *Identity) bool {
		return id.Permissions().HasAll(normalized...)
	})
}

// RequireRole ensures the current user holds one of the named roles. An empty
// list denies everyone.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return m.require("rbac require role", func(id *Identity) bool {
		return HasAnyRole(id.Roles, roles)
	})
}

func (m Middleware) require(op string, allowed func(*Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				denied(w, http.StatusUnauthorized)
				return
			}
			if allowed(id) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info(op+" denied", slog.Int64("user_id", id.UserID), slog.String("path", r.URL.Path))
			}
			denied(w, http.StatusForbidden)
		})
	}
}

// denied writes the same body for every refusal so responses never reveal
// whether the target resource exists.
func denied(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
	})
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
