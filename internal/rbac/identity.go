package rbac

import (
	"context"
	"time"
)

// Identity is the authorization snapshot carried by a session or bearer token.
// It is resolved from the store at login or refresh and never re-read per request.
type Identity struct {
	UserID   int64     `json:"user_id"`
	Email    string    `json:"email"`
	Roles    []Role    `json:"roles"`
	IssuedAt time.Time `json:"issued_at"`
}

// Permissions resolves the identity's effective permission set.
func (i *Identity) Permissions() PermissionSet {
	if i == nil {
		return PermissionSet{}
	}
	return Resolve(i.Roles)
}

// RoleNames lists the identity's role names.
func (i *Identity) RoleNames() []string {
	if i == nil {
		return nil
	}
	names := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		names = append(names, r.Name)
	}
	return names
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
