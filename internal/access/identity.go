package access

import (
	"errors"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// ErrMalformedAuthorization is returned when an Authorization header is present
// but is not a bearer credential.
var ErrMalformedAuthorization = errors.New("access: malformed authorization header")

// IdentityProvider returns the caller's identity, nil when anonymous. An error
// means a credential was presented but could not be trusted.
type IdentityProvider interface {
	Identify(r *http.Request) (*rbac.Identity, error)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(r *http.Request) (*rbac.Identity, error)

// Identify implements IdentityProvider.
func (f IdentityFunc) Identify(r *http.Request) (*rbac.Identity, error) { return f(r) }

// SessionProvider reads the snapshot from the cookie session loaded earlier in
// the middleware chain.
type SessionProvider struct{}

// Identify implements IdentityProvider.
func (SessionProvider) Identify(r *http.Request) (*rbac.Identity, error) {
	return shared.SessionFromContext(r.Context()).Identity(), nil
}

// TokenVerifier validates a bearer token and returns its embedded identity.
type TokenVerifier interface {
	Verify(token string) (*rbac.Identity, error)
}

// BearerProvider authenticates API callers from the Authorization header.
type BearerProvider struct {
	Verifier TokenVerifier
}

// Identify implements IdentityProvider.
func (p BearerProvider) Identify(r *http.Request) (*rbac.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMalformedAuthorization
	}
	if p.Verifier == nil {
		return nil, errors.New("access: bearer tokens not accepted")
	}
	return p.Verifier.Verify(strings.TrimSpace(token))
}

// Chain asks each provider in order and returns the first identity. Any error
// stops the chain so a bad credential never falls through to a weaker one.
type Chain []IdentityProvider

// Identify implements IdentityProvider.
func (c Chain) Identify(r *http.Request) (*rbac.Identity, error) {
	for _, provider := range c {
		id, err := provider.Identify(r)
		if err != nil {
			return nil, err
		}
		if id != nil {
			return id, nil
		}
	}
	return nil, nil
}
