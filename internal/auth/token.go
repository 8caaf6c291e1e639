package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

const tokenIssuer = "odyssey-admin"

// ErrInvalidToken covers every token that cannot be trusted: bad signature,
// wrong algorithm, expired or malformed claims.
var ErrInvalidToken = errors.New("auth: invalid token")

type tokenRole struct {
	Name        string   `json:"name"`
	Permissions []string `json:"perms,omitempty"`
}

// identityClaims embeds the authorization snapshot in a bearer token.
type identityClaims struct {
	Email string      `json:"email"`
	Roles []tokenRole `json:"roles"`
	jwt.RegisteredClaims
}

type cachedIdentity struct {
	identity  *rbac.Identity
	expiresAt time.Time
}

// TokenManager issues and verifies HS256 bearer tokens. Verification is a pure
// function of the token and the shared secret; verified tokens are memoised in
// a bounded cache. Safe for concurrent use.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	cache  *expirable.LRU[string, cachedIdentity]
	now    func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration, cacheSize int) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: token ttl must be positive")
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		cache:  expirable.NewLRU[string, cachedIdentity](cacheSize, nil, ttl),
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue signs a token carrying the identity snapshot.
func (m *TokenManager) Issue(id *rbac.Identity) (string, time.Time, error) {
	if id == nil {
		return "", time.Time{}, errors.New("auth: issue token: identity required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := identityClaims{
		Email: id.Email,
		Roles: compactRoles(id.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates a token and returns its embedded identity.
func (m *TokenManager) Verify(token string) (*rbac.Identity, error) {
	key := cacheKey(token)
	if hit, ok := m.cache.Get(key); ok {
		if m.now().Before(hit.expiresAt) {
			return hit.identity, nil
		}
		m.cache.Remove(key)
	}

	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	id := &rbac.Identity{
		UserID: userID,
		Email:  claims.Email,
		Roles:  expandRoles(claims.Roles),
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	m.cache.Add(key, cachedIdentity{identity: id, expiresAt: claims.ExpiresAt.Time})
	return id, nil
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func compactRoles(roles []rbac.Role) []tokenRole {
	out := make([]tokenRole, 0, len(roles))
	for _, role := range roles {
		tr := tokenRole{Name: role.Name}
		for _, p := range role.Permissions {
			tr.Permissions = append(tr.Permissions, p.Name)
		}
		out = append(out, tr)
	}
	return out
}

func expandRoles(roles []tokenRole) []rbac.Role {
	out := make([]rbac.Role, 0, len(roles))
	for _, tr := range roles {
		role := rbac.Role{Name: tr.Name}
		for _, name := range tr.Permissions {
			p := rbac.Permission{Name: name}
			if action, resource, ok := rbac.ParsePermission(name); ok {
				p.Action, p.Resource = action, resource
			}
			role.Permissions = append(role.Permissions, p)
		}
		out = append(out, role)
	}
	return out
}
