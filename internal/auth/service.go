package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// dummyHash keeps failed lookups as slow as a real password comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("odyssey-timing-guard"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	group singleflight.Group
	now   func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates email/password credentials. Unknown, inactive and
// mismatched accounts are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, rbac.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and resolves the identity snapshot in one step.
func (s *Service) Login(ctx context.Context, email, password string) (*rbac.Identity, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.ResolveIdentity(ctx, user.ID)
}

// ResolveIdentity builds the authorization snapshot for userID from the store.
// Concurrent calls for the same user share one lookup. Missing or inactive
// users yield rbac.ErrNotFound.
func (s *Service) ResolveIdentity(ctx context.Context, userID int64) (*rbac.Identity, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		user, err := s.repo.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !user.IsActive {
			return nil, rbac.ErrNotFound
		}
		roles, err := s.repo.LoadRoles(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &rbac.Identity{
			UserID:   user.ID,
			Email:    user.Email,
			Roles:    roles,
			IssuedAt: s.now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: resolve identity %d: %w", userID, err)
	}
	snapshot := *v.(*rbac.Identity)
	return &snapshot, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, rec SessionRecord) error {
	return s.repo.CreateSession(ctx, rec)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes session rows whose expiry has passed.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx, s.now())
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
