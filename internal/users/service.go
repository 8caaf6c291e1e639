package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindRoleByName(ctx context.Context, name string) (int64, error)
	InsertUser(ctx context.Context, in NewUser, roleIDs []int64) (User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// SessionRevoker ends every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID int64) (int, error)
}

// Notifier tells users about account changes.
type Notifier interface {
	Welcome(ctx context.Context, u User) error
	RolesChanged(ctx context.Context, u User) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	sessions SessionRevoker
	notifier Notifier
	logger   *slog.Logger
	cost     int
}

// Option customises Service.
type Option func(*Service)

// WithAudit records every mutation.
func WithAudit(a shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithSessionRevoker revokes sessions of deleted or deactivated users.
func WithSessionRevoker(r SessionRevoker) Option {
	return func(s *Service) { s.sessions = r }
}

// WithNotifier enables account emails.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts ...Option) *Service {
	s := &Service{repo: repo, audit: shared.DiscardAudit{}, logger: slog.Default(), cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns a user with roles.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, actorID int64, in CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return User{}, rbac.NewValidationError("email", "is required")
	}
	if len(in.Password) < 8 {
		return User{}, rbac.NewValidationError("password", "must be at least 8 characters")
	}
	roleIDs := dedupeIDs(in.RoleIDs)
	if len(roleIDs) == 0 {
		id, err := s.repo.FindRoleByName(ctx, rbac.RoleCustomer)
		if err != nil {
			return User{}, fmt.Errorf("users: default role: %w", err)
		}
		roleIDs = []int64{id}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	u, err := s.repo.InsertUser(ctx, NewUser{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
	}, roleIDs)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.create", u.ID, map[string]any{"email": u.Email, "roles": u.RoleNames()})
	if s.notifier != nil {
		if err := s.notifier.Welcome(ctx, u); err != nil {
			s.logger.Warn("welcome email not queued", slog.Int64("user_id", u.ID), slog.Any("error", err))
		}
	}
	return u, nil
}

// UpdateUser changes email, name or the active flag. Deactivation revokes the
// user's sessions; users cannot deactivate themselves.
func (s *Service) UpdateUser(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	if in.IsActive != nil && !*in.IsActive && actorID == id {
		return User{}, rbac.ErrSelfModification
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return User{}, rbac.NewValidationError("email", "is required")
		}
		in.Email = &email
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	u, err := s.repo.UpdateUser(ctx, id, in)
	if err != nil {
		return User{}, err
	}
	meta := map[string]any{}
	if in.Email != nil {
		meta["email"] = u.Email
	}
	if in.IsActive != nil {
		meta["is_active"] = u.IsActive
	}
	s.record(ctx, actorID, "user.update", id, meta)
	if in.IsActive != nil && !u.IsActive {
		s.revoke(ctx, id)
	}
	return u, nil
}

// DeleteUser removes an account and ends its sessions.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return rbac.ErrSelfModification
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	s.revoke(ctx, id)
	return nil
}

// SetUserRoles replaces the user's roles. Live sessions keep their snapshot
// until refreshed.
func (s *Service) SetUserRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) (User, error) {
	if actorID == userID {
		return User{}, rbac.ErrSelfModification
	}
	ids := dedupeIDs(roleIDs)
	if err := s.repo.ReplaceUserRoles(ctx, userID, ids); err != nil {
		return User{}, err
	}
	return s.rolesChanged(ctx, actorID, userID, "user.roles.set", map[string]any{"role_ids": ids})
}

// AssignRole grants a single role.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) (User, error) {
	if actorID == userID {
		return User{}, rbac.ErrSelfModification
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return User{}, err
	}
	return s.rolesChanged(ctx, actorID, userID, "user.roles.assign", map[string]any{"role_id": roleID})
}

// RemoveRole revokes a single role.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) (User, error) {
	if actorID == userID {
		return User{}, rbac.ErrSelfModification
	}
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return User{}, err
	}
	return s.rolesChanged(ctx, actorID, userID, "user.roles.remove", map[string]any{"role_id": roleID})
}

func (s *Service) rolesChanged(ctx context.Context, actorID, userID int64, action string, meta map[string]any) (User, error) {
	s.record(ctx, actorID, action, userID, meta)
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.RolesChanged(ctx, u); err != nil {
			s.logger.Warn("roles changed email not queued", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return u, nil
}

func (s *Service) revoke(ctx context.Context, userID int64) {
	if s.sessions == nil {
		return
	}
	n, err := s.sessions.RevokeUser(ctx, userID)
	if err != nil {
		s.logger.Error("revoke sessions failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	s.logger.Info("sessions revoked", slog.Int64("user_id", userID), slog.Int("count", n))
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
