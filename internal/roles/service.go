package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]RoleSummary, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	InsertRole(ctx context.Context, in RoleInput) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, in RoleInput) (rbac.Role, error)
	CountRoleUsers(ctx context.Context, id int64) (int, error)
	DeleteRole(ctx context.Context, role rbac.Role) error
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	InsertPermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns a role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole adds a custom role. System role names are reserved.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in RoleInput) (rbac.Role, error) {
	in = normalizeRoleInput(in)
	if err := validateRoleName(in.Name); err != nil {
		return rbac.Role{}, err
	}
	if rbac.IsSystemRole(in.Name) {
		return rbac.Role{}, rbac.ConflictError("role name %q is reserved", in.Name)
	}
	role, err := s.repo.InsertRole(ctx, in)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes a role. System roles keep their name and
// custom roles cannot take a system name.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, in RoleInput) (rbac.Role, error) {
	in = normalizeRoleInput(in)
	if err := validateRoleName(in.Name); err != nil {
		return rbac.Role{}, err
	}
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if current.Name != in.Name {
		if current.IsSystem() {
			return rbac.Role{}, rbac.ErrSystemRole
		}
		if rbac.IsSystemRole(in.Name) {
			return rbac.Role{}, rbac.ConflictError("role name %q is reserved", in.Name)
		}
	}
	role, err := s.repo.UpdateRole(ctx, id, in)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, "role.update", "role", role.ID, map[string]any{"from": current.Name, "name": role.Name})
	return role, nil
}

// DeleteRole removes a custom role that no user holds. System roles are never
// deletable, whatever their usage.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem() {
		return rbac.ErrSystemRole
	}
	count, err := s.repo.CountRoleUsers(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &rbac.RoleInUseError{Role: role.Name, Count: count}
	}
	if err := s.repo.DeleteRole(ctx, role); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", "role", id, map[string]any{"name": role.Name})
	return nil
}

// ListPermissions returns the permission directory.
func (s *Service) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission stores a permission under its canonical action:resource
// name; a differing supplied name is corrected, not rejected.
func (s *Service) CreatePermission(ctx context.Context, actorID int64, in PermissionInput) (rbac.Permission, error) {
	resource := strings.ToLower(strings.TrimSpace(in.Resource))
	action := strings.ToLower(strings.TrimSpace(in.Action))
	fields := map[string]string{}
	if !rbac.ValidToken(resource) {
		fields["resource"] = "must be lowercase letters and underscores"
	}
	if !rbac.ValidToken(action) {
		fields["action"] = "must be lowercase letters and underscores"
	}
	if len(fields) > 0 {
		return rbac.Permission{}, &rbac.ValidationError{Fields: fields}
	}
	p := rbac.Permission{
		Name:        in.Name,
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(in.Description),
	}.Canonical()
	if in.Name != "" && in.Name != p.Name {
		s.logger.Debug("permission name canonicalised", slog.String("supplied", in.Name), slog.String("name", p.Name))
	}
	created, err := s.repo.InsertPermission(ctx, p)
	if err != nil {
		return rbac.Permission{}, err
	}
	s.record(ctx, actorID, "permission.create", "permission", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// DeletePermission removes a permission and every grant of it.
func (s *Service) DeletePermission(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.delete", "permission", id, nil)
	return nil
}

// AttachPermission grants one permission to a role.
func (s *Service) AttachPermission(ctx context.Context, actorID, roleID, permissionID int64) error {
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.permission.attach", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// DetachPermission revokes one permission from a role.
func (s *Service) DetachPermission(ctx context.Context, actorID, roleID, permissionID int64) error {
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.permission.detach", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// SetRolePermissions replaces a role's permissions atomically. Duplicate ids
// are collapsed.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) (rbac.Role, error) {
	ids := dedupeIDs(permissionIDs)
	if err := s.repo.ReplacePermissions(ctx, roleID, ids); err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, "role.permission.set", "role", roleID, map[string]any{"permission_ids": ids})
	return s.repo.GetRole(ctx, roleID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeRoleInput(in RoleInput) RoleInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func validateRoleName(name string) error {
	if !rbac.ValidRoleName(name) {
		return rbac.NewValidationError("name", "must be lowercase letters, digits, hyphen or underscore")
	}
	return nil
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
