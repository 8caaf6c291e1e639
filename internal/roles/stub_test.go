package roles

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
)

type stubRepo struct {
	mu          sync.Mutex
	nextID      int64
	roles       map[int64]rbac.Role
	perms       map[int64]rbac.Permission
	grants      map[int64]map[int64]struct{}
	assignments map[int64]int
	deleted     []string
}

func newStubRepo() *stubRepo {
	repo := &stubRepo{
		roles:       map[int64]rbac.Role{},
		perms:       map[int64]rbac.Permission{},
		grants:      map[int64]map[int64]struct{}{},
		assignments: map[int64]int{},
	}
	for _, p := range rbac.Catalog() {
		repo.nextID++
		p.ID = repo.nextID
		repo.perms[p.ID] = p
	}
	for _, name := range rbac.SystemRoles() {
		repo.nextID++
		repo.roles[repo.nextID] = rbac.Role{ID: repo.nextID, Name: name}
	}
	return repo
}

func (s *stubRepo) roleByName(name string) rbac.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r
		}
	}
	return rbac.Role{}
}

func (s *stubRepo) permByName(name string) rbac.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Name == name {
			return p
		}
	}
	return rbac.Permission{}
}

func (s *stubRepo) ListRoles(context.Context) ([]RoleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoleSummary, 0, len(s.roles))
	for id, r := range s.roles {
		out = append(out, RoleSummary{Role: r, UserCount: s.assignments[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubRepo) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	r.Permissions = nil
	for pid := range s.grants[id] {
		r.Permissions = append(r.Permissions, s.perms[pid])
	}
	sort.Slice(r.Permissions, func(i, j int) bool { return r.Permissions[i].Name < r.Permissions[j].Name })
	return r, nil
}

func (s *stubRepo) InsertRole(_ context.Context, in RoleInput) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == in.Name {
			return rbac.Role{}, rbac.ConflictError("role %q already exists", in.Name)
		}
	}
	s.nextID++
	r := rbac.Role{ID: s.nextID, Name: in.Name, Description: in.Description}
	s.roles[r.ID] = r
	return r, nil
}

func (s *stubRepo) UpdateRole(_ context.Context, id int64, in RoleInput) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	r.Name, r.Description = in.Name, in.Description
	s.roles[id] = r
	return r, nil
}

func (s *stubRepo) CountRoleUsers(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[id], nil
}

func (s *stubRepo) DeleteRole(_ context.Context, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.roles, role.ID)
	delete(s.grants, role.ID)
	s.deleted = append(s.deleted, role.Name)
	return nil
}

func (s *stubRepo) ListPermissions(context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubRepo) InsertPermission(_ context.Context, p rbac.Permission) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.perms {
		if existing.Name == p.Name {
			return rbac.Permission{}, rbac.ConflictError("permission %q already exists", p.Name)
		}
	}
	s.nextID++
	p.ID = s.nextID
	s.perms[p.ID] = p
	return p, nil
}

func (s *stubRepo) DeletePermission(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.perms, id)
	for _, set := range s.grants {
		delete(set, id)
	}
	return nil
}

func (s *stubRepo) AttachPermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachLocked(roleID, permissionID)
}

func (s *stubRepo) attachLocked(roleID, permissionID int64) error {
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	if _, ok := s.perms[permissionID]; !ok {
		return rbac.ErrNotFound
	}
	if s.grants[roleID] == nil {
		s.grants[roleID] = map[int64]struct{}{}
	}
	s.grants[roleID][permissionID] = struct{}{}
	return nil
}

func (s *stubRepo) DetachPermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.grants[roleID], permissionID)
	return nil
}

func (s *stubRepo) ReplacePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	for _, id := range permissionIDs {
		if _, ok := s.perms[id]; !ok {
			return rbac.ErrNotFound
		}
	}
	s.grants[roleID] = map[int64]struct{}{}
	for _, id := range permissionIDs {
		_ = s.attachLocked(roleID, id)
	}
	return nil
}

type auditSpy struct {
	mu      sync.Mutex
	records []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, log)
	return nil
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.Action)
	}
	return out
}
