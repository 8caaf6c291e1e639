package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/mailer"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

type stubRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
	hashes map[int64]string
	roles  map[int64]rbac.Role
	grants map[int64]map[int64]struct{}
}

func newStubRepo() *stubRepo {
	s := &stubRepo{
		users:  map[int64]User{},
		hashes: map[int64]string{},
		roles:  map[int64]rbac.Role{},
		grants: map[int64]map[int64]struct{}{},
	}
	for i, name := range rbac.SystemRoles() {
		id := int64(100 + i)
		s.roles[id] = rbac.Role{ID: id, Name: name}
	}
	return s
}

func (s *stubRepo) roleID(name string) int64 {
	for id, r := range s.roles {
		if r.Name == name {
			return id
		}
	}
	return 0
}

func (s *stubRepo) withRolesLocked(u User) User {
	u.Roles = nil
	for id := range s.grants[u.ID] {
		u.Roles = append(u.Roles, s.roles[id])
	}
	sort.Slice(u.Roles, func(i, j int) bool { return u.Roles[i].Name < u.Roles[j].Name })
	return u
}

func (s *stubRepo) ListUsers(context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, s.withRolesLocked(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) GetUser(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, rbac.ErrNotFound
	}
	return s.withRolesLocked(u), nil
}

func (s *stubRepo) FindRoleByName(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := s.roleID(name); id != 0 {
		return id, nil
	}
	return 0, rbac.ErrNotFound
}

func (s *stubRepo) InsertUser(_ context.Context, in NewUser, roleIDs []int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == in.Email {
			return User{}, rbac.ConflictError("email %q is already registered", in.Email)
		}
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return User{}, rbac.ErrNotFound
		}
	}
	s.nextID++
	now := time.Now()
	u := User{ID: s.nextID, Email: in.Email, Name: in.Name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.hashes[u.ID] = in.PasswordHash
	s.grants[u.ID] = map[int64]struct{}{}
	for _, id := range roleIDs {
		s.grants[u.ID][id] = struct{}{}
	}
	return s.withRolesLocked(u), nil
}

func (s *stubRepo) UpdateUser(_ context.Context, id int64, in UpdateInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, rbac.ErrNotFound
	}
	if in.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Email == *in.Email {
				return User{}, rbac.ConflictError("email is already registered")
			}
		}
		u.Email = *in.Email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	s.users[id] = u
	return s.withRolesLocked(u), nil
}

func (s *stubRepo) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.users, id)
	delete(s.grants, id)
	return nil
}

func (s *stubRepo) ReplaceUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return rbac.ErrNotFound
	}
	next := map[int64]struct{}{}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return rbac.ErrNotFound
		}
		next[id] = struct{}{}
	}
	s.grants[userID] = next
	return nil
}

func (s *stubRepo) AssignRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return rbac.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	s.grants[userID][roleID] = struct{}{}
	return nil
}

func (s *stubRepo) RemoveRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[userID][roleID]; !ok {
		return rbac.ErrNotFound
	}
	delete(s.grants[userID], roleID)
	return nil
}

type revokerSpy struct {
	mu      sync.Mutex
	revoked []int64
}

func (r *revokerSpy) RevokeUser(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, userID)
	return 1, nil
}

type queueSpy struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (q *queueSpy) EnqueueMail(_ context.Context, msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *queueSpy) templates() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, m.Template)
	}
	return out
}
