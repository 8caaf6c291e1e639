package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("rbac: conflict")
	// ErrRoleInUse indicates a role still assigned to users.
	ErrRoleInUse = errors.New("rbac: role in use")
	// ErrSystemRole indicates an attempt to delete or rename a system role.
	ErrSystemRole = errors.New("rbac: system role is immutable")
	// ErrSelfModification indicates a user acting on their own account or roles.
	ErrSelfModification = errors.New("rbac: cannot modify own account")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("rbac: validation failed")
)

// RoleInUseError reports how many assignments block a role deletion.
type RoleInUseError struct {
	Role  string
	Count int
}

func (e *RoleInUseError) Error() string {
	if e.Count <= 0 {
		return fmt.Sprintf("role %q is assigned to users", e.Role)
	}
	return fmt.Sprintf("role %q is assigned to %d user(s)", e.Role, e.Count)
}

func (e *RoleInUseError) Unwrap() error { return ErrRoleInUse }

// ValidationError carries field-level detail for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError wraps ErrConflict with a descriptive reason.
func ConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// IsDomainError reports whether err is an expected, caller-recoverable condition.
func IsDomainError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrConflict, ErrRoleInUse, ErrSystemRole, ErrSelfModification, ErrValidation} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
