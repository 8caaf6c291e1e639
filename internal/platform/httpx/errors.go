// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// Sentinel errors for transport-level failures.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Unexpected
// errors are reported generically so internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	var validation *rbac.ValidationError
	var inUse *rbac.RoleInUseError
	switch {
	case errors.As(err, &validation):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: "one or more fields are invalid",
			Fields: validation.Fields,
		})
	case errors.As(err, &inUse):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:  "Role In Use",
			Status: http.StatusConflict,
			Detail: inUse.Error(),
			Count:  &inUse.Count,
		})
	case errors.Is(err, rbac.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, rbac.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, rbac.ErrSystemRole):
		Problem(w, http.StatusConflict, "System Role", "system roles cannot be deleted or renamed")
	case errors.Is(err, rbac.ErrSelfModification):
		Problem(w, http.StatusForbidden, "Self Modification", "you cannot change your own roles or delete your own account")
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "insufficient permission")
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
