package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/internal/view"
)

const defaultLanding = "/dashboard"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	tokens         *TokenManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, tokens *TokenManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		tokens:         tokens,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/token", h.handleToken)
	r.Get("/me", h.handleMe)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Next     string `json:"next"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

// IdentityResponse is the JSON view of an identity snapshot.
type IdentityResponse struct {
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"issued_at"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newIdentityResponse(id *rbac.Identity) IdentityResponse {
	roles := id.RoleNames()
	sort.Strings(roles)
	return IdentityResponse{
		UserID:      id.UserID,
		Email:       id.Email,
		Roles:       roles,
		Permissions: id.Permissions().Names(),
		IssuedAt:    id.IssuedAt,
	}
}

// handleCSRF hands JSON clients the token they must echo in X-CSRF-Token.
func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginPageData{Form: loginForm{Next: r.URL.Query().Get("next")}})
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	wantsJSON := httpx.WantsJSON(r)
	var form loginForm
	if wantsJSON {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.RespondError(w, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		form = loginForm{
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
			Next:     r.PostFormValue("next"),
		}
	}

	if err := httpx.Validate(h.validator, form); err != nil {
		var verr *rbac.ValidationError
		if !errors.As(err, &verr) {
			httpx.RespondError(w, err)
			return
		}
		h.loginFailed(w, r, wantsJSON, form, verr)
		return
	}

	identity, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
			if wantsJSON {
				httpx.RespondError(w, err)
				return
			}
		}
		h.loginFailed(w, r, wantsJSON, form, nil)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session unavailable"))
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetIdentity(identity)
	sess.Delete(shared.CSRFSessionKey)
	rec := SessionRecord{
		ID:        sess.ID,
		UserID:    identity.UserID,
		ExpiresAt: time.Now().Add(h.sessionManager.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.service.RegisterSession(r.Context(), rec); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("login", slog.Int64("user_id", identity.UserID), slog.Any("roles", identity.RoleNames()))

	if wantsJSON {
		httpx.JSON(w, http.StatusOK, newIdentityResponse(identity))
		return
	}
	http.Redirect(w, r, SafeNext(form.Next), http.StatusSeeOther)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, wantsJSON bool, form loginForm, verr *rbac.ValidationError) {
	if wantsJSON {
		if verr != nil {
			httpx.RespondError(w, verr)
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	errs := map[string]string{"general": "Invalid email or password"}
	if verr != nil {
		errs = verr.Fields
	}
	form.Password = ""
	h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.Identity() != nil {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// handleRefresh re-resolves the caller's snapshot from the store. Session
// callers get their session updated; bearer callers get a new token.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	current := rbac.IdentityFromContext(r.Context())
	if current == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	fromSession := sess.Identity() != nil && sess.Identity().UserID == current.UserID

	fresh, err := h.service.ResolveIdentity(r.Context(), current.UserID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			if fromSession {
				h.sessionManager.Destroy(sess)
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("refresh identity", slog.Int64("user_id", current.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if fromSession {
		sess.SetIdentity(fresh)
		httpx.JSON(w, http.StatusOK, newIdentityResponse(fresh))
		return
	}
	h.issueToken(w, fresh)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	current := rbac.IdentityFromContext(r.Context())
	if current == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	h.issueToken(w, current)
}

func (h *Handler) issueToken(w http.ResponseWriter, id *rbac.Identity) {
	if h.tokens == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "bearer tokens are disabled")
		return
	}
	token, expiresAt, err := h.tokens.Issue(id)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	current := rbac.IdentityFromContext(r.Context())
	if current == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, newIdentityResponse(current))
}

// SafeNext returns next when it is a local absolute path, otherwise the
// default landing page.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return defaultLanding
	}
	return next
}
