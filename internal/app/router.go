package app

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-admin/internal/access"
	audithttp "github.com/odyssey-erp/odyssey-admin/internal/audit/http"
	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/observability"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/roles"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/internal/users"
	"github.com/odyssey-erp/odyssey-admin/internal/view"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           *access.Gate
	AuthHandler    *auth.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audithttp.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	Ready          func(r *http.Request) error
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Gate:           params.Gate,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		switch {
		case id == nil:
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		case len(id.Roles) == 0:
			http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
		default:
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		}
	})

	pages := pageHandler{logger: params.Logger, templates: params.Templates}
	guard := rbac.Middleware{Logger: params.Logger}
	r.Get("/unauthorized", pages.render("pages/unauthorized.html", "Access denied", http.StatusForbidden))
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", pages.render("pages/dashboard.html", "Dashboard", http.StatusOK))
		r.With(guard.RequireRole(rbac.RoleAdmin)).
			Get("/admin", pages.render("pages/dashboard.html", "Admin dashboard", http.StatusOK))
		r.With(guard.RequireRole(rbac.RoleManager)).
			Get("/manager", pages.render("pages/dashboard.html", "Manager dashboard", http.StatusOK))
		r.With(guard.RequireRole(rbac.RoleCustomer)).
			Get("/customer", pages.render("pages/dashboard.html", "Customer dashboard", http.StatusOK))
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/api/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/api/roles", params.RolesHandler.MountRoutes)
		r.Route("/api/permissions", params.RolesHandler.MountPermissionRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/api/audit-logs", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	})

	return r
}

type pageHandler struct {
	logger    *slog.Logger
	templates *view.Engine
}

// render serves a page whose content depends only on the caller's snapshot.
func (p pageHandler) render(name, title string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := view.TemplateData{
			Title:       title,
			CurrentPath: r.URL.Path,
			Identity:    rbac.IdentityFromContext(r.Context()),
		}
		var buf bytes.Buffer
		if err := p.templates.Render(&buf, name, data); err != nil {
			p.logger.Error("render page", slog.String("page", name), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = buf.WriteTo(w)
	}
}
