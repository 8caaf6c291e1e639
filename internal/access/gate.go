package access

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// Outcome is the terminal state of a gated request.
type Outcome int

const (
	Allowed Outcome = iota
	DeniedUnauthenticated
	DeniedUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case DeniedUnauthenticated:
		return "denied_unauthenticated"
	case DeniedUnauthorized:
		return "denied_unauthorized"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one request.
type Decision struct {
	Outcome  Outcome
	Redirect string
	Pattern  string
	Identity *rbac.Identity
}

// Allowed reports whether the request may reach its handler.
func (d Decision) Allowed() bool { return d.Outcome == Allowed }

// DecisionRecorder receives every decision, typically for metrics.
type DecisionRecorder interface {
	RecordAccessDecision(outcome, pattern string)
}

// Config wires a Gate.
type Config struct {
	Policy           *Policy
	Identity         IdentityProvider
	Logger           *slog.Logger
	Recorder         DecisionRecorder
	LoginPath        string
	UnauthorizedPath string
}

// Gate enforces the policy table in front of every route. It only reads the
// identity snapshot; it never loads roles from storage.
type Gate struct {
	policy           *Policy
	identity         IdentityProvider
	logger           *slog.Logger
	recorder         DecisionRecorder
	loginPath        string
	unauthorizedPath string
}

// NewGate constructs a Gate.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		policy:           cfg.Policy,
		identity:         cfg.Identity,
		logger:           cfg.Logger,
		recorder:         cfg.Recorder,
		loginPath:        cfg.LoginPath,
		unauthorizedPath: cfg.UnauthorizedPath,
	}
	if g.policy == nil {
		g.policy = MustPolicy(DefaultRules(), true)
	}
	if g.identity == nil {
		g.identity = SessionProvider{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.loginPath == "" {
		g.loginPath = "/auth/login"
	}
	if g.unauthorizedPath == "" {
		g.unauthorizedPath = "/unauthorized"
	}
	return g
}

// Decide evaluates a path for an identity. It performs no I/O.
func (g *Gate) Decide(requestPath, rawQuery string, id *rbac.Identity) Decision {
	cleaned := CleanPath(requestPath)
	check, pattern := g.policy.CheckFor(cleaned)
	switch {
	case check.Kind == Public:
		return Decision{Outcome: Allowed, Pattern: pattern, Identity: id}
	case id == nil:
		return Decision{Outcome: DeniedUnauthenticated, Pattern: pattern, Redirect: g.loginRedirect(cleaned, rawQuery)}
	case !check.Allows(id):
		return Decision{Outcome: DeniedUnauthorized, Pattern: pattern, Redirect: g.unauthorizedPath, Identity: id}
	default:
		return Decision{Outcome: Allowed, Pattern: pattern, Identity: id}
	}
}

// Handle identifies the caller and decides. An identity error is treated as
// anonymous.
func (g *Gate) Handle(r *http.Request) Decision {
	id, err := g.identity.Identify(r)
	if err != nil {
		g.logger.Debug("access identity rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
		id = nil
	}
	return g.Decide(r.URL.Path, r.URL.RawQuery, id)
}

// Middleware runs the gate before routing. Browsers are redirected; API
// callers receive a problem response carrying the same outcome.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Handle(r)
		if g.recorder != nil {
			g.recorder.RecordAccessDecision(decision.Outcome.String(), decision.Pattern)
		}

		if decision.Allowed() {
			if decision.Identity != nil {
				r = r.WithContext(rbac.ContextWithIdentity(r.Context(), decision.Identity))
			}
			next.ServeHTTP(w, r)
			return
		}

		attrs := []any{slog.String("path", r.URL.Path), slog.String("outcome", decision.Outcome.String()), slog.String("pattern", decision.Pattern)}
		if decision.Identity != nil {
			attrs = append(attrs, slog.Int64("user_id", decision.Identity.UserID))
		}
		g.logger.Info("access denied", attrs...)

		if httpx.WantsJSON(r) {
			if decision.Outcome == DeniedUnauthenticated {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permission")
			return
		}
		http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
	})
}

func (g *Gate) loginRedirect(cleaned, rawQuery string) string {
	next := cleaned
	if rawQuery != "" {
		next += "?" + rawQuery
	}
	return g.loginPath + "?" + url.Values{"next": {next}}.Encode()
}
