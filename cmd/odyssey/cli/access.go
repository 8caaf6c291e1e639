package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-admin/internal/access"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
)

// ExplainOptions defines the flags of the access explain command.
type ExplainOptions struct {
	Path          string
	Roles         []string
	Permissions   []string
	Anonymous     bool
	DefaultPublic bool
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
}

// ExplainSummary is the JSON output of access explain.
type ExplainSummary struct {
	Path        string   `json:"path"`
	Outcome     string   `json:"outcome"`
	Pattern     string   `json:"pattern,omitempty"`
	Redirect    string   `json:"redirect,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ExplainCommand evaluates a path against the route policy for a synthetic
// caller. System roles carry their default grants. Exit code 10 means denied.
func ExplainCommand(opts ExplainOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Path) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "access explain: --path is required")
		return 1
	}
	policy, err := access.NewPolicy(access.DefaultRules(), opts.DefaultPublic)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "access explain: %v\n", err)
		return 1
	}
	gate := access.NewGate(access.Config{Policy: policy})

	var id *rbac.Identity
	if !opts.Anonymous {
		id = syntheticIdentity(opts.Roles, opts.Permissions)
	}
	path, query, _ := strings.Cut(opts.Path, "?")
	decision := gate.Decide(path, query, id)

	summary := ExplainSummary{
		Path:     access.CleanPath(path),
		Outcome:  decision.Outcome.String(),
		Pattern:  decision.Pattern,
		Redirect: decision.Redirect,
	}
	if id != nil {
		summary.Roles = id.RoleNames()
		summary.Permissions = id.Permissions().Names()
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "access explain: encode json: %v\n", err)
			return 1
		}
	} else {
		renderExplainHuman(opts.Stdout, summary)
	}
	if !decision.Allowed() {
		return 10
	}
	return 0
}

func syntheticIdentity(roles, perms []string) *rbac.Identity {
	grants := rbac.DefaultGrants()
	id := &rbac.Identity{UserID: -1, Email: "explain@local"}
	for _, name := range roles {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		role := rbac.Role{Name: name}
		for _, p := range grants[name] {
			role.Permissions = append(role.Permissions, rbac.Permission{Name: p})
		}
		id.Roles = append(id.Roles, role)
	}
	if len(perms) > 0 {
		extra := rbac.Role{Name: "adhoc"}
		for _, p := range perms {
			extra.Permissions = append(extra.Permissions, rbac.Permission{Name: strings.TrimSpace(p)})
		}
		id.Roles = append(id.Roles, extra)
	}
	return id
}

func renderExplainHuman(out io.Writer, s ExplainSummary) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "path\t%s\n", s.Path)
	pattern := s.Pattern
	if pattern == "" {
		pattern = "(default)"
	}
	_, _ = fmt.Fprintf(tw, "rule\t%s\n", pattern)
	_, _ = fmt.Fprintf(tw, "outcome\t%s\n", s.Outcome)
	if s.Redirect != "" {
		_, _ = fmt.Fprintf(tw, "redirect\t%s\n", s.Redirect)
	}
	if len(s.Roles) > 0 {
		_, _ = fmt.Fprintf(tw, "roles\t%s\n", strings.Join(s.Roles, ", "))
	}
	_ = tw.Flush()
}
