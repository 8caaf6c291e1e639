package view

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	CurrentPath string
	Identity    *rbac.Identity
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(Funcs()).ParseFS(web.Templates, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Funcs exposes the permission predicates to templates so pages can hide
// controls the viewer cannot use.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"can": func(id *rbac.Identity, permission string) bool {
			if id == nil {
				return false
			}
			return rbac.HasPermission(id.Roles, permission)
		},
		"hasRole": func(id *rbac.Identity, role string) bool {
			if id == nil {
				return false
			}
			return rbac.HasRole(id.Roles, role)
		},
	}
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}
