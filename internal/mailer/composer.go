package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/odyssey-erp/odyssey-admin/web"
)

const (
	// TemplateWelcome is sent when an administrator creates an account.
	TemplateWelcome = "welcome"
	// TemplateRolesChanged is sent after a user's role assignments change.
	TemplateRolesChanged = "roles_changed"
)

// ErrUnknownTemplate is returned for names with no embedded template.
var ErrUnknownTemplate = errors.New("mailer: unknown template")

// Message is a rendered plain-text email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template,omitempty"`
}

// Data feeds the email templates.
type Data struct {
	Name     string
	Email    string
	LoginURL string
	Roles    []string
}

// Composer renders embedded email templates. Each template file defines a
// "subject" and a "body" block, so every file gets its own template set.
type Composer struct {
	templates map[string]*template.Template
}

// NewComposer parses the embedded mail templates.
func NewComposer() (*Composer, error) {
	return NewComposerFS(web.Mail, "mail")
}

// NewComposerFS parses every *.txt file under dir of fsys.
func NewComposerFS(fsys fs.FS, dir string) (*Composer, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	c := &Composer{templates: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".txt")
		tpl, err := template.New(name).Funcs(template.FuncMap{"join": strings.Join}).ParseFS(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("mailer: parse %s: %w", file, err)
		}
		if tpl.Lookup("subject") == nil || tpl.Lookup("body") == nil {
			return nil, fmt.Errorf("mailer: %s must define subject and body", file)
		}
		c.templates[name] = tpl
	}
	return c, nil
}

// Compose renders the named template for recipient to.
func (c *Composer) Compose(name, to string, data Data) (Message, error) {
	tpl, ok := c.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if strings.TrimSpace(to) == "" {
		return Message{}, errors.New("mailer: recipient required")
	}
	if data.Email == "" {
		data.Email = to
	}
	var subject, body bytes.Buffer
	if err := tpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, fmt.Errorf("mailer: render %s subject: %w", name, err)
	}
	if err := tpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, fmt.Errorf("mailer: render %s body: %w", name, err)
	}
	return Message{
		To:       to,
		Subject:  strings.TrimSpace(subject.String()),
		Body:     body.String(),
		Template: name,
	}, nil
}
