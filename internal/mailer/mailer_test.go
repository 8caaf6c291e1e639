package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeWelcome(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)

	msg, err := c.Compose(TemplateWelcome, "ana@example.com", Data{
		Name:     "Ana",
		LoginURL: "https://admin.example.com/auth/login",
		Roles:    []string{"customer", "manager"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Welcome to Odyssey Admin", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Ana,")
	assert.Contains(t, msg.Body, "Roles: customer, manager")
	assert.Contains(t, msg.Body, "https://admin.example.com/auth/login")
	assert.Equal(t, TemplateWelcome, msg.Template)
}

func TestComposeRolesChangedFallsBackToEmail(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)

	msg, err := c.Compose(TemplateRolesChanged, "bo@example.com", Data{})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "Hello bo@example.com,")
	assert.Contains(t, msg.Body, "(none)")
}

func TestComposeErrors(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)

	_, err = c.Compose("missing", "a@example.com", Data{})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = c.Compose(TemplateWelcome, " ", Data{})
	assert.Error(t, err)
}

func TestComposerRejectsIncompleteTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"mail/broken.txt": {Data: []byte(`{{define "subject"}}hi{{end}}`)},
	}
	_, err := NewComposerFS(fsys, "mail")
	assert.Error(t, err)
}

func TestFormatMessageStripsHeaderInjection(t *testing.T) {
	raw := string(FormatMessage("noreply@example.com", Message{
		To:      "a@example.com\r\nBcc: evil@example.com",
		Subject: "Hi\nX-Injected: 1",
		Body:    "line one\nline two",
	}))
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.NotContains(t, raw, "\r\nX-Injected:")
	assert.True(t, strings.HasSuffix(raw, "line one\r\nline two"))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Template: TemplateWelcome}))
	assert.Contains(t, buf.String(), "to=a@example.com")
	assert.Contains(t, buf.String(), "template=welcome")
}

func TestNewSMTPSenderValidates(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "localhost", From: "noreply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, s.cfg.Port)
}
