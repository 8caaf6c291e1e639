package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AppEnv:             "development",
		AppBaseURL:         "https://admin.example.com",
		SessionSecret:      "session-secret",
		CSRFSecret:         "csrf-secret",
		TokenSecret:        strings.Repeat("t", 32),
		TokenTTL:           1,
		RateLimitPerMinute: 60,
		MailDriver:         "log",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("TOKEN_SECRET", strings.Repeat("k", 40))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.AccessDefaultPublic)
	assert.Equal(t, "odyssey_session", cfg.SessionCookie)
	assert.Equal(t, "log", cfg.MailDriver)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigAccessDefaultPublicOverride(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("TOKEN_SECRET", strings.Repeat("k", 40))
	t.Setenv("ACCESS_DEFAULT_PUBLIC", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.AccessDefaultPublic)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	cases := map[string]func(*Config){
		"session secret": func(c *Config) { c.SessionSecret = "" },
		"csrf secret":    func(c *Config) { c.CSRFSecret = "" },
		"short token":    func(c *Config) { c.TokenSecret = "short" },
		"token ttl":      func(c *Config) { c.TokenTTL = 0 },
		"rate limit":     func(c *Config) { c.RateLimitPerMinute = 0 },
		"mail driver":    func(c *Config) { c.MailDriver = "carrier-pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://admin.example.com/auth/login", cfg.LoginURL())
	cfg.AppEnv = "production"
	assert.True(t, cfg.IsProduction())
	var nilCfg *Config
	assert.False(t, nilCfg.IsProduction())
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()
	cfg.LogFormat = "json"
	newLogger(cfg, &buf).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	cfg.AppEnv = "production"
	cfg.LogFormat = "pretty"
	newLogger(cfg, &buf).Debug("hidden")
	assert.Empty(t, buf.String(), "debug is off in production")
	newLogger(cfg, &buf).Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
