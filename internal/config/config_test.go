package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstep/nlstep/pkg/schema"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nlstep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/auth/login", cfg.LoginPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.BaseURL)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login", cfg.LoginPath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
base_url: http://api.example.com
login_path: /login
request_timeout: 10s
log_level: debug
failure_phrases:
  - "i am unable to"
classifier:
  base_url: http://llm.example.com/v1
  model: small-router
browser:
  command: npx
  args: ["@playwright/mcp@latest"]
schedules:
  - name: nightly
    cron: "0 2 * * *"
    paths: ["features"]
    tags: "@api"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", cfg.BaseURL)
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, []string{"i am unable to"}, cfg.FailurePhrases)
	assert.Equal(t, "small-router", cfg.Classifier.Model)
	assert.Equal(t, "npx", cfg.Browser.Command)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "0 2 * * *", cfg.Schedules[0].Cron)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "base_url: http://from-file.test\n")
	t.Setenv("NLSTEP_BASE_URL", "http://from-env.test")
	t.Setenv("NLSTEP_REQUEST_TIMEOUT", "5s")
	t.Setenv("NLSTEP_BROWSER_COMMAND", "npx @playwright/mcp@latest")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env.test", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, "npx", cfg.Browser.Command)
	assert.Equal(t, []string{"@playwright/mcp@latest"}, cfg.Browser.Args)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "not_a_setting: true\n")
	_, err := Load(path)
	require.Error(t, err)
	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad log level":      "log_level: loud\n",
		"bad login path":     "login_path: login\n",
		"bad timeout":        "request_timeout: fast\n",
		"schedule sans name": "schedules:\n  - cron: \"* * * * *\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelError, Config{LogLevel: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "mystery"}.SlogLevel())
}
