package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./customers", cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Ledger.Driver)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, int64(8192), cfg.AI.MaxTokens)
	assert.Equal(t, "claude", cfg.ClaudeCLI.Path)
	assert.Equal(t, "sonnet", cfg.ClaudeCLI.Model)
	assert.Equal(t, 30, cfg.Budgets.Source.TimeoutSecs)
	assert.Equal(t, 300, cfg.Budgets.AI.TimeoutSecs)
	assert.Equal(t, 2, cfg.Budgets.AI.MaxRetries)
	assert.Equal(t, 8, cfg.Budgets.URLCheck.TimeoutSecs)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "pandoc", cfg.Render.PandocPath)
	assert.Equal(t, "pdftotext", cfg.DocText.PdfToTextPath)
	assert.Equal(t, 465, cfg.Mail.SMTPPort)
	assert.Equal(t, 10, cfg.Run.TailorLimit)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
data_dir: /srv/tenants
log:
  level: debug
  format: console
ledger:
  driver: sqlite
ai:
  provider: gemini
budgets:
  ai:
    timeout_secs: 120
    max_retries: 4
api_keys:
  adzuna_app_id: abc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobpipe.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/tenants", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 120, cfg.Budgets.AI.TimeoutSecs)
	assert.Equal(t, 4, cfg.Budgets.AI.MaxRetries)
	assert.Equal(t, 5000, cfg.Budgets.AI.BackoffMs)
	assert.Equal(t, "abc", cfg.APIKeys.AdzunaAppID)
}

func TestLoadExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /elsewhere\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", cfg.DataDir)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobpipe.yaml"), []byte("ledger:\n  driver: sqlite\n"), 0644))

	t.Setenv("JOBPIPE_LEDGER_DRIVER", "file")
	t.Setenv("JOBPIPE_ANTHROPIC_KEY", "sk-test")
	t.Setenv("JOBPIPE_MAIL_SENDER", "jobs@example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Ledger.Driver)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, "jobs@example.com", cfg.Mail.Sender)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown ledger driver", map[string]string{"JOBPIPE_LEDGER_DRIVER": "postgres"}},
		{"unknown ai provider", map[string]string{"JOBPIPE_AI_PROVIDER": "openai"}},
		{"bad sender", map[string]string{"JOBPIPE_MAIL_SENDER": "not-an-email"}},
		{"bad log format", map[string]string{"JOBPIPE_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestBudgetConversion(t *testing.T) {
	b := BudgetConfig{TimeoutSecs: 8, MaxRetries: 2, BackoffMs: 250}.Budget()
	assert.Equal(t, 8*time.Second, b.Timeout)
	assert.Equal(t, 2, b.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, b.BackoffBase)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerAutoFormat(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn"}))
	assert.Contains(t, []string{"console", "json"}, resolveFormat(""))
	assert.Equal(t, "json", resolveFormat("json"))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
