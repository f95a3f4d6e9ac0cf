package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9091", cfg.Server.MetricsAddr)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "dev", cfg.Log.Environment)
	assert.Equal(t, "llmgateway", cfg.Telemetry.ServiceName)
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_addr: ":9000"
providers:
  openai_api_key: yaml-key
  timeout: 10s
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "yaml-key", cfg.Providers.OpenAIAPIKey)
	assert.Equal(t, 10*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, ":9091", cfg.Server.MetricsAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  openai_api_key: yaml-key
`), 0o600))

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PROVIDER_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Providers.OpenAIAPIKey)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 45*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestBareSecondsTimeout(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "30")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)
}

func TestMissingFileIsError(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := Default()
	cfg.Providers.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.HTTPAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestAnyProviderConfigured(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.AnyProviderConfigured())
	cfg.Providers.DeepSeekAPIKey = "x"
	assert.True(t, cfg.AnyProviderConfigured())
}
