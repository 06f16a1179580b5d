package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daylife/internal/ics"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFillsDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
llm:
  model: mixtral-8x7b-32768
schedule:
  exempt_categories: []
ics:
  - url: https://example.com/a.ics
    name: Work
  - url: ""
    id: empty
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "mixtral-8x7b-32768", cfg.LLM.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, "8:00 AM", cfg.Schedule.DefaultWake)
	assert.Empty(t, cfg.Schedule.ExemptCategories)
	assert.NotNil(t, cfg.Schedule.ExemptCategories)
	assert.Equal(t, []ics.Source{{ID: "Work", URL: "https://example.com/a.ics"}}, cfg.Sources())
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())

	cfg.Timezone = "Nowhere/Invalid"
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  temperature: 0
rate_limit:
  requests_per_minute: 0
  burst: 0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Zero(t, cfg.RateLimit.RequestsPerMinute)
	assert.Zero(t, cfg.RateLimit.Burst)
	// Absent keys still take the defaults.
	assert.Equal(t, "llama3-70b-8192", cfg.LLM.Model)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
}

func TestLoadOmittedValuesUseDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, RateLimitConfig{RequestsPerMinute: 10, Burst: 5}, cfg.RateLimit)
	assert.Equal(t, 2*time.Minute, cfg.RefreshTimeout())
	assert.False(t, cfg.AllowRemoteImport)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestNormalizeNegativeValues(t *testing.T) {
	cfg := &Config{
		LLM:                   LLMConfig{Temperature: -1},
		RateLimit:             RateLimitConfig{RequestsPerMinute: -3},
		RefreshTimeoutSeconds: -5,
	}
	cfg.Normalize()

	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, -3, cfg.RateLimit.RequestsPerMinute, "a non-positive bound disables the limiter")
	assert.Equal(t, 120, cfg.RefreshTimeoutSeconds)
}

func TestRefreshTimeoutIndependentOfLLM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.TimeoutSeconds = 5
	cfg.RefreshTimeoutSeconds = 300

	assert.Equal(t, 5*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 5*time.Minute, cfg.RefreshTimeout())
}
