package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"PORT", "HOST", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "OPENROUTER_TIMEOUT",
	"LOG_LEVEL", "CORS_ORIGINS", "REFERER_URL", "APP_NAME", "MAX_CONTENT_LENGTH",
	"META_MODEL", "DEFAULT_MODEL", "ROUTING_TIMEOUT", "ROUTING_RETRIES", "COMPLETION_TIMEOUT",
	"ENABLE_PERSISTENCE", "DATABASE_DRIVER", "DATABASE_URL", "METRICS_ENABLED", "METRICS_PATH",
}

// clearEnv unsets every variable the loader reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "test-api-key")

	config, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "test-api-key", config.LLMProvider.APIKey)
	assert.Equal(t, "https://openrouter.ai/api/v1", config.LLMProvider.BaseURL)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, []string{"*"}, config.Server.CorsOrigins)
	assert.Equal(t, 50000, config.Server.MaxContentLength)

	assert.Equal(t, "openai/gpt-oss-20b:free", config.Router.MetaModel)
	assert.Empty(t, config.Router.DefaultModel)
	assert.Equal(t, 10*time.Second, config.Router.RoutingTimeout)
	assert.Equal(t, 1, config.Router.RoutingRetries)
	assert.Equal(t, 120*time.Second, config.Router.CompletionTimeout)

	assert.False(t, config.Database.EnablePersistence)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "/metrics", config.Metrics.Path)

	c, err := config.BuildCatalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"openai/gpt-oss-20b:free", "anthropic/claude-sonnet-4", "openai/gpt-5-mini"}, c.IDs())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	envVars := map[string]string{
		"PORT":                "3000",
		"HOST":                "localhost",
		"OPENROUTER_API_KEY":  "custom-api-key",
		"OPENROUTER_BASE_URL": "https://custom.openrouter.ai/api/v1",
		"LOG_LEVEL":           "debug",
		"CORS_ORIGINS":        "https://example.com, https://test.com,   https://dev.com",
		"APP_NAME":            "CustomApp",
		"DEFAULT_MODEL":       "openai/gpt-5-mini",
		"ROUTING_TIMEOUT":     "3s",
		"ROUTING_RETRIES":     "0",
		"COMPLETION_TIMEOUT":  "45s",
		"DATABASE_DRIVER":     "sqlite",
		"METRICS_ENABLED":     "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	config, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "3000", config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "custom-api-key", config.LLMProvider.APIKey)
	assert.Equal(t, "https://custom.openrouter.ai/api/v1", config.LLMProvider.BaseURL)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, []string{"https://example.com", "https://test.com", "https://dev.com"}, config.Server.CorsOrigins)
	assert.Equal(t, "CustomApp", config.Server.AppName)
	assert.Equal(t, "openai/gpt-5-mini", config.Router.DefaultModel)
	assert.Equal(t, 3*time.Second, config.Router.RoutingTimeout)
	assert.Equal(t, 0, config.Router.RoutingRetries)
	assert.Equal(t, 45*time.Second, config.Router.CompletionTimeout)
	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.False(t, config.Metrics.Enabled)
}

func TestLoadYAML_FileWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_ROUTER_KEY", "from-env")

	path := writeConfig(t, `
llm_provider:
  api_key: ${TEST_ROUTER_KEY}
router:
  meta_model: openai/gpt-oss-20b:free
  default_model: acme/fast
  routing_timeout: 4s
catalog:
  - id: acme/fast
    summary: Fast and cheap.
    context_window: 32000
    price_input_per_million: "0.10"
    price_output_per_million: "0.40"
  - id: acme/free
    summary: Free tier.
    context_window: 8000
`)

	config, err := LoadYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.LLMProvider.APIKey)
	assert.Equal(t, 4*time.Second, config.Router.RoutingTimeout)
	assert.Equal(t, 120*time.Second, config.Router.CompletionTimeout, "missing keys keep defaults")
	assert.Equal(t, "8080", config.Server.Port)

	c, err := config.BuildCatalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/fast", "acme/free"}, c.IDs())

	fast, ok := c.Lookup("acme/fast")
	require.True(t, ok)
	assert.True(t, fast.PriceOutputPerMillion.Equal(decimal.RequireFromString("0.4")))

	free, ok := c.Lookup("acme/free")
	require.True(t, ok)
	assert.True(t, free.IsFree())
}

func TestLoadYAML_InvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "router: [unclosed")

	_, err := LoadYAML(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		contains []string
	}{
		{
			name:     "missing api key",
			contains: []string{"OPENROUTER_API_KEY is required"},
		},
		{
			name:     "default model outside catalog",
			env:      map[string]string{"OPENROUTER_API_KEY": "k", "DEFAULT_MODEL": "meta/llama-4"},
			contains: []string{`DEFAULT_MODEL "meta/llama-4" is not in the catalog`},
		},
		{
			name: "retries and timeouts aggregated",
			env: map[string]string{
				"OPENROUTER_API_KEY": "k",
				"ROUTING_RETRIES":    "5",
				"ROUTING_TIMEOUT":    "0s",
			},
			contains: []string{"ROUTING_RETRIES must be between 0 and 3", "ROUTING_TIMEOUT must be positive"},
		},
		{
			name:     "unknown driver",
			env:      map[string]string{"OPENROUTER_API_KEY": "k", "DATABASE_DRIVER": "mysql"},
			contains: []string{"DATABASE_DRIVER must be postgres or sqlite"},
		},
		{
			name: "duplicate catalog ids",
			yaml: `
catalog:
  - id: acme/a
  - id: acme/a
`,
			env:      map[string]string{"OPENROUTER_API_KEY": "k"},
			contains: []string{"invalid catalog", "duplicate model id"},
		},
		{
			name: "bad price",
			yaml: `
catalog:
  - id: acme/a
    price_input_per_million: "cheap"
`,
			env:      map[string]string{"OPENROUTER_API_KEY": "k"},
			contains: []string{`model "acme/a" input price`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}

			_, err := LoadYAML(path)
			require.Error(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	tests := []struct {
		name     string
		db       DatabaseConfig
		expected string
	}{
		{
			name:     "explicit url wins",
			db:       DatabaseConfig{Driver: "postgres", URL: "postgres://u:p@db:5432/router", Host: "ignored"},
			expected: "postgres://u:p@db:5432/router",
		},
		{
			name:     "postgres from parts",
			db:       DatabaseConfig{Driver: "postgres", Host: "localhost", Port: "5432", User: "u", Password: "p", Name: "router", SSLMode: "disable"},
			expected: "host=localhost port=5432 user=u password=p dbname=router sslmode=disable",
		},
		{
			name:     "sqlite file from name",
			db:       DatabaseConfig{Driver: "sqlite", Name: "llm-router"},
			expected: "llm-router.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{Database: tt.db}
			assert.Equal(t, tt.expected, config.GetDatabaseDSN())
		})
	}
}
