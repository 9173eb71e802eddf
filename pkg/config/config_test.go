package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 1000
  temperature: 0.5

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 768

index:
  backend: "pgvector"
  top_k: 6

server:
  addr: ":9090"
  max_upload_mb: 5
  cookie_secret: "0123456789abcdef"
  session_ttl: 30m

xero:
  client_id: "cid"
  client_secret: "secret"
  redirect_url: "http://localhost:9090/xero"
  scopes: "openid accounting.transactions"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "ollama", config.Embedder.Provider)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedder.Model)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, "pgvector", config.Index.Backend)
	assert.Equal(t, 6, config.Index.TopK)
	assert.Equal(t, 30*time.Minute, config.Server.SessionTTL)
	assert.Equal(t, "https://identity.xero.com/connect/token", config.Xero.TokenURL)
	assert.True(t, config.Xero.Enabled())
}

func TestConfigDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "openai", config.Embedder.Provider)
	assert.Equal(t, "memory", config.Index.Backend)
	assert.Equal(t, 4, config.Index.TopK)
	assert.Equal(t, 10, config.Server.MaxUploadMB)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.False(t, config.Xero.Enabled())
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.LLM.APIKey = "sk-test"
		c.Server.CookieSecret = "0123456789abcdef"
		applyDefaults(&c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "missing api key and bad ranges",
			mutate: func(c *Config) {
				c.LLM.APIKey = ""
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
			},
			errorMessages: []string{
				"llm.api_key: OPENAI_API_KEY is required",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "pgvector without database",
			mutate: func(c *Config) {
				c.Index.Backend = "pgvector"
			},
			errorMessages: []string{
				"database.url: database URL is required",
			},
		},
		{
			name: "half configured xero",
			mutate: func(c *Config) {
				c.Xero.ClientID = "cid"
				c.Xero.RedirectURL = "http://localhost:8080/xero"
			},
			errorMessages: []string{
				"xero: client_id and client_secret must be set together",
			},
		},
		{
			name: "short cookie secret",
			mutate: func(c *Config) {
				c.Server.CookieSecret = "short"
			},
			errorMessages: []string{
				"server.cookie_secret: cookie_secret must be at least 16 bytes",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			errors := c.Validate()
			require.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "9999")
	t.Setenv("API_XERO_CLIENT_ID", "env-client")
	t.Setenv("API_XERO_API_SECRET", "env-secret")
	t.Setenv("API_XERO_REDIRECT_URL", "http://localhost:9999/xero")
	t.Setenv("API_XERO_SCOPE", "offline_access accounting.transactions")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "sk-env", config.LLM.APIKey)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, ":9999", config.Server.Addr)
	assert.Equal(t, "env-client", config.Xero.ClientID)
	assert.Equal(t, "env-secret", config.Xero.ClientSecret)
	assert.Equal(t, "http://localhost:9999/xero", config.Xero.RedirectURL)
	assert.Equal(t, "offline_access accounting.transactions", config.Xero.Scopes)
}
