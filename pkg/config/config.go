package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Database DatabaseConfig `yaml:"database"`
	Index    IndexConfig    `yaml:"index"`
	Server   ServerConfig   `yaml:"server"`
	Xero     XeroConfig     `yaml:"xero"`
	Log      LogConfig      `yaml:"log"`
}

type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type EmbedderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type IndexConfig struct {
	// Backend is "memory" or "pgvector".
	Backend string `yaml:"backend"`
	TopK    int    `yaml:"top_k"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	MaxUploadMB  int           `yaml:"max_upload_mb"`
	CookieSecret string        `yaml:"cookie_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type XeroConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RedirectURL    string `yaml:"redirect_url"`
	Scopes         string `yaml:"scopes"`
	AuthorizeURL   string `yaml:"authorize_url"`
	TokenURL       string `yaml:"token_url"`
	APIBaseURL     string `yaml:"api_base_url"`
	ConnectionsURL string `yaml:"connections_url"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Enabled reports whether the Xero integration has credentials.
func (x XeroConfig) Enabled() bool {
	return x.ClientID != "" && x.ClientSecret != ""
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docbot/config.yaml"),
			"/etc/docbot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gpt-3.5-turbo"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.RequestsPerSecond == 0 {
		config.LLM.RequestsPerSecond = 1
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = config.LLM.Provider
	}
	if config.Embedder.Model == "" {
		switch config.Embedder.Provider {
		case "ollama":
			config.Embedder.Model = "nomic-embed-text:latest"
		default:
			config.Embedder.Model = "text-embedding-ada-002"
		}
	}
	if config.Embedder.Provider == "ollama" && config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "document_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "memory"
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 4
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 10
	}
	if config.Server.SessionTTL == 0 {
		config.Server.SessionTTL = 2 * time.Hour
	}

	if config.Xero.AuthorizeURL == "" {
		config.Xero.AuthorizeURL = "https://login.xero.com/identity/connect/authorize"
	}
	if config.Xero.TokenURL == "" {
		config.Xero.TokenURL = "https://identity.xero.com/connect/token"
	}
	if config.Xero.APIBaseURL == "" {
		config.Xero.APIBaseURL = "https://api.xero.com/api.xro/2.0"
	}
	if config.Xero.ConnectionsURL == "" {
		config.Xero.ConnectionsURL = "https://api.xero.com/connections"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if secret := os.Getenv("DOCBOT_COOKIE_SECRET"); secret != "" {
		config.Server.CookieSecret = secret
	}
	if v := os.Getenv("DOCBOT_SECURE_COOKIE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Server.SecureCookie = b
		}
	}
	if id := os.Getenv("API_XERO_CLIENT_ID"); id != "" {
		config.Xero.ClientID = id
	}
	if secret := os.Getenv("API_XERO_API_SECRET"); secret != "" {
		config.Xero.ClientSecret = secret
	}
	if redirect := os.Getenv("API_XERO_REDIRECT_URL"); redirect != "" {
		config.Xero.RedirectURL = redirect
	}
	if scope := os.Getenv("API_XERO_SCOPE"); scope != "" {
		config.Xero.Scopes = scope
	}
}
