// Package config defines the service configuration and its YAML loader.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Embedder EmbedderConfig `yaml:"embedder"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Agent    AgentConfig    `yaml:"agent"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Model name (e.g., "text-embedding-3-small").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Dimension is the expected embedding dimension.
	Dimension int `yaml:"dimension,omitempty"`

	// TimeoutSeconds bounds a single embedding request.
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	// Model name (e.g., "gpt-4o").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// TimeoutSeconds bounds a single completion request.
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// SearchConfig holds the hybrid search tuning knobs.
type SearchConfig struct {
	// Limit is the default number of results returned.
	Limit int `yaml:"limit,omitempty"`

	// Preselect is the size of the vector candidate pool.
	Preselect int `yaml:"preselect,omitempty"`

	// Alpha weights vector similarity against full-text rank (0..1).
	Alpha *float64 `yaml:"alpha,omitempty"`
}

// AgentConfig configures the tool-calling agent loop.
type AgentConfig struct {
	// MaxTurns is the default inference-call ceiling per invocation.
	MaxTurns int `yaml:"max_turns,omitempty"`
}

// AuthConfig configures JWT issuance and validation.
type AuthConfig struct {
	// Secret signs and verifies tokens. Supports ${VAR} expansion.
	Secret string `yaml:"secret,omitempty"`

	// Issuer is the expected "iss" claim.
	Issuer string `yaml:"issuer,omitempty"`

	// TokenTTLMinutes is the lifetime of issued tokens.
	TokenTTLMinutes int `yaml:"token_ttl_minutes,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}

	c.Database.SetDefaults()

	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Embedder.BaseURL == "" {
		c.Embedder.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1536
	}
	if c.Embedder.TimeoutSeconds == 0 {
		c.Embedder.TimeoutSeconds = 30
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Temperature == nil {
		temp := 0.7
		c.LLM.Temperature = &temp
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}

	if c.Search.Limit == 0 {
		c.Search.Limit = 10
	}
	if c.Search.Preselect == 0 {
		c.Search.Preselect = 200
	}
	if c.Search.Alpha == nil {
		alpha := 0.7
		c.Search.Alpha = &alpha
	}

	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = 5
	}

	if c.Auth.Secret == "" {
		c.Auth.Secret = os.Getenv("JWT_SECRET")
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "scholium"
	}
	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Embedder.Model == "" {
		return fmt.Errorf("embedder: model is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm: model is required")
	}

	if c.Search.Limit < 1 {
		return fmt.Errorf("search: limit must be positive")
	}
	if c.Search.Preselect < 1 {
		return fmt.Errorf("search: preselect must be positive")
	}
	if a := *c.Search.Alpha; a < 0 || a > 1 {
		return fmt.Errorf("search: alpha must be in [0, 1], got %g", a)
	}

	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent: max_turns must be positive")
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("auth: secret is required")
	}

	return nil
}

// Load reads a YAML config file, expands environment references, applies
// defaults, and validates the result. A .env file next to the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes raw YAML into a processed Config.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
