// Package config handles todochat configuration loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/todochat/config.yaml, /etc/todochat/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "todochat", "config.yaml"))
	}

	paths = append(paths, "/etc/todochat/config.yaml")
	return paths
}

// ExpandHome replaces a leading ~ with the user's home directory. Paths
// naming another user's home ("~bob/...") are returned unchanged.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all todochat configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	Models    ModelsConfig    `yaml:"models"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Agent     AgentConfig     `yaml:"agent"`
	Retry     RetryConfig     `yaml:"retry"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQL driver shared by the task store, the
// conversation log and the usage ledger.
type DatabaseConfig struct {
	// Driver is one of "sqlite3" (cgo, default), "sqlite" (pure Go) or
	// "postgres".
	Driver string `yaml:"driver"`
	// DSN is the driver-specific connection string. For the SQLite
	// drivers an empty DSN means <data_dir>/todochat.db.
	DSN string `yaml:"dsn"`
}

// ModelsConfig defines which model handles chat turns and which provider
// serves each known model name.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to a provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // openai, anthropic, ollama
}

// OpenAIConfig defines OpenAI (or OpenAI-compatible gateway) settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether an API key is present.
func (c OpenAIConfig) Configured() bool { return c.APIKey != "" }

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// OllamaConfig defines a local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether an Ollama URL is set.
func (c OllamaConfig) Configured() bool { return c.URL != "" }

// AgentConfig bounds the tool-orchestration loop.
type AgentConfig struct {
	MaxRounds    int           `yaml:"max_rounds"`
	HistoryLimit int           `yaml:"history_limit"`
	CallTimeout  time.Duration `yaml:"call_timeout"` // per reasoning-service attempt
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
	// ToolsEnabled turns the task tools off entirely; the assistant then
	// answers without being offered any tool. Defaults to true.
	ToolsEnabled *bool `yaml:"tools_enabled"`
}

// ToolsOn reports whether task tools should be offered to the model.
func (c AgentConfig) ToolsOn() bool {
	return c.ToolsEnabled == nil || *c.ToolsEnabled
}

// RetryConfig defines backoff for reasoning-service calls.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// AuthConfig defines bearer-token verification for the HTTP API.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// DevOwner, when set, is used as the owner for requests that carry no
	// token. Intended for local development only.
	DevOwner string `yaml:"dev_owner"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig is a per-owner token bucket for chat requests.
// A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads configuration from a YAML file. A .env file in the same
// directory is loaded first so that ${VAR} references can resolve to
// secrets kept out of the YAML. Variables already present in the
// environment take precedence over .env entries.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	// Derived defaults such as the SQLite DSN depend on data_dir, so
	// they are applied after the file is decoded.
	cfg := base()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := base()
	cfg.applyDefaults()
	return cfg
}

func base() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: "./data",
		Models: ModelsConfig{
			Default: "gpt-4o",
			Available: []ModelConfig{
				{Name: "gpt-4o", Provider: "openai"},
			},
		},
	}
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.DataDir = ExpandHome(c.DataDir)
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Driver != "postgres" {
		if c.Database.DSN == "" {
			c.Database.DSN = filepath.Join(c.DataDir, "todochat.db")
		}
		c.Database.DSN = ExpandHome(c.Database.DSN)
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "openai"
		}
	}
	if c.Agent.MaxRounds == 0 {
		c.Agent.MaxRounds = 5
	}
	if c.Agent.HistoryLimit == 0 {
		c.Agent.HistoryLimit = 10
	}
	if c.Agent.CallTimeout == 0 {
		c.Agent.CallTimeout = 60 * time.Second
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 500
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 2 * time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
}

// Validate checks the configuration for values that would fail later at
// startup in less obvious ways.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q invalid (valid: text, json)", c.LogFormat)
	}

	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q invalid (valid: sqlite3, sqlite, postgres)", c.Database.Driver)
	}

	if c.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("model %q: provider %q invalid (valid: openai, anthropic, ollama)", m.Name, m.Provider)
		}
	}

	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.HistoryLimit < 1 {
		return fmt.Errorf("agent.history_limit must be at least 1, got %d", c.Agent.HistoryLimit)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) is shorter than retry.base_delay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}

	if c.Auth.JWTSecret == "" && c.Auth.DevOwner == "" {
		return fmt.Errorf("auth.jwt_secret is required unless auth.dev_owner is set")
	}
	return nil
}

// ProviderFor returns the provider configured for a model name, or
// "openai" when the model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return "openai"
}
