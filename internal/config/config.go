package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/greptile-mcp/internal/greptile"
)

// Server transports
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// envPrefix namespaces the server's environment variables
const envPrefix = "GREPTILE_"

// Config is the full server configuration.
type Config struct {
	API      APIConfig      `koanf:"api"`
	Retry    RetryConfig    `koanf:"retry"`
	Server   ServerConfig   `koanf:"server"`
	Sessions SessionsConfig `koanf:"sessions"`
}

// APIConfig configures the upstream API client.
type APIConfig struct {
	Key           string        `koanf:"key"`
	GitHubToken   string        `koanf:"github_token"`
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	Genius        bool          `koanf:"genius"`
	MaxConcurrent int64         `koanf:"max_concurrent"`
}

// RetryConfig configures upstream retry behavior.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Multiplier  float64       `koanf:"multiplier"`
}

// ServerConfig configures the MCP transport and logging.
type ServerConfig struct {
	Transport string `koanf:"transport"` // stdio or http
	HTTPAddr  string `koanf:"http_addr"`
	LogLevel  string `koanf:"log_level"`
}

// SessionsConfig bounds the conversation store.
type SessionsConfig struct {
	MaxEntries int `koanf:"max_entries"`
}

// defaults holds the baseline every other layer overrides.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":         greptile.DefaultBaseURL,
		"api.timeout":          "60s",
		"api.genius":           true,
		"api.max_concurrent":   0,
		"retry.max_attempts":   greptile.DefaultMaxAttempts,
		"retry.base_delay":     "1s",
		"retry.max_delay":      "5s",
		"retry.multiplier":     2.0,
		"server.transport":     TransportStdio,
		"server.http_addr":     ":8080",
		"server.log_level":     "info",
		"sessions.max_entries": 256,
	}
}

// Load builds the configuration from defaults, an optional TOML file, and
// environment variables, in rising precedence. An explicitly named file must
// load; the default locations are tried best-effort.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	} else {
		defaultPaths := []string{"./greptile-mcp.toml", "$HOME/.config/greptile-mcp/config.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// GREPTILE_API_KEY -> api.key, GREPTILE_SERVER_LOG_LEVEL -> server.log_level.
	// Split on the first underscore only so field names keep theirs:
	// GREPTILE_API_GITHUB_TOKEN -> api.github_token.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvCredentials(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvCredentials honors the plain credential names MCP client configs
// conventionally set, without requiring the GREPTILE_ section prefix.
func applyEnvCredentials(cfg *Config) {
	if cfg.API.GitHubToken == "" {
		cfg.API.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
}

// Validate checks the configuration before anything starts.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("api key is required (set GREPTILE_API_KEY or api.key)")
	}
	if c.API.GitHubToken == "" {
		return fmt.Errorf("github token is required (set GITHUB_TOKEN or api.github_token)")
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required for the http transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Server.Transport, TransportStdio, TransportHTTP)
	}

	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Server.LogLevel, err)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	if c.API.MaxConcurrent < 0 {
		return fmt.Errorf("api.max_concurrent cannot be negative")
	}
	if c.Sessions.MaxEntries < 1 {
		return fmt.Errorf("sessions.max_entries must be at least 1")
	}
	return nil
}

// LogLevel returns the parsed zerolog level. Call after Validate.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ClientConfig maps the configuration onto the API client's options. The
// caller fills in UserAgent and OnDrop.
func (c *Config) ClientConfig() greptile.Config {
	return greptile.Config{
		APIKey:        c.API.Key,
		GitHubToken:   c.API.GitHubToken,
		BaseURL:       c.API.BaseURL,
		Timeout:       c.API.Timeout,
		MaxConcurrent: c.API.MaxConcurrent,
		Retry: greptile.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Multiplier:  c.Retry.Multiplier,
		},
	}
}
