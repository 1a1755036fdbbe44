package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Logging LogConfig
	Fetch   FetchConfig
	Policy  PolicyConfig
	Audit   AuditConfig
	Modules ModulesConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8100"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// FetchConfig holds module fetch configuration.
type FetchConfig struct {
	TimeoutSeconds int     `envconfig:"FETCH_TIMEOUT_SECONDS" default:"15"`
	MaxRetries     int     `envconfig:"FETCH_MAX_RETRIES" default:"2"`
	MaxSourceBytes int64   `envconfig:"FETCH_MAX_SOURCE_BYTES" default:"2097152"`
	RequestsPerSec float64 `envconfig:"FETCH_RPS" default:"4"`
}

// PolicyConfig holds capability policy configuration.
type PolicyConfig struct {
	// Path to an optional YAML overlay. Empty means built-in defaults.
	Path string `envconfig:"POLICY_PATH" default:""`
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Capacity int `envconfig:"AUDIT_CAPACITY" default:"4096"`
}

// ModulesConfig maps module kinds to their source URLs and optional pins.
//
// Pins are hex SHA-256 digests published out-of-band (signed configuration);
// an empty pin disables the integrity check for that kind.
type ModulesConfig struct {
	WebAuthURL           string `envconfig:"MODULE_WEB_AUTH_URL" default:""`
	WebAuthHash          string `envconfig:"MODULE_WEB_AUTH_SHA256" default:""`
	MobileAuthURL        string `envconfig:"MODULE_MOBILE_AUTH_URL" default:""`
	MobileAuthHash       string `envconfig:"MODULE_MOBILE_AUTH_SHA256" default:""`
	WatchHistoryAuthURL  string `envconfig:"MODULE_WATCH_HISTORY_AUTH_URL" default:""`
	WatchHistoryAuthHash string `envconfig:"MODULE_WATCH_HISTORY_AUTH_SHA256" default:""`
}

// ModulePin is one configured module source.
type ModulePin struct {
	URL          string
	ExpectedHash string
}

// Module kinds understood by the service.
const (
	KindWebAuth          = "web-auth"
	KindMobileAuth       = "mobile-auth"
	KindWatchHistoryAuth = "watch-history-auth"
)

// Kinds returns the configured module kinds. Kinds without a URL are omitted.
func (m ModulesConfig) Kinds() map[string]ModulePin {
	out := make(map[string]ModulePin, 3)
	if m.WebAuthURL != "" {
		out[KindWebAuth] = ModulePin{URL: m.WebAuthURL, ExpectedHash: m.WebAuthHash}
	}
	if m.MobileAuthURL != "" {
		out[KindMobileAuth] = ModulePin{URL: m.MobileAuthURL, ExpectedHash: m.MobileAuthHash}
	}
	if m.WatchHistoryAuthURL != "" {
		out[KindWatchHistoryAuth] = ModulePin{URL: m.WatchHistoryAuthURL, ExpectedHash: m.WatchHistoryAuthHash}
	}
	return out
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MODGUARD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8100",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 15,
			MaxRetries:     2,
			MaxSourceBytes: 2 << 20,
			RequestsPerSec: 4,
		},
		Audit: AuditConfig{
			Capacity: 4096,
		},
	}
}
