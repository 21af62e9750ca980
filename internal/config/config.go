// Package config provides configuration types for the certdesk admin console.
//
// Configuration comes from an optional certdesk-admin.yaml file, a .env file
// and CERTDESK_ADMIN_* environment variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the admin API used when none is configured.
const DefaultBaseURL = "http://localhost:5000"

// Session storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the top-level configuration for the admin console.
type Config struct {
	// API configures the admin API client.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session configures where the session slots are persisted.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Cache configures the query cache and list views.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Telemetry configures tracing and metrics exposure.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "warn" so command output stays readable. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development features (debug logging, stdout traces).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// APIConfig configures the admin API client.
type APIConfig struct {
	// BaseURL is the admin API origin, e.g. "https://api.example.com".
	// Also read from ADMIN_API_BASE_URL. Defaults to DefaultBaseURL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,http_url"`

	// Timeout bounds each request (e.g. "15s"). Defaults to "15s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Backend is one of "file", "sqlite", "redis", "memory". Defaults to "file".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"required,oneof=file sqlite redis memory"`

	// Path is the file or database path for the file and sqlite backends.
	// Defaults to ~/.certdesk-admin/session.json or session.db.
	Path string `yaml:"path" mapstructure:"path"`

	// RedisAddr is the host:port of the redis server for the redis backend.
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`

	// RedisDB selects the redis logical database.
	RedisDB int `yaml:"redis_db" mapstructure:"redis_db" validate:"min=0,max=15"`

	// RedisPrefix namespaces the slot keys. Defaults to "certdesk-admin:".
	RedisPrefix string `yaml:"redis_prefix" mapstructure:"redis_prefix"`

	// ClearOnUnauthorized logs out when the API rejects the current token.
	// Defaults to true.
	ClearOnUnauthorized bool `yaml:"clear_on_unauthorized" mapstructure:"clear_on_unauthorized"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// KeepUnusedFor is how long an entry with no subscribers stays cached.
	// Defaults to "60s".
	KeepUnusedFor string `yaml:"keep_unused_for" mapstructure:"keep_unused_for" validate:"omitempty,duration"`

	// SearchDebounce is the quiet period before a typed search is applied.
	// Defaults to "300ms".
	SearchDebounce string `yaml:"search_debounce" mapstructure:"search_debounce" validate:"omitempty,duration"`

	// DefaultPageSize is the list page size when none is requested. Defaults to 10.
	DefaultPageSize int `yaml:"default_page_size" mapstructure:"default_page_size" validate:"min=1,max=100"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// TraceStdout writes one span per API request to stderr.
	TraceStdout bool `yaml:"trace_stdout" mapstructure:"trace_stdout"`

	// MetricsAddr, when set, makes the console serve /metrics on this address.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// SetDevDefaults applies development defaults. Must run before Validate.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	if !viper.IsSet("telemetry.trace_stdout") {
		c.Telemetry.TraceStdout = true
	}
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "15s"
	}

	if c.Session.Backend == "" {
		c.Session.Backend = BackendFile
	}
	if c.Session.Path == "" {
		switch c.Session.Backend {
		case BackendFile:
			c.Session.Path = filepath.Join(stateDir(), "session.json")
		case BackendSQLite:
			c.Session.Path = filepath.Join(stateDir(), "session.db")
		}
	}
	if c.Session.RedisAddr == "" && c.Session.Backend == BackendRedis {
		c.Session.RedisAddr = "127.0.0.1:6379"
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "certdesk-admin:"
	}
	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("session.clear_on_unauthorized") {
		c.Session.ClearOnUnauthorized = true
	}

	if c.Cache.KeepUnusedFor == "" {
		c.Cache.KeepUnusedFor = "60s"
	}
	if c.Cache.SearchDebounce == "" {
		c.Cache.SearchDebounce = "300ms"
	}
	if c.Cache.DefaultPageSize == 0 {
		c.Cache.DefaultPageSize = 10
	}

	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// APITimeout returns the parsed request timeout.
func (c *Config) APITimeout() time.Duration {
	return mustDuration(c.API.Timeout)
}

// KeepUnusedFor returns the parsed cache retention for unused entries.
func (c *Config) KeepUnusedFor() time.Duration {
	return mustDuration(c.Cache.KeepUnusedFor)
}

// SearchDebounce returns the parsed search debounce delay.
func (c *Config) SearchDebounce() time.Duration {
	return mustDuration(c.Cache.SearchDebounce)
}

// mustDuration parses a duration already checked by Validate. Unparseable
// values yield 0 and the caller's own default applies.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".certdesk-admin"
	}
	return filepath.Join(home, ".certdesk-admin")
}
