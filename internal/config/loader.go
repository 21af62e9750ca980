package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const fileBaseName = "certdesk-admin"

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for certdesk-admin.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the binary itself never matches.
func InitViper(configFile string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, handled by callers.
		viper.SetConfigName(fileBaseName)
		viper.SetConfigType("yaml")
	}

	// Environment variable support: CERTDESK_ADMIN_API_BASE_URL
	viper.SetEnvPrefix("CERTDESK_ADMIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
	return nil
}

// loadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// findConfigFile searches standard locations for a config file.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".certdesk-admin"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "certdesk-admin"))
		}
	} else {
		paths = append(paths, "/etc/certdesk-admin")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for certdesk-admin.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, fileBaseName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key for environment variable support.
// Example: CERTDESK_ADMIN_SESSION_BACKEND overrides session.backend
func bindNestedEnvKeys() {
	// The unprefixed name is what the web console's build used.
	_ = viper.BindEnv("api.base_url", "CERTDESK_ADMIN_API_BASE_URL", "ADMIN_API_BASE_URL")
	_ = viper.BindEnv("api.timeout")

	_ = viper.BindEnv("session.backend")
	_ = viper.BindEnv("session.path")
	_ = viper.BindEnv("session.redis_addr")
	_ = viper.BindEnv("session.redis_db")
	_ = viper.BindEnv("session.redis_prefix")
	_ = viper.BindEnv("session.clear_on_unauthorized")

	_ = viper.BindEnv("cache.keep_unused_for")
	_ = viper.BindEnv("cache.search_debounce")
	_ = viper.BindEnv("cache.default_page_size")

	_ = viper.BindEnv("telemetry.trace_stdout")
	_ = viper.BindEnv("telemetry.metrics_addr")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override fields before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// LoadConfig reads the configuration, applies defaults and dev defaults,
// and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
