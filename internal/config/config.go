// Package config loads engine configuration from file, environment,
// and defaults.
//
// Precedence, highest first: environment (DONEDEX_*), the config file
// (donedex.yaml), built-in defaults. Nested keys map to environment
// variables with underscores, e.g. api.base_url -> DONEDEX_API_BASE_URL.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	API       APIConfig       `mapstructure:"api"`
	Media     MediaConfig     `mapstructure:"media"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// CacheConfig locates the local draft database.
type CacheConfig struct {
	// Path to the SQLite database file.
	Path string `mapstructure:"path"`
}

// APIConfig points the engine at the remote report service.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`

	// ProbeAddr is the host:port dialed to decide online/offline.
	// Defaults to the BaseURL host.
	ProbeAddr string `mapstructure:"probe_addr"`
}

// MediaConfig selects and configures the media store.
type MediaConfig struct {
	// Backend is "s3" or "filesystem".
	Backend string `mapstructure:"backend"`

	// S3 settings, used when Backend is "s3".
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`

	// Dir is the local root, used when Backend is "filesystem".
	Dir string `mapstructure:"dir"`
}

// SyncConfig tunes the drain daemon and conflict handling.
type SyncConfig struct {
	DrainInterval    time.Duration `mapstructure:"drain_interval"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	MaxRetryElapsed  time.Duration `mapstructure:"max_retry_elapsed"`

	// ConflictStrategy is "newest-wins", "local-wins", or "server-wins".
	ConflictStrategy string `mapstructure:"conflict_strategy"`
}

// DashboardConfig configures the monitoring server.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures file logging rotation.
type LogConfig struct {
	// File is the log destination; empty means stderr only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from the given file path. An empty path
// searches the working directory and ~/.config/donedex for
// donedex.yaml; a missing file is not an error, defaults and
// environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DONEDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("donedex")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "donedex"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints a bad file can violate.
func (c *Config) Validate() error {
	switch c.Media.Backend {
	case "s3", "filesystem":
	default:
		return fmt.Errorf("invalid media backend %q (want s3 or filesystem)", c.Media.Backend)
	}
	switch c.Sync.ConflictStrategy {
	case "newest-wins", "local-wins", "server-wins":
	default:
		return fmt.Errorf("invalid conflict strategy %q", c.Sync.ConflictStrategy)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port %d", c.Dashboard.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.path", defaultCachePath())
	v.SetDefault("api.base_url", "http://localhost:8090")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("media.backend", "filesystem")
	v.SetDefault("media.dir", defaultMediaDir())
	v.SetDefault("sync.drain_interval", 30*time.Second)
	v.SetDefault("sync.debounce_interval", 500*time.Millisecond)
	v.SetDefault("sync.max_retry_elapsed", 15*time.Second)
	v.SetDefault("sync.conflict_strategy", "newest-wins")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "donedex.db"
	}
	return filepath.Join(home, ".local", "share", "donedex", "drafts.db")
}

func defaultMediaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "media"
	}
	return filepath.Join(home, ".local", "share", "donedex", "media")
}
