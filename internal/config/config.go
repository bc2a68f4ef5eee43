package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete configuration schema for the watcherd
// monitoring engine.
//
// Configuration sources (in order of precedence):
//  1. Defaults
//  2. Configuration file (optional)
//  3. Environment variables
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler" yaml:"scheduler"`
	Engine       EngineConfig       `mapstructure:"engine" yaml:"engine"`
	MonitorTypes MonitorTypesConfig `mapstructure:"monitor_types" yaml:"monitor_types"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the optional HTTP host-interface adapter.
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	JWT          JWTConfig     `mapstructure:"jwt" yaml:"jwt"`
	Admin        AdminConfig   `mapstructure:"admin" yaml:"admin"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AdminConfig holds the single bootstrap operator account the bundled HTTP
// adapter authenticates against. PasswordHash is a bcrypt hash, never a
// plaintext secret.
type AdminConfig struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
}

// StorageConfig configures the SQLite storage engine (C1).
type StorageConfig struct {
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// SchedulerConfig configures the per-monitor jittered-backoff scheduler (C8).
type SchedulerConfig struct {
	MaxBackoffMs    int     `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	JitterFraction  float64 `mapstructure:"jitter_fraction" yaml:"jitter_fraction"`
	TimeoutBufferMs int     `mapstructure:"timeout_buffer_ms" yaml:"timeout_buffer_ms"`
	MaxRetries      int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// EngineConfig configures ambient engine-wide knobs that don't belong to a
// single subsystem: history retention, executor limits, and rate shaping.
type EngineConfig struct {
	HistoryLimit        int     `mapstructure:"history_limit" yaml:"history_limit"`
	HTTPKeywordMaxBytes int     `mapstructure:"http_keyword_max_bytes" yaml:"http_keyword_max_bytes"`
	RateLimitPerSecond  float64 `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst      int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	MetricsEnabled      bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsAddr         string  `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// MonitorTypesConfig selects which canonical monitor type executors the
// registry enables at startup.
type MonitorTypesConfig struct {
	Enabled []string `mapstructure:"enabled" yaml:"enabled"`
}

// CacheConfig configures per-domain TTL/LRU cache sizing (C4).
type CacheConfig struct {
	SiteTTL       time.Duration `mapstructure:"site_ttl" yaml:"site_ttl"`
	MonitorTTL    time.Duration `mapstructure:"monitor_ttl" yaml:"monitor_ttl"`
	SettingsTTL   time.Duration `mapstructure:"settings_ttl" yaml:"settings_ttl"`
	ValidationTTL time.Duration `mapstructure:"validation_ttl" yaml:"validation_ttl"`
	MaxEntries    int           `mapstructure:"max_entries" yaml:"max_entries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error, fatal, panic
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"` // human-readable console output
}

// Load loads configuration from defaults, configuration file,
// and environment variables, then validates the result.
//
// The function fails fast on:
//   - Invalid configuration file
//   - Invalid or missing required configuration values
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WATCHERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if configDir := getConfigDir(); configDir != "" {
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	if _, exists := os.LookupEnv("WATCHERD_SERVER_JWT_SECRET"); exists {
		v.BindEnv("server.jwt.secret", "WATCHERD_SERVER_JWT_SECRET")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalizeConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getConfigDir returns the appropriate config directory for the current OS.
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "watcherd")
		}
		return ""
	}

	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".watcherd")
	}
	return ""
}
