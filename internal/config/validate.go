package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var validLogLevels = []string{"debug", "info", "warn", "error", "fatal", "panic"}

// validateConfig validates the configuration and returns an error if invalid.
func validateConfig(c *Config) error {
	for _, validate := range []func() error{
		func() error { return validateServerConfig(c.Server) },
		func() error { return validateStorageConfig(c.Storage) },
		func() error { return validateSchedulerConfig(c.Scheduler) },
		func() error { return validateEngineConfig(c.Engine) },
		func() error { return validateCacheConfig(c.Cache) },
		func() error { return validateLogConfig(c.Log) },
	} {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateServerConfig validates the optional HTTP adapter configuration.
func validateServerConfig(s ServerConfig) error {
	if !s.Enabled {
		return nil
	}
	if s.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("server.addr invalid format: %w", err)
	}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("server.addr invalid port: %w", err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("server.addr port out of range (1-65535)")
		}
	}
	if host != "" && host != "0.0.0.0" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			if _, err := net.LookupHost(host); err != nil {
				return fmt.Errorf("server.addr invalid host: %s", host)
			}
		}
	}

	if s.ReadTimeout < time.Second || s.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("server.read_timeout must be between 1s and 5m")
	}
	if s.WriteTimeout < time.Second || s.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("server.write_timeout must be between 1s and 5m")
	}
	if s.IdleTimeout < time.Second || s.IdleTimeout > 30*time.Minute {
		return fmt.Errorf("server.idle_timeout must be between 1s and 30m")
	}

	if err := validateJWTConfig(s.JWT); err != nil {
		return err
	}
	return validateAdminConfig(s.Admin)
}

// validateAdminConfig validates the bootstrap operator account used to log
// into the bundled HTTP adapter.
func validateAdminConfig(a AdminConfig) error {
	if a.Username == "" {
		return fmt.Errorf("server.admin.username cannot be empty when server is enabled")
	}
	if !strings.HasPrefix(a.PasswordHash, "$2") {
		return fmt.Errorf("server.admin.password_hash must be a bcrypt hash")
	}
	return nil
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(s StorageConfig) error {
	if s.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if strings.Contains(s.Path, "..") {
		return fmt.Errorf("storage.path cannot contain '..' for security")
	}
	if s.MaxOpenConns <= 0 {
		return fmt.Errorf("storage.max_open_conns must be greater than 0")
	}
	if s.MaxIdleConns < 0 {
		return fmt.Errorf("storage.max_idle_conns cannot be negative")
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		return fmt.Errorf("storage.max_idle_conns cannot be greater than max_open_conns")
	}
	if s.ConnMaxLifetime <= 0 || s.ConnMaxLifetime > 24*time.Hour {
		return fmt.Errorf("storage.conn_max_lifetime must be between 0 and 24h")
	}
	if s.BusyTimeout <= 0 || s.BusyTimeout > time.Minute {
		return fmt.Errorf("storage.busy_timeout must be between 0 and 1m")
	}
	return nil
}

// validateSchedulerConfig validates the scheduler's backoff/jitter knobs.
func validateSchedulerConfig(s SchedulerConfig) error {
	if s.MaxBackoffMs <= 0 {
		return fmt.Errorf("scheduler.max_backoff_ms must be greater than 0")
	}
	if s.JitterFraction < 0 || s.JitterFraction > 1 {
		return fmt.Errorf("scheduler.jitter_fraction must be within [0, 1]")
	}
	if s.TimeoutBufferMs < 0 {
		return fmt.Errorf("scheduler.timeout_buffer_ms cannot be negative")
	}
	if s.MaxRetries < 0 || s.MaxRetries > 10 {
		return fmt.Errorf("scheduler.max_retries must be within [0, 10]")
	}
	return nil
}

// validateEngineConfig validates engine-wide ambient knobs.
func validateEngineConfig(e EngineConfig) error {
	if e.HistoryLimit <= 0 {
		return fmt.Errorf("engine.history_limit must be greater than 0")
	}
	if e.HTTPKeywordMaxBytes <= 0 {
		return fmt.Errorf("engine.http_keyword_max_bytes must be greater than 0")
	}
	if e.RateLimitPerSecond <= 0 {
		return fmt.Errorf("engine.rate_limit_per_second must be greater than 0")
	}
	if e.RateLimitBurst <= 0 {
		return fmt.Errorf("engine.rate_limit_burst must be greater than 0")
	}
	return nil
}

// validateCacheConfig validates per-domain cache TTLs and size.
func validateCacheConfig(c CacheConfig) error {
	for name, d := range map[string]time.Duration{
		"site_ttl": c.SiteTTL, "monitor_ttl": c.MonitorTTL,
		"settings_ttl": c.SettingsTTL, "validation_ttl": c.ValidationTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("cache.%s must be greater than 0", name)
		}
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be greater than 0")
	}
	return nil
}

// validateLogConfig validates log configuration.
func validateLogConfig(l LogConfig) error {
	for _, lvl := range validLogLevels {
		if strings.ToLower(l.Level) == lvl {
			return nil
		}
	}
	return fmt.Errorf("log.level must be one of: debug, info, warn, error, fatal, panic")
}

// validateJWTConfig validates JWT configuration for the bundled HTTP adapter.
func validateJWTConfig(j JWTConfig) error {
	if j.Secret == "" {
		return fmt.Errorf("secret cannot be empty when server is enabled")
	}
	if len(j.Secret) < 32 {
		return fmt.Errorf("secret too short (minimum 32 characters for security)")
	}
	if j.TTL < 5*time.Minute || j.TTL > 30*24*time.Hour {
		return fmt.Errorf("ttl must be between 5m and 30 days")
	}
	return nil
}
