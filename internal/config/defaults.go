package config

import "github.com/spf13/viper"

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server (optional HTTP host-interface adapter) defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.jwt.secret", "")
	v.SetDefault("server.jwt.ttl", "24h")
	v.SetDefault("server.admin.username", "admin")
	v.SetDefault("server.admin.password_hash", "")

	// Storage defaults
	v.SetDefault("storage.path", "watcherd.db")
	v.SetDefault("storage.max_open_conns", 1)
	v.SetDefault("storage.max_idle_conns", 1)
	v.SetDefault("storage.conn_max_lifetime", "1h")
	v.SetDefault("storage.busy_timeout", "5s")

	// Scheduler defaults (jittered backoff, §4.8)
	v.SetDefault("scheduler.max_backoff_ms", 3600000)
	v.SetDefault("scheduler.jitter_fraction", 0.1)
	v.SetDefault("scheduler.timeout_buffer_ms", 500)
	v.SetDefault("scheduler.max_retries", 3)

	// Engine defaults
	v.SetDefault("engine.history_limit", 500)
	v.SetDefault("engine.http_keyword_max_bytes", 1048576)
	v.SetDefault("engine.rate_limit_per_second", 10.0)
	v.SetDefault("engine.rate_limit_burst", 20)
	v.SetDefault("engine.metrics_enabled", true)
	v.SetDefault("engine.metrics_addr", ":9090")

	// Monitor types enabled by default: the full canonical set
	v.SetDefault("monitor_types.enabled", []string{
		"http", "http-status", "http-keyword", "http-header",
		"http-json", "http-latency", "port", "ping", "dns", "ssl",
	})

	// Cache defaults (§4.4)
	v.SetDefault("cache.site_ttl", "10m")
	v.SetDefault("cache.monitor_ttl", "5m")
	v.SetDefault("cache.settings_ttl", "30m")
	v.SetDefault("cache.validation_ttl", "5m")
	v.SetDefault("cache.max_entries", 10000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
