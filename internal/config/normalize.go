package config

import "strings"

// normalizeConfig normalizes configuration values.
func normalizeConfig(c *Config) {
	c.Log.Level = strings.ToLower(c.Log.Level)
	for i, t := range c.MonitorTypes.Enabled {
		c.MonitorTypes.Enabled[i] = strings.ToLower(strings.TrimSpace(t))
	}
}
