// Package config loads and validates the bot configuration from YAML or
// JSON5 files, with environment variable expansion and $include support.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// DiscordConfig configures the gateway connection.
type DiscordConfig struct {
	// Token is the bot token; usually supplied as ${DISCORD_TOKEN}.
	Token string `yaml:"token"`

	// GuildID restricts message handling to one guild.
	GuildID string `yaml:"guild_id"`

	// ModLogChannelID, when set, receives audit entries for administrative
	// actions.
	ModLogChannelID string `yaml:"mod_log_channel_id"`
}

// DatabaseConfig configures the SQLite database of record.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes the resolution engine.
type EngineConfig struct {
	// Prefix is the invocation sigil.
	Prefix string `yaml:"prefix"`

	// RefreshIntervalSeconds is the periodic cache reconciliation interval.
	// Cache entry TTL is twice this value, so entries outlive one missed
	// refresh but not two.
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`

	// CacheMaxEntries bounds the snapshot cache.
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// PermissionErrorDeleteSeconds, when positive, deletes permission error
	// replies and the offending command message after this many seconds.
	PermissionErrorDeleteSeconds int `yaml:"permission_error_delete_seconds"`

	// PickerTimeoutSeconds bounds version disambiguation sessions.
	PickerTimeoutSeconds int `yaml:"picker_timeout_seconds"`

	// DefaultEmbedColor is applied to embed replies without an explicit
	// color, as a decimal or 0x-prefixed value in YAML.
	DefaultEmbedColor int `yaml:"default_embed_color"`

	// AdminRoles lists the role ids allowed to trigger the built-in
	// cacheupdate command. Empty disables the trigger.
	AdminRoles []string `yaml:"admin_roles"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Validate checks required fields and applies defaults in place.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if strings.TrimSpace(c.Discord.GuildID) == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if c.Database.Path == "" {
		c.Database.Path = "crewbot.db"
	}
	if c.Engine.Prefix == "" {
		c.Engine.Prefix = "."
	}
	if c.Engine.RefreshIntervalSeconds <= 0 {
		c.Engine.RefreshIntervalSeconds = 1800
	}
	if c.Engine.CacheMaxEntries <= 0 {
		c.Engine.CacheMaxEntries = 10000
	}
	if c.Engine.PermissionErrorDeleteSeconds < 0 {
		return fmt.Errorf("engine.permission_error_delete_seconds must not be negative")
	}
	if c.Engine.PickerTimeoutSeconds <= 0 {
		c.Engine.PickerTimeoutSeconds = 60
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	return nil
}

// RefreshInterval returns the reconciliation interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Engine.RefreshIntervalSeconds) * time.Second
}

// CacheTTL returns the snapshot TTL: twice the refresh interval.
func (c *Config) CacheTTL() time.Duration {
	return 2 * c.RefreshInterval()
}

// PickerTimeout returns the disambiguation session bound as a duration.
func (c *Config) PickerTimeout() time.Duration {
	return time.Duration(c.Engine.PickerTimeoutSeconds) * time.Second
}

// PermissionErrorDeleteDelay returns the denial cleanup delay as a duration.
func (c *Config) PermissionErrorDeleteDelay() time.Duration {
	return time.Duration(c.Engine.PermissionErrorDeleteSeconds) * time.Second
}
