// Package config loads kedung's config.toml: socket/log paths, log level,
// cache duration, and the wire frame prefix width, each falling back
// independently to its documented default.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds kedung's runtime configuration, as resolved from
// config.toml, falling back to defaults key-by-key.
type Config struct {
	SocketDir        string `mapstructure:"-"`
	LogDir           string `mapstructure:"-"`
	LogLevel         string `mapstructure:"-"`
	CacheDuration    int    `mapstructure:"-"` // minutes
	PreallocateSpace int    `mapstructure:"-"` // frame prefix width P
}

// Defaults mirror kedung/utils/userconf.py's fallback values exactly.
func Defaults() *Config {
	return &Config{
		SocketDir:        "/tmp/kedung/",
		LogDir:           "/tmp/kedung/",
		LogLevel:         "INFO",
		CacheDuration:    10,
		PreallocateSpace: 7,
	}
}

// CacheTTL returns CacheDuration as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheDuration) * time.Minute
}

// Load reads config.toml from the process CWD. A missing file, or missing
// keys within it, fall back to Defaults() per key — this matches the
// original's per-key viper.SetDefault layering, generalized from the
// teacher's YAML config to the spec's required TOML format.
func Load() (*Config, error) {
	d := Defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.SetDefault("kedung.location.socket", d.SocketDir)
	v.SetDefault("kedung.location.log", d.LogDir)
	v.SetDefault("kedung.runtime.logging", d.LogLevel)
	v.SetDefault("kedung.runtime.cache_duration", d.CacheDuration)
	v.SetDefault("kedung.runtime.preallocate_space", d.PreallocateSpace)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		// Missing file: every key keeps its default, as set above.
	}

	cfg := &Config{
		SocketDir:        v.GetString("kedung.location.socket"),
		LogDir:           v.GetString("kedung.location.log"),
		LogLevel:         v.GetString("kedung.runtime.logging"),
		CacheDuration:    v.GetInt("kedung.runtime.cache_duration"),
		PreallocateSpace: v.GetInt("kedung.runtime.preallocate_space"),
	}

	return cfg, nil
}

// Validate rejects configurations that can never produce a working
// server: a non-positive prefix width or cache duration, or a logging
// level other than DEBUG, INFO, WARNING, ERROR or CRITICAL.
func (c *Config) Validate() error {
	if c.PreallocateSpace <= 0 {
		return fmt.Errorf("preallocate_space must be positive, got %d", c.PreallocateSpace)
	}
	if c.CacheDuration <= 0 {
		return fmt.Errorf("cache_duration must be positive, got %d", c.CacheDuration)
	}
	validLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid logging level: %s", c.LogLevel)
	}
	return nil
}

// String renders the resolved configuration for the `kedungd config`
// subcommand.
func (c *Config) String() string {
	return fmt.Sprintf(
		"kedung config:\n  socket dir: %s\n  log dir: %s\n  log level: %s\n  cache duration: %dm\n  prefix width: %d",
		c.SocketDir, c.LogDir, c.LogLevel, c.CacheDuration, c.PreallocateSpace,
	)
}
