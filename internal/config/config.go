// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bindery/novelbind/internal/novel"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Render  RenderConfig  `mapstructure:"render"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig governs the per-job chapter fetch pool and the direct
// HTTP fetcher.
type FetchConfig struct {
	Workers        int     `mapstructure:"workers"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
}

// RetryConfig configures the retry/backoff controller.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// RenderConfig configures the render capability pool.
type RenderConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxSessions       int  `mapstructure:"max_sessions"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
}

// OutputConfig sets the artifact output location and format defaults.
type OutputConfig struct {
	Dir           string   `mapstructure:"dir"`
	Formats       []string `mapstructure:"formats"`
	RetainPartial bool     `mapstructure:"retain_partial"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOVELBIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "novelbind/0.1")
	v.SetDefault("fetch.domain_qps", 2.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 250)
	v.SetDefault("retry.max_delay_ms", 5000)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_sessions", 2)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("output.dir", "downloads")
	v.SetDefault("output.formats", []string{"epub"})
	v.SetDefault("output.retain_partial", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent must be set")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelayMs <= 0 || c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay_ms <= max_delay_ms")
	}
	if c.Render.Enabled && c.Render.MaxSessions <= 0 {
		return fmt.Errorf("render.max_sessions must be > 0 when rendering is enabled")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	for _, f := range c.Output.Formats {
		if _, ok := novel.ParseFormat(f); !ok {
			return fmt.Errorf("output.formats: unknown format %q", f)
		}
	}
	return nil
}

// FetchTimeout returns the HTTP fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout returns the render navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// DefaultFormats converts the configured format names.
func (c Config) DefaultFormats() []novel.Format {
	out := make([]novel.Format, 0, len(c.Output.Formats))
	for _, f := range c.Output.Formats {
		if parsed, ok := novel.ParseFormat(f); ok {
			out = append(out, parsed)
		}
	}
	return out
}
