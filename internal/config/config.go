// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinwell/asyncfetch/internal/fetch"
	"github.com/tinwell/asyncfetch/internal/politeness"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Ops        OpsConfig        `mapstructure:"ops"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EngineConfig governs admission and execution-context behavior.
type EngineConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
	ExecutionStackSize    int `mapstructure:"execution_stack_size"`
	Priority              int `mapstructure:"priority"`
	CoreAffinity          int `mapstructure:"core_affinity"`
	// SlotAcquireWaitMs: 0 fails fast, negative waits forever.
	SlotAcquireWaitMs   int  `mapstructure:"slot_acquire_wait_ms"`
	PreferPooledBuffers bool `mapstructure:"prefer_pooled_buffers"`
}

// HTTPConfig sets request defaults merged under per-call options.
type HTTPConfig struct {
	DefaultTimeoutMs       int    `mapstructure:"default_timeout_ms"`
	MaxBodyBytes           int64  `mapstructure:"max_body_bytes"`
	MaxHeaderBytes         int64  `mapstructure:"max_header_bytes"`
	SkipTLSCommonNameCheck bool   `mapstructure:"skip_tls_common_name_check"`
	FollowRedirects        bool   `mapstructure:"follow_redirects"`
	UserAgent              string `mapstructure:"user_agent"`
	DefaultContentType     string `mapstructure:"default_content_type"`
}

// PolitenessConfig controls optional per-host rate limiting.
type PolitenessConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
}

// OpsConfig controls the metrics/health HTTP server.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASYNCFETCH")
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
	v.SetDefault("engine.max_concurrent_requests", 4)
	v.SetDefault("engine.execution_stack_size", 0)
	v.SetDefault("engine.priority", 0)
	v.SetDefault("engine.core_affinity", -1)
	v.SetDefault("engine.slot_acquire_wait_ms", 0)
	v.SetDefault("engine.prefer_pooled_buffers", true)
	v.SetDefault("http.default_timeout_ms", 15000)
	v.SetDefault("http.max_body_bytes", 16384)
	v.SetDefault("http.max_header_bytes", 4096)
	v.SetDefault("http.skip_tls_common_name_check", false)
	v.SetDefault("http.follow_redirects", true)
	v.SetDefault("http.user_agent", "asyncfetch/1.0")
	v.SetDefault("http.default_content_type", "application/json")
	v.SetDefault("politeness.requests_per_second", 0)
	v.SetDefault("politeness.burst", 1)
	v.SetDefault("politeness.max_delay_ms", 0)
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Engine.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("engine.max_concurrent_requests must be > 0")
	}
	if c.Engine.ExecutionStackSize < 0 {
		return fmt.Errorf("engine.execution_stack_size must be >= 0")
	}
	if c.HTTP.DefaultTimeoutMs <= 0 {
		return fmt.Errorf("http.default_timeout_ms must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 || c.HTTP.MaxHeaderBytes < 0 {
		return fmt.Errorf("http byte limits must be >= 0")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// FetchConfig converts the loaded values into the engine's Config.
func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		MaxConcurrentRequests:  c.Engine.MaxConcurrentRequests,
		ExecutionStackSize:     c.Engine.ExecutionStackSize,
		Priority:               c.Engine.Priority,
		CoreAffinity:           c.Engine.CoreAffinity,
		DefaultTimeout:         time.Duration(c.HTTP.DefaultTimeoutMs) * time.Millisecond,
		MaxBodyBytes:           c.HTTP.MaxBodyBytes,
		MaxHeaderBytes:         c.HTTP.MaxHeaderBytes,
		SlotAcquireWait:        time.Duration(c.Engine.SlotAcquireWaitMs) * time.Millisecond,
		SkipTLSCommonNameCheck: c.HTTP.SkipTLSCommonNameCheck,
		FollowRedirects:        c.HTTP.FollowRedirects,
		UserAgent:              c.HTTP.UserAgent,
		DefaultContentType:     c.HTTP.DefaultContentType,
		PreferPooledBuffers:    c.Engine.PreferPooledBuffers,
	}
}

// LimiterConfig converts the loaded values into the limiter's Config.
func (c Config) LimiterConfig() politeness.Config {
	return politeness.Config{
		RequestsPerSecond: c.Politeness.RequestsPerSecond,
		Burst:             c.Politeness.Burst,
		MaxDelay:          time.Duration(c.Politeness.MaxDelayMs) * time.Millisecond,
	}
}
