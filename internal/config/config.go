// Package config loads and validates batchwatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/subscriber"
)

// Provider names accepted by the subscription and terminate sections.
const (
	ProviderMemory   = "memory"
	ProviderPubSub   = "pubsub"
	ProviderDisabled = "disabled"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Terminate    TerminateConfig    `mapstructure:"terminate"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ReadHeaderTimeoutSec   int `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SubscriptionConfig selects where notifications come from.
type SubscriptionConfig struct {
	// Provider is "memory" or "pubsub".
	Provider string `mapstructure:"provider"`
	// Channel is the platform event channel name.
	Channel string `mapstructure:"channel"`
	// Replay is "latest" or "all".
	Replay    string `mapstructure:"replay"`
	ProjectID string `mapstructure:"project_id"`
	// TopicID overrides the topic derived from Channel.
	TopicID string `mapstructure:"topic_id"`
	// SubscriptionID names an existing subscription. When empty an
	// ephemeral one is created per run.
	SubscriptionID  string        `mapstructure:"subscription_id"`
	EphemeralPrefix string        `mapstructure:"ephemeral_prefix"`
	Expiration      time.Duration `mapstructure:"expiration"`
	// BufferSize bounds the memory provider's per-subscription queue.
	BufferSize int `mapstructure:"buffer_size"`
}

// TerminateConfig configures the remote termination trigger.
type TerminateConfig struct {
	// Provider is "disabled", "memory" or "pubsub".
	Provider       string `mapstructure:"provider"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DashboardConfig sizes the dashboard and its live streams.
type DashboardConfig struct {
	DefaultJobs  int `mapstructure:"default_jobs"`
	StreamBuffer int `mapstructure:"stream_buffer"`
}

// ProgressConfig controls the update hub.
type ProgressConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	LogEnabled    bool        `mapstructure:"log_enabled"`
	BufferSize    int         `mapstructure:"buffer_size"`
	Batch         BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int         `mapstructure:"sink_timeout_ms"`
}

// BatchConfig tunes hub batching.
type BatchConfig struct {
	MaxSize   int `mapstructure:"max_size"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BATCHWATCH")
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
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("subscription.provider", ProviderMemory)
	v.SetDefault("subscription.channel", subscriber.DefaultChannel)
	v.SetDefault("subscription.replay", "latest")
	v.SetDefault("subscription.project_id", "")
	v.SetDefault("subscription.topic_id", "")
	v.SetDefault("subscription.subscription_id", "")
	v.SetDefault("subscription.ephemeral_prefix", "batchwatch")
	v.SetDefault("subscription.expiration", 24*time.Hour)
	v.SetDefault("subscription.buffer_size", 256)
	v.SetDefault("terminate.provider", ProviderDisabled)
	v.SetDefault("terminate.project_id", "")
	v.SetDefault("terminate.topic_id", "")
	v.SetDefault("terminate.timeout_seconds", 10)
	v.SetDefault("dashboard.default_jobs", dashboard.DefaultJobs)
	v.SetDefault("dashboard.stream_buffer", 16)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_size", 100)
	v.SetDefault("progress.batch.max_wait_ms", 100)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.Subscription.Provider {
	case ProviderMemory:
	case ProviderPubSub:
		if c.Subscription.ProjectID == "" {
			return errors.New("subscription.project_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("subscription.provider %q must be memory or pubsub", c.Subscription.Provider)
	}
	if c.Subscription.Channel == "" {
		return errors.New("subscription.channel must be set")
	}
	if _, err := c.Subscription.ReplayMode(); err != nil {
		return fmt.Errorf("subscription.replay: %w", err)
	}
	switch c.Terminate.Provider {
	case ProviderDisabled, ProviderMemory:
	case ProviderPubSub:
		if c.Terminate.TopicID == "" {
			return errors.New("terminate.topic_id must be set for the pubsub provider")
		}
		if c.Terminate.ProjectID == "" && c.Subscription.ProjectID == "" {
			return errors.New("terminate.project_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("terminate.provider %q must be disabled, memory or pubsub", c.Terminate.Provider)
	}
	if c.Dashboard.DefaultJobs <= 0 || c.Dashboard.DefaultJobs > dashboard.MaxJobs {
		return fmt.Errorf("dashboard.default_jobs must be between 1 and %d", dashboard.MaxJobs)
	}
	if c.Progress.Enabled && c.Progress.BufferSize <= 0 {
		return errors.New("progress.buffer_size must be > 0 when progress is enabled")
	}
	return nil
}

// ReplayMode parses the configured replay keyword.
func (c SubscriptionConfig) ReplayMode() (subscriber.Replay, error) {
	replay, err := subscriber.ParseReplay(c.Replay)
	if err != nil {
		return 0, fmt.Errorf("parse replay: %w", err)
	}
	return replay, nil
}

// TerminateProject returns the project hosting the terminate topic, falling
// back to the subscription project.
func (c Config) TerminateProject() string {
	if c.Terminate.ProjectID != "" {
		return c.Terminate.ProjectID
	}
	return c.Subscription.ProjectID
}

// TerminateTimeout converts the terminate timeout into a duration.
func (c Config) TerminateTimeout() time.Duration {
	return time.Duration(c.Terminate.TimeoutSeconds) * time.Second
}

// ShutdownTimeout converts the shutdown grace period into a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
