// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig           `mapstructure:"logging"`
	Store   StoreConfig             `mapstructure:"store"`
	Commit  CommitConfig            `mapstructure:"commit"`
	Notify  NotifyConfig            `mapstructure:"notify"`
	Metrics MetricsConfig           `mapstructure:"metrics"`
	Job     JobConfig               `mapstructure:"job"`
	Domains map[string]DomainConfig `mapstructure:"domains"`
}

// JobConfig locates the external pipeline the runner invokes as the job
// body. The coordinator itself never crawls.
type JobConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"workdir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig selects and configures the lease/state backend.
type StoreConfig struct {
	// Provider is one of memory, redis, gcs, postgres.
	Provider string         `mapstructure:"provider"`
	Redis    RedisConfig    `mapstructure:"redis"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// GCSConfig configures the Cloud Storage backend.
type GCSConfig struct {
	Bucket      string `mapstructure:"bucket"`
	LeasePrefix string `mapstructure:"lease_prefix"`
	StatePrefix string `mapstructure:"state_prefix"`
}

// PostgresConfig configures the Postgres backend.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CommitConfig bounds the optimistic-concurrency retry loop.
type CommitConfig struct {
	ConflictRetries int `mapstructure:"conflict_retries"`
}

// NotifyConfig configures outcome delivery. An empty webhook URL disables
// delivery entirely.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	// SentimentWebhookURL is not used by the coordinator itself; it is
	// handed through to the pipeline, which delivers its own sentiment
	// alerts.
	SentimentWebhookURL string `mapstructure:"sentiment_webhook_url"`
	ReportWebhookURL    string `mapstructure:"report_webhook_url"`
	OnSuccess           bool   `mapstructure:"on_success"`
	OnWarning           bool   `mapstructure:"on_warning"`
	DetailURLBase       string `mapstructure:"detail_url_base"`
}

// MetricsConfig controls the optional Prometheus endpoint for long-lived
// debug runs; ephemeral scheduled runs leave it disabled.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DomainConfig binds a coordination domain to its lease TTL, body timeout,
// and default trigger parameters.
type DomainConfig struct {
	TTLMinutes     int    `mapstructure:"ttl_minutes"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes"`
	Schedule       string `mapstructure:"schedule"`
	Mode           string `mapstructure:"mode"`
}

// TTL returns the lease TTL as a duration.
func (d DomainConfig) TTL() time.Duration {
	return time.Duration(d.TTLMinutes) * time.Minute
}

// Timeout returns the job body timeout as a duration.
func (d DomainConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMinutes) * time.Minute
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EPIC7")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The webhook secrets have always lived under these names in the
	// deploy environment; keep honoring them.
	_ = v.BindEnv("notify.webhook_url", "DISCORD_WEBHOOK_BUG")
	_ = v.BindEnv("notify.sentiment_webhook_url", "DISCORD_WEBHOOK_SENTIMENT")
	_ = v.BindEnv("notify.report_webhook_url", "DISCORD_WEBHOOK_REPORT")

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
	v.SetDefault("logging.development", false)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "epic7")
	v.SetDefault("store.gcs.lease_prefix", "leases")
	v.SetDefault("store.gcs.state_prefix", "state")
	v.SetDefault("commit.conflict_retries", 2)
	v.SetDefault("notify.on_warning", true)
	v.SetDefault("notify.on_success", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9091)

	// Short domains carry a TTL just past their expected duration; the
	// unified domain gets two hours so a crash cannot wedge it for a day.
	v.SetDefault("domains", map[string]map[string]any{
		"global-monitor": {
			"ttl_minutes":     35,
			"timeout_minutes": 30,
			"schedule":        "15min",
			"mode":            "global",
		},
		"korea-monitor": {
			"ttl_minutes":     35,
			"timeout_minutes": 30,
			"schedule":        "30min",
			"mode":            "korea",
		},
		"unified-monitor": {
			"ttl_minutes":     120,
			"timeout_minutes": 60,
			"schedule":        "45min",
			"mode":            "all",
		},
	})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Store.Provider {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set when provider is redis")
		}
	case "gcs":
		if c.Store.GCS.Bucket == "" {
			return fmt.Errorf("store.gcs.bucket must be set when provider is gcs")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when provider is postgres")
		}
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}

	if c.Commit.ConflictRetries < 0 {
		return fmt.Errorf("commit.conflict_retries must be >= 0")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}

	for name, dom := range c.Domains {
		if dom.TTLMinutes <= 0 {
			return fmt.Errorf("domains.%s.ttl_minutes must be > 0", name)
		}
		if dom.TimeoutMinutes <= 0 {
			return fmt.Errorf("domains.%s.timeout_minutes must be > 0", name)
		}
		if dom.TTL() <= dom.Timeout() {
			return fmt.Errorf("domains.%s: lease ttl must exceed the job timeout, else every run risks reclaim", name)
		}
	}
	return nil
}

// Domain returns the configuration for a named domain.
func (c Config) Domain(name string) (DomainConfig, error) {
	dom, ok := c.Domains[name]
	if !ok {
		return DomainConfig{}, fmt.Errorf("unknown domain %q", name)
	}
	return dom, nil
}
