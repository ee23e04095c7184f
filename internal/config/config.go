// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/pagewatch/internal/guardrail"
	"github.com/JakeFAU/pagewatch/internal/retention"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// MaxAccurateTimeout caps the headless navigation budget.
const MaxAccurateTimeout = 60 * time.Second

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lease        LeaseConfig        `mapstructure:"lease"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Guardrails   GuardrailConfig    `mapstructure:"guardrails"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DatabaseConfig selects the target store.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig points at the lease server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LeaseConfig selects the per-target lease backend.
type LeaseConfig struct {
	// Backend is "redis" or "memory".
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// FetcherConfig tunes both fetch strategies.
type FetcherConfig struct {
	UserAgent       string        `mapstructure:"user_agent"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	CheapTimeout    time.Duration `mapstructure:"cheap_timeout"`
	AccurateTimeout time.Duration `mapstructure:"accurate_timeout"`
	HeadlessEnabled bool          `mapstructure:"headless_enabled"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	CheapRPS        float64       `mapstructure:"cheap_rps"`
	CheapBurst      int           `mapstructure:"cheap_burst"`
	AccurateRPS     float64       `mapstructure:"accurate_rps"`
	AccurateBurst   int           `mapstructure:"accurate_burst"`
}

// OrchestratorConfig tunes batch runs and the pipeline.
type OrchestratorConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	TickDeadline     time.Duration `mapstructure:"tick_deadline"`
	HistoryDepth     int           `mapstructure:"history_depth"`
	ProvenWindow     int           `mapstructure:"proven_window"`
	MinContentLength int           `mapstructure:"min_content_length"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	AlertOnMinor     bool          `mapstructure:"alert_on_minor"`
}

// GuardrailConfig mirrors guardrail.Limits.
type GuardrailConfig struct {
	ManualChecksFree     int     `mapstructure:"manual_checks_free"`
	ManualChecksPaid     int     `mapstructure:"manual_checks_paid"`
	HoardingTargets      int     `mapstructure:"hoarding_targets"`
	HoardingAlertRate    float64 `mapstructure:"hoarding_alert_rate"`
	VolatileWindow       int     `mapstructure:"volatile_window"`
	VolatileMinSnapshots int     `mapstructure:"volatile_min_snapshots"`
	VolatileChangeRate   float64 `mapstructure:"volatile_change_rate"`
	VolatileAlertRate    float64 `mapstructure:"volatile_alert_rate"`
	GlobalBaseline       int     `mapstructure:"global_baseline"`
	GlobalMultiplier     float64 `mapstructure:"global_multiplier"`
}

// RetentionConfig maps plan names to retention windows in days.
type RetentionConfig struct {
	Plans map[string]int `mapstructure:"plans"`
}

// ScheduleConfig holds the cron specs for the in-process scheduler.
type ScheduleConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Tick       string        `mapstructure:"tick"`
	QuotaReset string        `mapstructure:"quota_reset"`
	Retention  string        `mapstructure:"retention"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// StorageConfig selects the raw markup archive.
type StorageConfig struct {
	// Backend is "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig names the Pub/Sub project and topics. An empty project keeps
// events in memory.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	AlertTopic   string `mapstructure:"alert_topic"`
	InsightTopic string `mapstructure:"insight_topic"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
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
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lease.backend", "memory")
	v.SetDefault("lease.ttl", "5m")
	v.SetDefault("lease.prefix", "pagewatch:lease:")

	v.SetDefault("fetcher.user_agent", "pagewatch-bot/1.0")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.cheap_timeout", "30s")
	v.SetDefault("fetcher.accurate_timeout", "60s")
	v.SetDefault("fetcher.headless_enabled", false)
	v.SetDefault("fetcher.max_parallel", 2)
	v.SetDefault("fetcher.settle_delay", "500ms")
	v.SetDefault("fetcher.cheap_rps", 2.0)
	v.SetDefault("fetcher.cheap_burst", 2)
	v.SetDefault("fetcher.accurate_rps", 0.5)
	v.SetDefault("fetcher.accurate_burst", 1)

	v.SetDefault("orchestrator.concurrency", 4)
	v.SetDefault("orchestrator.tick_deadline", "50m")
	v.SetDefault("orchestrator.history_depth", 10)
	v.SetDefault("orchestrator.proven_window", 2)
	v.SetDefault("orchestrator.min_content_length", 500)
	v.SetDefault("orchestrator.throttle_interval", "72h")
	v.SetDefault("orchestrator.alert_on_minor", false)

	limits := guardrail.DefaultLimits()
	v.SetDefault("guardrails.manual_checks_free", limits.ManualChecksFree)
	v.SetDefault("guardrails.manual_checks_paid", limits.ManualChecksPaid)
	v.SetDefault("guardrails.hoarding_targets", limits.HoardingTargets)
	v.SetDefault("guardrails.hoarding_alert_rate", limits.HoardingAlertRate)
	v.SetDefault("guardrails.volatile_window", limits.VolatileWindow)
	v.SetDefault("guardrails.volatile_min_snapshots", limits.VolatileMinSnapshots)
	v.SetDefault("guardrails.volatile_change_rate", limits.VolatileChangeRate)
	v.SetDefault("guardrails.volatile_alert_rate", limits.VolatileAlertRate)
	v.SetDefault("guardrails.global_baseline", limits.GlobalBaseline)
	v.SetDefault("guardrails.global_multiplier", limits.GlobalMultiplier)

	v.SetDefault("retention.plans", map[string]int{string(watch.PlanFree): retention.DefaultFreeDays})

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.tick", "0 * * * *")
	v.SetDefault("schedule.quota_reset", "0 0 * * *")
	v.SetDefault("schedule.retention", "0 3 * * 0")
	v.SetDefault("schedule.run_timeout", "55m")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "data/raw")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("pubsub.alert_topic", "pagewatch-alerts")
	v.SetDefault("pubsub.insight_topic", "pagewatch-insights")
	v.SetDefault("telemetry.service_name", "pagewatch")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.Lease.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("lease.backend %q is not supported", c.Lease.Backend)
	}
	if c.Lease.TTL <= 0 {
		return errors.New("lease.ttl must be > 0")
	}
	if c.Fetcher.CheapTimeout <= 0 {
		return errors.New("fetcher.cheap_timeout must be > 0")
	}
	if c.Fetcher.AccurateTimeout <= 0 || c.Fetcher.AccurateTimeout > MaxAccurateTimeout {
		return fmt.Errorf("fetcher.accurate_timeout must be in (0, %s]", MaxAccurateTimeout)
	}
	if c.Fetcher.HeadlessEnabled && c.Fetcher.MaxParallel <= 0 {
		return errors.New("fetcher.max_parallel must be > 0 when headless is enabled")
	}
	if c.Orchestrator.Concurrency <= 0 {
		return errors.New("orchestrator.concurrency must be > 0")
	}
	if c.Orchestrator.TickDeadline <= 0 {
		return errors.New("orchestrator.tick_deadline must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Schedule.Enabled {
		for name, spec := range map[string]string{
			"schedule.tick":        c.Schedule.Tick,
			"schedule.quota_reset": c.Schedule.QuotaReset,
			"schedule.retention":   c.Schedule.Retention,
		} {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// Limits converts the guardrail section.
func (c Config) Limits() guardrail.Limits {
	g := c.Guardrails
	return guardrail.Limits{
		ManualChecksFree:     g.ManualChecksFree,
		ManualChecksPaid:     g.ManualChecksPaid,
		HoardingTargets:      g.HoardingTargets,
		HoardingAlertRate:    g.HoardingAlertRate,
		VolatileWindow:       g.VolatileWindow,
		VolatileMinSnapshots: g.VolatileMinSnapshots,
		VolatileChangeRate:   g.VolatileChangeRate,
		VolatileAlertRate:    g.VolatileAlertRate,
		GlobalBaseline:       g.GlobalBaseline,
		GlobalMultiplier:     g.GlobalMultiplier,
	}
}

// RetentionPolicy converts the retention section.
func (c Config) RetentionPolicy() retention.Policy {
	policy := make(retention.Policy, len(c.Retention.Plans))
	for plan, days := range c.Retention.Plans {
		policy[watch.Plan(strings.ToLower(plan))] = days
	}
	return policy
}
