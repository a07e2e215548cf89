// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Source    SourceConfig    `mapstructure:"source"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SourceConfig governs requests against the vendor site.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	ProbeCountryCap   int     `mapstructure:"probe_country_cap"`
	ProbeValidateCap  int     `mapstructure:"probe_validate_cap"`
}

// SyncConfig configures the external workspace sync.
type SyncConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Token        string `mapstructure:"token"`
	DatabaseID   string `mapstructure:"database_id"`
	BaseURL      string `mapstructure:"base_url"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchPauseMs int    `mapstructure:"batch_pause_ms"`
}

// SchedulerConfig sets the pipeline and health-check intervals.
type SchedulerConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	ScrapeIntervalHours   int  `mapstructure:"scrape_interval_hours"`
	HealthIntervalMinutes int  `mapstructure:"health_interval_minutes"`
}

// ArchiveConfig sets the raw-batch archive destination; an empty bucket
// disables archiving.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig holds metadata for run-summary notifications; an empty
// topic disables publishing.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RetentionConfig bounds the change-history horizon.
type RetentionConfig struct {
	ChangeHistoryDays int `mapstructure:"change_history_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
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
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("source.base_url", "https://www.ui.com/distributors/")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.requests_per_second", 5)
	v.SetDefault("source.probe_country_cap", 50)
	v.SetDefault("source.probe_validate_cap", 10)
	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.base_url", "https://api.notion.com/v1")
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.batch_pause_ms", 500)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.scrape_interval_hours", 24)
	v.SetDefault("scheduler.health_interval_minutes", 30)
	v.SetDefault("archive.prefix", "batches")
	v.SetDefault("retention.change_history_days", 90)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Missing sync
// credentials fail here, at construction time, not mid-run.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.RequestsPerSecond <= 0 {
		return fmt.Errorf("source.requests_per_second must be > 0")
	}
	if c.Sync.Enabled {
		if c.Sync.Token == "" {
			return fmt.Errorf("sync.token must be set when sync is enabled")
		}
		if c.Sync.DatabaseID == "" {
			return fmt.Errorf("sync.database_id must be set when sync is enabled")
		}
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be > 0")
	}
	if c.Retention.ChangeHistoryDays <= 0 {
		return fmt.Errorf("retention.change_history_days must be > 0")
	}
	return nil
}

// SourceTimeout converts the configured timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// BatchPause is the pause inserted between sync batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Sync.BatchPauseMs) * time.Millisecond
}

// ScrapeInterval is the scheduler's full-pipeline cadence.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scheduler.ScrapeIntervalHours) * time.Hour
}

// HealthInterval is the scheduler's health-check cadence.
func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.Scheduler.HealthIntervalMinutes) * time.Minute
}

// RetentionHorizon converts the retention days into a duration.
func (c Config) RetentionHorizon() time.Duration {
	return time.Duration(c.Retention.ChangeHistoryDays) * 24 * time.Hour
}
