// Package config loads and validates crawler configuration via Viper.
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
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Source    SourceConfig    `mapstructure:"source"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig governs the resume plan and run bounds.
type CrawlConfig struct {
	Kind string `mapstructure:"kind"`
	// StartPage is the configured lower bound; the effective start is the
	// max of this and the stored cursor.
	StartPage int `mapstructure:"start_page"`
	EndPage   int `mapstructure:"end_page"`
	// StaleClaimMinutes is how old a processing claim must be before another
	// run may steal it.
	StaleClaimMinutes int `mapstructure:"stale_claim_minutes"`
}

// SourceConfig identifies the remote listing and index endpoints.
type SourceConfig struct {
	ListingURL    string `mapstructure:"listing_url"`
	IndexURL      string `mapstructure:"index_url"`
	RowSelector   string `mapstructure:"row_selector"`
	MaxEmptyPages int    `mapstructure:"max_empty_pages"`
}

// HTTPConfig configures the outbound HTTP client and retry behavior.
type HTTPConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	HostQPS          float64 `mapstructure:"host_qps"`
}

// MongoConfig controls access to the document store.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// AnalyticsConfig controls the optional Postgres entity sink.
type AnalyticsConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// ArchiveConfig controls raw document archival.
type ArchiveConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for unit-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGSCAN")
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
	v.SetDefault("crawl.kind", "listing")
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("crawl.end_page", 0)
	v.SetDefault("crawl.stale_claim_minutes", 120)
	v.SetDefault("source.listing_url", "https://www.sebi.gov.in/sebiweb/home/HomeAction.do")
	v.SetDefault("source.row_selector", "table tr")
	v.SetDefault("source.max_empty_pages", 3)
	v.SetDefault("http.user_agent", "regscan-bot/0.1")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.host_qps", 0.5)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "regscan")
	v.SetDefault("analytics.provider", "none")
	v.SetDefault("analytics.table", "entities")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "orders")
	v.SetDefault("archive.content_type", "application/pdf")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Crawl.Kind {
	case "listing", "index":
	default:
		return fmt.Errorf("crawl.kind must be listing or index, got %q", c.Crawl.Kind)
	}
	if c.Crawl.StartPage < 1 {
		return fmt.Errorf("crawl.start_page must be >= 1")
	}
	if c.Crawl.EndPage != 0 && c.Crawl.EndPage < c.Crawl.StartPage {
		return fmt.Errorf("crawl.end_page must be 0 or >= crawl.start_page")
	}
	if c.Crawl.Kind == "listing" && c.Source.ListingURL == "" {
		return fmt.Errorf("source.listing_url is required for listing crawls")
	}
	if c.Crawl.Kind == "index" && c.Source.IndexURL == "" {
		return fmt.Errorf("source.index_url is required for index crawls")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	switch c.Analytics.Provider {
	case "none", "postgres":
	default:
		return fmt.Errorf("analytics.provider must be none or postgres, got %q", c.Analytics.Provider)
	}
	if c.Analytics.Provider == "postgres" && c.Analytics.DSN == "" {
		return fmt.Errorf("analytics.dsn is required when analytics.provider is postgres")
	}
	switch c.Archive.Provider {
	case "none", "local", "gcs":
	default:
		return fmt.Errorf("archive.provider must be none, local or gcs, got %q", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket is required when archive.provider is gcs")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir is required when archive.provider is local")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	return nil
}

// RequestTimeout returns the HTTP timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the initial retry backoff as a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry backoff cap as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// StaleClaimAge returns how old a processing claim must be before it is
// retry-eligible.
func (c Config) StaleClaimAge() time.Duration {
	return time.Duration(c.Crawl.StaleClaimMinutes) * time.Minute
}
