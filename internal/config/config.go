// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultUserAgent is a desktop Chrome identity; automation-looking agents get throttled.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Storage  StorageConfig  `mapstructure:"storage"`
	API      APIConfig      `mapstructure:"api"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// CrawlerConfig governs batching, retries and concurrency.
type CrawlerConfig struct {
	ConcurrencyLimit int    `mapstructure:"concurrency_limit"`
	AttemptTimeoutMs int    `mapstructure:"attempt_timeout_ms"`
	RetryCount       int    `mapstructure:"retry_count"`
	BatchSize        int    `mapstructure:"batch_size"`
	BatchCooldownS   int    `mapstructure:"batch_cooldown_s"`
	SettleDelayMs    int    `mapstructure:"settle_delay_ms"`
	PlaceHost        string `mapstructure:"place_host"`
	// NavigationRPS caps page loads per second per host; 0 disables pacing.
	NavigationRPS   float64 `mapstructure:"navigation_rps"`
	NavigationBurst int     `mapstructure:"navigation_burst"`
}

// RendererConfig configures the browser sessions.
type RendererConfig struct {
	Headless       bool   `mapstructure:"headless"`
	UserAgent      string `mapstructure:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
	ExecPath       string `mapstructure:"exec_path"`
}

// ExtractConfig describes the labeled-link query run against rendered pages.
type ExtractConfig struct {
	HeadingSelector   string   `mapstructure:"heading_selector"`
	Label             string   `mapstructure:"label"`
	ExcludeSubstrings []string `mapstructure:"exclude_substrings"`
}

// StorageConfig sets where the catalog is read and checkpoints are written.
type StorageConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
	ResultsPath string `mapstructure:"results_path"`
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSObject   string `mapstructure:"gcs_object"`
}

// APIConfig controls the optional status/metrics listener.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig sizes the progress event buffer and optionally names a
// Pub/Sub topic that receives run milestones.
type ProgressConfig struct {
	BufferSize    int    `mapstructure:"buffer_size"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig enables span export. An empty Output writes to stderr.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

// FlagBinding maps a command-line flag onto a configuration key. The flag
// only takes precedence when it was set explicitly.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load builds a Config from defaults, an optional file, PLACECRAWL_* environment
// variables and flag bindings, in increasing order of precedence.
func Load(path string, flags ...FlagBinding) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLACECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, b := range flags {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", b.Flag.Name, err)
		}
	}

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
	v.SetDefault("crawler.concurrency_limit", 3)
	v.SetDefault("crawler.attempt_timeout_ms", 30000)
	v.SetDefault("crawler.retry_count", 2)
	v.SetDefault("crawler.batch_size", 10)
	v.SetDefault("crawler.batch_cooldown_s", 1)
	v.SetDefault("crawler.settle_delay_ms", 2000)
	v.SetDefault("crawler.place_host", "place.map.kakao.com")
	v.SetDefault("crawler.navigation_rps", 0.0)
	v.SetDefault("crawler.navigation_burst", 1)
	v.SetDefault("renderer.headless", false)
	v.SetDefault("renderer.user_agent", DefaultUserAgent)
	v.SetDefault("renderer.viewport_width", 1280)
	v.SetDefault("renderer.viewport_height", 720)
	v.SetDefault("renderer.exec_path", "")
	v.SetDefault("extract.heading_selector", "h5")
	v.SetDefault("extract.label", "URL")
	v.SetDefault("extract.exclude_substrings", []string{"kakao"})
	v.SetDefault("storage.catalog_path", "data/missing-websites.json")
	v.SetDefault("storage.results_path", "data/collected-websites.json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_object", "collected-websites.json")
	v.SetDefault("api.addr", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.pubsub_project", "")
	v.SetDefault("progress.pubsub_topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.ConcurrencyLimit <= 0 {
		return fmt.Errorf("crawler.concurrency_limit must be > 0")
	}
	if c.Crawler.AttemptTimeoutMs <= 0 {
		return fmt.Errorf("crawler.attempt_timeout_ms must be > 0")
	}
	if c.Crawler.RetryCount <= 0 {
		return fmt.Errorf("crawler.retry_count must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.BatchCooldownS < 0 || c.Crawler.SettleDelayMs < 0 {
		return fmt.Errorf("crawler delays must be >= 0")
	}
	if c.Crawler.NavigationRPS < 0 || c.Crawler.NavigationBurst < 0 {
		return fmt.Errorf("crawler navigation pacing must be >= 0")
	}
	if strings.TrimSpace(c.Crawler.PlaceHost) == "" {
		return fmt.Errorf("crawler.place_host is required")
	}
	if c.Renderer.ViewportWidth <= 0 || c.Renderer.ViewportHeight <= 0 {
		return fmt.Errorf("renderer viewport must be positive")
	}
	if strings.TrimSpace(c.Storage.CatalogPath) == "" {
		return fmt.Errorf("storage.catalog_path is required")
	}
	if (c.Progress.PubSubProject == "") != (c.Progress.PubSubTopic == "") {
		return fmt.Errorf("progress.pubsub_project and progress.pubsub_topic must be set together")
	}
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.ResultsPath) == "" {
			return fmt.Errorf("storage.results_path is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" || c.Storage.GCSObject == "" {
			return fmt.Errorf("storage.gcs_bucket and storage.gcs_object are required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// AttemptTimeout is the per-navigation deadline.
func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Crawler.AttemptTimeoutMs) * time.Millisecond
}

// SettleDelay is the unconditional post-navigation pause.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Crawler.SettleDelayMs) * time.Millisecond
}

// BatchCooldown is the pause between batches.
func (c Config) BatchCooldown() time.Duration {
	return time.Duration(c.Crawler.BatchCooldownS) * time.Second
}
