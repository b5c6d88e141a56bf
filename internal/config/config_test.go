package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.ConcurrencyLimit != 3 || cfg.Crawler.RetryCount != 2 || cfg.Crawler.BatchSize != 10 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if got := cfg.AttemptTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s attempt timeout, got %v", got)
	}
	if got := cfg.SettleDelay(); got != 2*time.Second {
		t.Fatalf("expected 2s settle delay, got %v", got)
	}
	if got := cfg.BatchCooldown(); got != time.Second {
		t.Fatalf("expected 1s cooldown, got %v", got)
	}
	if cfg.Renderer.ViewportWidth != 1280 || cfg.Renderer.ViewportHeight != 720 {
		t.Fatalf("unexpected viewport defaults: %+v", cfg.Renderer)
	}
	if cfg.Renderer.UserAgent != DefaultUserAgent {
		t.Fatalf("expected default user agent, got %q", cfg.Renderer.UserAgent)
	}
	if len(cfg.Extract.ExcludeSubstrings) != 1 || cfg.Extract.ExcludeSubstrings[0] != "kakao" {
		t.Fatalf("unexpected exclude defaults: %v", cfg.Extract.ExcludeSubstrings)
	}
	if cfg.Storage.Backend != "local" || cfg.API.Addr != "" {
		t.Fatalf("unexpected storage/api defaults: %+v %+v", cfg.Storage, cfg.API)
	}
	if cfg.Tracing.Enabled {
		t.Fatalf("tracing should be off by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  concurrency_limit: 5
  attempt_timeout_ms: 1500
  retry_count: 4
  batch_size: 25
  batch_cooldown_s: 3
  settle_delay_ms: 0
  place_host: place.example.test
renderer:
  headless: true
  user_agent: test-agent
  viewport_width: 800
  viewport_height: 600
extract:
  heading_selector: h4
  label: Homepage
  exclude_substrings: ["example.test", "blog"]
storage:
  catalog_path: in.json
  backend: gcs
  gcs_bucket: checkpoints
  gcs_object: runs/results.json
api:
  addr: ":9090"
logging:
  development: false
tracing:
  enabled: true
  output: spans.json
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawler.ConcurrencyLimit != 5 || cfg.Crawler.RetryCount != 4 || cfg.Crawler.BatchSize != 25 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if got := cfg.AttemptTimeout(); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout, got %v", got)
	}
	if got := cfg.SettleDelay(); got != 0 {
		t.Fatalf("expected zero settle delay, got %v", got)
	}
	if !cfg.Renderer.Headless || cfg.Renderer.UserAgent != "test-agent" {
		t.Fatalf("expected renderer overrides: %+v", cfg.Renderer)
	}
	if cfg.Extract.Label != "Homepage" || len(cfg.Extract.ExcludeSubstrings) != 2 {
		t.Fatalf("expected extract overrides: %+v", cfg.Extract)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSObject != "runs/results.json" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.API.Addr != ":9090" || cfg.Logging.Development {
		t.Fatalf("expected api/logging overrides: %+v %+v", cfg.API, cfg.Logging)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Output != "spans.json" {
		t.Fatalf("expected tracing overrides: %+v", cfg.Tracing)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFlagBindings(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	fs.Int("concurrency", 3, "")
	fs.Int("batch-size", 99, "")
	fs.String("api-addr", "", "")
	if err := fs.Parse([]string{"--concurrency=7", "--api-addr=:8081"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("",
		FlagBinding{Key: "crawler.concurrency_limit", Flag: fs.Lookup("concurrency")},
		FlagBinding{Key: "crawler.batch_size", Flag: fs.Lookup("batch-size")},
		FlagBinding{Key: "api.addr", Flag: fs.Lookup("api-addr")},
		FlagBinding{Key: "renderer.headless", Flag: fs.Lookup("absent")},
	)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.ConcurrencyLimit != 7 {
		t.Fatalf("expected flag to override concurrency, got %d", cfg.Crawler.ConcurrencyLimit)
	}
	if cfg.Crawler.BatchSize != 10 {
		t.Fatalf("unset flag must not override batch size, got %d", cfg.Crawler.BatchSize)
	}
	if cfg.API.Addr != ":8081" {
		t.Fatalf("expected api addr from flag, got %q", cfg.API.Addr)
	}
}

func validConfig() Config {
	return Config{
		Crawler: CrawlerConfig{
			ConcurrencyLimit: 3,
			AttemptTimeoutMs: 30000,
			RetryCount:       2,
			BatchSize:        10,
			BatchCooldownS:   1,
			SettleDelayMs:    2000,
			PlaceHost:        "place.map.kakao.com",
		},
		Renderer: RendererConfig{ViewportWidth: 1280, ViewportHeight: 720},
		Storage: StorageConfig{
			CatalogPath: "in.json",
			ResultsPath: "out.json",
			Backend:     "local",
		},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid concurrency", func(c *Config) { c.Crawler.ConcurrencyLimit = 0 }, "crawler.concurrency_limit"},
		{"invalid timeout", func(c *Config) { c.Crawler.AttemptTimeoutMs = 0 }, "crawler.attempt_timeout_ms"},
		{"invalid retries", func(c *Config) { c.Crawler.RetryCount = 0 }, "crawler.retry_count"},
		{"invalid batch size", func(c *Config) { c.Crawler.BatchSize = -1 }, "crawler.batch_size"},
		{"negative cooldown", func(c *Config) { c.Crawler.BatchCooldownS = -1 }, "delays"},
		{"missing host", func(c *Config) { c.Crawler.PlaceHost = " " }, "crawler.place_host"},
		{"negative pacing", func(c *Config) { c.Crawler.NavigationRPS = -1 }, "pacing"},
		{"bad viewport", func(c *Config) { c.Renderer.ViewportWidth = 0 }, "viewport"},
		{"missing catalog", func(c *Config) { c.Storage.CatalogPath = "" }, "storage.catalog_path"},
		{"missing results path", func(c *Config) { c.Storage.ResultsPath = "" }, "storage.results_path"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket"},
		{"pubsub topic without project", func(c *Config) { c.Progress.PubSubTopic = "milestones" }, "progress.pubsub_project"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "unknown storage.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
