// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-job-crawler/internal/geo"
	"github.com/JakeFAU/realtime-job-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-job-crawler/internal/sites"
)

// EnvPrefix is prepended to every environment override, e.g.
// JOBCRAWL_CRAWLER_MAX_THREADS=8.
const EnvPrefix = "JOBCRAWL"

// Storage backends.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Mirror backends.
const (
	MirrorLocal = "local"
	MirrorGCS   = "gcs"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig      `mapstructure:"logging"`
	Crawler   CrawlerConfig      `mapstructure:"crawler"`
	RateLimit RateLimitConfig    `mapstructure:"rate_limit"`
	Storage   StorageConfig      `mapstructure:"storage"`
	Database  DatabaseConfig     `mapstructure:"database"`
	LLM       LLMConfig          `mapstructure:"llm"`
	Headless  HeadlessConfig     `mapstructure:"headless"`
	PubSub    PubSubConfig       `mapstructure:"pubsub"`
	Progress  ProgressConfig     `mapstructure:"progress"`
	Server    ServerConfig       `mapstructure:"server"`
	Geo       GeoConfig          `mapstructure:"geo"`
	Sites     []sites.SiteConfig `mapstructure:"sites"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs the engine worker pool and the static fetcher.
type CrawlerConfig struct {
	MaxThreads     int    `mapstructure:"max_threads"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
	MaxRetries     int    `mapstructure:"max_retries"`
	QueueDepth     int    `mapstructure:"queue_depth"`
}

// RateLimitConfig configures per-host politeness.
type RateLimitConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	DefaultRPS   float64    `mapstructure:"default_rps"`
	DefaultBurst int        `mapstructure:"default_burst"`
	JitterMs     int        `mapstructure:"jitter_ms"`
	Hosts        []HostRule `mapstructure:"hosts"`
}

// HostRule overrides the default rate for one host. Hosts are a list because
// Viper splits map keys on dots.
type HostRule struct {
	Host  string  `mapstructure:"host"`
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// StorageConfig selects where crawl results live.
type StorageConfig struct {
	Backend     string       `mapstructure:"backend"`
	LinksPath   string       `mapstructure:"links_path"`
	DetailsPath string       `mapstructure:"details_path"`
	Mirror      MirrorConfig `mapstructure:"mirror"`
}

// MirrorConfig configures snapshot uploads of every saved resource.
type MirrorConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Local   struct {
		BaseDir string `mapstructure:"base_dir"`
	} `mapstructure:"local"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LLMConfig configures the semantic search and extraction capability.
type LLMConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	MaxTokens    int64  `mapstructure:"max_tokens"`
	MaxHTMLBytes int    `mapstructure:"max_html_bytes"`
	BaseURL      string `mapstructure:"base_url"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	MaxParallel        int     `mapstructure:"max_parallel"`
	NavTimeoutSec      int     `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold float64 `mapstructure:"promotion_threshold"`
	RequiredSelector   string  `mapstructure:"required_selector"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig wires the progress event hub and its sinks.
type ProgressConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LogEnabled    bool `mapstructure:"log_enabled"`
	BufferSize    int  `mapstructure:"buffer_size"`
	SinkTimeoutMs int  `mapstructure:"sink_timeout_ms"`
	Batch         struct {
		MaxEvents int `mapstructure:"max_events"`
		MaxWaitMs int `mapstructure:"max_wait_ms"`
	} `mapstructure:"batch"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey, when set, must accompany every /v1 request.
	APIKey string `mapstructure:"api_key"`
}

// GeoConfig configures distance enrichment.
type GeoConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	Origin  geo.Coordinates `mapstructure:"origin"`
	Places  []Place         `mapstructure:"places"`
}

// Place is one entry of the static geocoding table.
type Place struct {
	Address string  `mapstructure:"address"`
	Lat     float64 `mapstructure:"lat"`
	Lng     float64 `mapstructure:"lng"`
}

// PlaceTable converts the configured places for geo.NewStaticGeocoder.
func (g GeoConfig) PlaceTable() map[string]geo.Coordinates {
	out := make(map[string]geo.Coordinates, len(g.Places))
	for _, p := range g.Places {
		out[p.Address] = geo.Coordinates{Lat: p.Lat, Lng: p.Lng}
	}
	return out
}

// Load builds a Config from an optional .env file, an optional config file
// and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	if len(cfg.Sites) == 0 {
		cfg.Sites = []sites.SiteConfig{sites.VietnamWorks()}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("crawler.max_threads", 5)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", defaultUserAgent)
	v.SetDefault("crawler.accept_language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("crawler.ignore_robots", true)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.queue_depth", 16)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_rps", 0.5)
	v.SetDefault("rate_limit.default_burst", 1)
	v.SetDefault("rate_limit.jitter_ms", 1000)

	v.SetDefault("storage.backend", BackendCSV)
	v.SetDefault("storage.links_path", "data/job_link_list.csv")
	v.SetDefault("storage.details_path", "data/job_opportunities.csv")
	v.SetDefault("storage.mirror.backend", "")
	v.SetDefault("storage.mirror.prefix", "snapshots")
	v.SetDefault("storage.mirror.local.base_dir", "data/snapshots")

	v.SetDefault("database.table", "crawl_results")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_html_bytes", 100000)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.promotion_threshold", 0.5)

	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.batch.max_events", 64)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)

	v.SetDefault("server.port", 8080)

	v.SetDefault("geo.enabled", false)
	// Hanoi city center.
	v.SetDefault("geo.origin.lat", 21.0285)
	v.SetDefault("geo.origin.lng", 105.8542)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxThreads < 1 {
		return fmt.Errorf("crawler.max_threads must be >= 1")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	switch c.Storage.Backend {
	case BackendCSV, BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.LinksPath == c.Storage.DetailsPath {
		return fmt.Errorf("storage.links_path and storage.details_path must differ")
	}
	switch c.Storage.Mirror.Backend {
	case "":
	case MirrorLocal:
		if c.Storage.Mirror.Local.BaseDir == "" {
			return fmt.Errorf("storage.mirror.local.base_dir must be set for the local mirror")
		}
	case MirrorGCS:
		if c.Storage.Mirror.Bucket == "" {
			return fmt.Errorf("storage.mirror.bucket must be set for the gcs mirror")
		}
	default:
		return fmt.Errorf("unknown storage.mirror.backend %q", c.Storage.Mirror.Backend)
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key must be set when llm is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Sites) == 0 {
		return fmt.Errorf("at least one site must be configured")
	}
	for _, s := range c.Sites {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sites: %w", err)
		}
	}
	return nil
}

// Timeout returns the per-request network timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// RateLimiterConfig converts the rate_limit section for the limiter.
func (c Config) RateLimiterConfig() ratelimit.Config {
	hosts := make(map[string]ratelimit.HostLimit, len(c.RateLimit.Hosts))
	for _, h := range c.RateLimit.Hosts {
		hosts[h.Host] = ratelimit.HostLimit{RPS: h.RPS, Burst: h.Burst}
	}
	return ratelimit.Config{
		DefaultRPS:   c.RateLimit.DefaultRPS,
		DefaultBurst: c.RateLimit.DefaultBurst,
		Jitter:       time.Duration(c.RateLimit.JitterMs) * time.Millisecond,
		Hosts:        hosts,
	}
}
