// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fetcher kinds selectable via fetcher.kind.
const (
	FetcherHTTP     = "http"
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
)

// Output formats selectable via output.format.
const (
	FormatJSONL    = "jsonl"
	FormatSQLite   = "sqlite"
	FormatWARC     = "warc"
	FormatPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Frontier   FrontierConfig   `mapstructure:"frontier"`
	Output     OutputConfig     `mapstructure:"output"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlConfig governs scheduling behavior.
type CrawlConfig struct {
	Seeds        []string `mapstructure:"seeds"`
	MaxPages     int      `mapstructure:"max_pages"`
	MaxDepth     int      `mapstructure:"max_depth"`
	SameOrigin   bool     `mapstructure:"same_origin"`
	Concurrency  int      `mapstructure:"concurrency"`
	RetryPasses  int      `mapstructure:"retry_passes"`
	GlobalRPS    float64  `mapstructure:"global_rps"`
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// PolitenessConfig governs robots.txt handling and per-origin spacing.
type PolitenessConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	DelaySeconds     float64 `mapstructure:"delay_seconds"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	RobotsTTLSeconds int     `mapstructure:"robots_ttl_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// Delay returns the configured per-origin minimum spacing.
func (p PolitenessConfig) Delay() time.Duration {
	return time.Duration(p.DelaySeconds * float64(time.Second))
}

// RobotsTTL returns how long a cached robots.txt ruleset stays fresh.
func (p PolitenessConfig) RobotsTTL() time.Duration {
	return time.Duration(p.RobotsTTLSeconds) * time.Second
}

// FetcherConfig selects and tunes the fetch transport.
type FetcherConfig struct {
	Kind           string         `mapstructure:"kind"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// Timeout returns the per-request fetch timeout.
func (f FetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// HeadlessConfig configures the browser-rendering transport.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// NavTimeout returns the page navigation deadline for the browser transport.
func (h HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(h.NavTimeoutSeconds) * time.Second
}

// FrontierConfig controls queue persistence and the seen-set sizing.
type FrontierConfig struct {
	DBPath        string  `mapstructure:"db_path"`
	SeenCapacity  uint    `mapstructure:"seen_capacity"`
	SeenErrorRate float64 `mapstructure:"seen_error_rate"`
}

// OutputConfig selects where result records go.
type OutputConfig struct {
	Dir      string         `mapstructure:"dir"`
	Format   string         `mapstructure:"format"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds the DSN and table for the postgres sink.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// APIConfig toggles the ops HTTP endpoint.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLKIT")
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
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.same_origin", true)
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.retry_passes", 0)
	v.SetDefault("crawl.global_rps", 0)

	v.SetDefault("politeness.user_agent", "crawlkit/0.1 (+https://github.com/crawlkit/crawlkit)")
	v.SetDefault("politeness.delay_seconds", 1.0)
	v.SetDefault("politeness.respect_robots", true)
	v.SetDefault("politeness.robots_ttl_seconds", 3600)
	v.SetDefault("politeness.max_retries", 3)

	v.SetDefault("fetcher.kind", FetcherHTTP)
	v.SetDefault("fetcher.timeout_seconds", 10)
	v.SetDefault("fetcher.headless.max_parallel", 2)
	v.SetDefault("fetcher.headless.nav_timeout_seconds", 45)

	v.SetDefault("frontier.db_path", "crawl_results/frontier.db")
	v.SetDefault("frontier.seen_capacity", 100000)
	v.SetDefault("frontier.seen_error_rate", 0.001)

	v.SetDefault("output.dir", "crawl_results")
	v.SetDefault("output.format", FormatJSONL)
	v.SetDefault("output.postgres.table", "pages")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8077)

	v.SetDefault("logging.development", false)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be positive, got %d", c.Crawl.MaxPages)
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be non-negative, got %d", c.Crawl.MaxDepth)
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be positive, got %d", c.Crawl.Concurrency)
	}
	if c.Politeness.DelaySeconds < 0 {
		return fmt.Errorf("politeness.delay_seconds must be non-negative, got %f", c.Politeness.DelaySeconds)
	}
	if c.Politeness.MaxRetries < 0 {
		return fmt.Errorf("politeness.max_retries must be non-negative, got %d", c.Politeness.MaxRetries)
	}
	switch c.Fetcher.Kind {
	case FetcherHTTP, FetcherColly, FetcherHeadless:
	default:
		return fmt.Errorf("fetcher.kind must be one of http, colly, headless; got %q", c.Fetcher.Kind)
	}
	switch c.Output.Format {
	case FormatJSONL, FormatSQLite, FormatWARC, FormatPostgres:
	default:
		return fmt.Errorf("output.format must be one of jsonl, sqlite, warc, postgres; got %q", c.Output.Format)
	}
	if c.Output.Format == FormatPostgres && c.Output.Postgres.DSN == "" {
		return fmt.Errorf("output.postgres.dsn is required for postgres output")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port, got %d", c.API.Port)
	}
	return nil
}
