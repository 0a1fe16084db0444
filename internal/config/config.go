// Package config loads and validates signal-tally configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/report"
)

// EnvPrefix is prepended to every environment override, e.g. TALLY_POOL_SIZE.
const EnvPrefix = "TALLY"

// Search provider names.
const (
	SearchStatic = "static"
	SearchSerper = "serper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig   `mapstructure:"logging"`
	Pool       PoolConfig      `mapstructure:"pool"`
	Run        RunConfig       `mapstructure:"run"`
	Task       TaskConfig      `mapstructure:"task"`
	Fetch      FetchConfig     `mapstructure:"fetch"`
	Headless   HeadlessConfig  `mapstructure:"headless"`
	Search     SearchConfig    `mapstructure:"search"`
	Report     ReportConfig    `mapstructure:"report"`
	Server     ServerConfig    `mapstructure:"server"`
	Progress   ProgressConfig  `mapstructure:"progress"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
	Vocabulary []string        `mapstructure:"vocabulary"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PoolConfig sizes the worker pool of each run.
type PoolConfig struct {
	Size int `mapstructure:"size"`
}

// RunConfig bounds a whole run.
type RunConfig struct {
	// DrainTimeout caps how long a run waits for its tasks. Zero disables it.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// TaskConfig bounds a single URL's extraction.
type TaskConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	DelayMin time.Duration `mapstructure:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Accept           string        `mapstructure:"accept"`
	AcceptLanguage   string        `mapstructure:"accept_language"`
	AcceptEncoding   string        `mapstructure:"accept_encoding"`
	KeepAlive        bool          `mapstructure:"keep_alive"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxBodySize      int           `mapstructure:"max_body_size"`
	FollowRedirects  bool          `mapstructure:"follow_redirects"`
	IgnoreHTTPErrors bool          `mapstructure:"ignore_http_errors"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	RateLimitRPS     float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// SearchConfig selects and configures the URL search provider.
type SearchConfig struct {
	Provider       string        `mapstructure:"provider"`
	SerperAPIKey   string        `mapstructure:"serper_api_key"`
	SerperEndpoint string        `mapstructure:"serper_endpoint"`
	MaxResults     int           `mapstructure:"max_results"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	BlockedDomains []string      `mapstructure:"blocked_domains"`
}

// ReportConfig controls result rendering.
type ReportConfig struct {
	Format     string `mapstructure:"format"`
	Limit      int    `mapstructure:"limit"`
	ChartLimit int    `mapstructure:"chart_limit"`
	// OutputDir, when set, receives a copy of every rendered report.
	OutputDir string `mapstructure:"output_dir"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKey, when set, guards the /v1 routes.
	APIKey string `mapstructure:"api_key"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	LogSpans    bool    `mapstructure:"log_spans"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("search.serper_api_key", EnvPrefix+"_SEARCH_SERPER_API_KEY", "SERPER_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("pool.size", 10)
	v.SetDefault("run.drain_timeout", 2*time.Minute)
	v.SetDefault("task.timeout", 20*time.Second)
	v.SetDefault("task.delay_min", time.Second)
	v.SetDefault("task.delay_max", 3*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("fetch.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	v.SetDefault("fetch.accept_language", "en-US,en;q=0.5")
	v.SetDefault("fetch.accept_encoding", "gzip")
	v.SetDefault("fetch.keep_alive", true)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_body_size", 0)
	v.SetDefault("fetch.follow_redirects", true)
	v.SetDefault("fetch.ignore_http_errors", true)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.navigation_timeout", 30*time.Second)
	v.SetDefault("headless.settle_delay", 500*time.Millisecond)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("search.provider", SearchStatic)
	v.SetDefault("search.serper_endpoint", "https://google.serper.dev/search")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.retry_base_delay", 2*time.Second)
	v.SetDefault("search.blocked_domains", []string{})
	v.SetDefault("report.format", string(report.FormatTerminal))
	v.SetDefault("report.limit", report.DefaultLimit)
	v.SetDefault("report.chart_limit", report.DefaultChartLimit)
	v.SetDefault("report.output_dir", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.api_key", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "signal-tally")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.log_spans", false)
	v.SetDefault("vocabulary", analysis.DefaultVocabulary)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Pool.Size <= 0 {
		errs = append(errs, errors.New("pool.size must be > 0"))
	}
	if c.Run.DrainTimeout < 0 {
		errs = append(errs, errors.New("run.drain_timeout must be >= 0"))
	}
	if c.Task.Timeout < 0 {
		errs = append(errs, errors.New("task.timeout must be >= 0"))
	}
	if c.Task.DelayMin < 0 || c.Task.DelayMax < 0 {
		errs = append(errs, errors.New("task.delay_min and task.delay_max must be >= 0"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be > 0"))
	}
	if c.Fetch.MaxBodySize < 0 {
		errs = append(errs, errors.New("fetch.max_body_size must be >= 0"))
	}
	if c.Fetch.RateLimitRPS < 0 {
		errs = append(errs, errors.New("fetch.rate_limit_rps must be >= 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	switch c.Search.Provider {
	case SearchStatic:
	case SearchSerper:
		if strings.TrimSpace(c.Search.SerperAPIKey) == "" {
			errs = append(errs, errors.New("search.serper_api_key must be set when search.provider is serper"))
		}
	default:
		errs = append(errs, fmt.Errorf("search.provider must be %q or %q", SearchStatic, SearchSerper))
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		errs = append(errs, fmt.Errorf("report.format: %w", err))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be within [0, 1]"))
	}
	if _, err := analysis.NewFeatureExtractor(nil, nil, c.Vocabulary); err != nil {
		errs = append(errs, fmt.Errorf("vocabulary: %w", err))
	}
	return errors.Join(errs...)
}
