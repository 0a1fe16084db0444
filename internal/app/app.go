// Package app builds the long-lived services behind every command and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/api"
	"github.com/JakeFAU/signal-tally/internal/clock/system"
	"github.com/JakeFAU/signal-tally/internal/config"
	collyfetcher "github.com/JakeFAU/signal-tally/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/signal-tally/internal/fetcher/headless"
	"github.com/JakeFAU/signal-tally/internal/hash/sha256"
	"github.com/JakeFAU/signal-tally/internal/headless/detector"
	"github.com/JakeFAU/signal-tally/internal/id/uuid"
	"github.com/JakeFAU/signal-tally/internal/logging"
	"github.com/JakeFAU/signal-tally/internal/metrics"
	"github.com/JakeFAU/signal-tally/internal/policy/ratelimit"
	"github.com/JakeFAU/signal-tally/internal/progress"
	progresssinks "github.com/JakeFAU/signal-tally/internal/progress/sinks"
	"github.com/JakeFAU/signal-tally/internal/scheduler"
	"github.com/JakeFAU/signal-tally/internal/search"
	localstorage "github.com/JakeFAU/signal-tally/internal/storage/local"
	"github.com/JakeFAU/signal-tally/internal/telemetry"
)

// Version is reported in traces and the API; set at link time.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	scheduler *scheduler.Scheduler
	search    search.Provider
	artifacts *localstorage.Store
	hasher    *sha256.Hasher

	progressHub    *progress.Hub
	headless       *headlessfetcher.Fetcher
	tracerShutdown func(context.Context) error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	fetcher    analysis.Fetcher
	delay      analysis.Delayer
	search     search.Provider
}

// WithLogger skips logger construction and uses logger instead.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer sets the registry for the progress collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFetcher replaces the HTTP fetch stack.
func WithFetcher(fetcher analysis.Fetcher) Option {
	return func(o *options) { o.fetcher = fetcher }
}

// WithDelay replaces the politeness delay between fetches.
func WithDelay(delay analysis.Delayer) Option {
	return func(o *options) { o.delay = delay }
}

// WithSearch replaces the configured search provider.
func WithSearch(provider search.Provider) Option {
	return func(o *options) { o.search = provider }
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("pool_size", cfg.Pool.Size),
		zap.String("search_provider", cfg.Search.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	if err := a.setupTelemetry(ctx); err != nil {
		return nil, err
	}
	emitter, err := a.setupProgress(o.registerer)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = a.setupFetcher()
	}
	delay := o.delay
	if delay == nil {
		delay = analysis.NewRandomDelay(cfg.Task.DelayMin, cfg.Task.DelayMax)
	}
	extractors, err := setupExtractors(fetcher, delay, cfg.Vocabulary)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}

	a.scheduler = scheduler.New(scheduler.Config{
		PoolSize:     cfg.Pool.Size,
		TaskTimeout:  cfg.Task.Timeout,
		DrainTimeout: cfg.Run.DrainTimeout,
	}, extractors,
		scheduler.WithIDGenerator(uuid.New()),
		scheduler.WithClock(system.New()),
		scheduler.WithEmitter(emitter),
		scheduler.WithLogger(logger.Named("scheduler")),
	)

	a.search = o.search
	if a.search == nil {
		a.search, err = a.setupSearch()
		if err != nil {
			a.closeQuietly()
			return nil, err
		}
	}

	if cfg.Report.OutputDir != "" {
		a.artifacts, err = localstorage.New(localstorage.Config{BaseDir: cfg.Report.OutputDir})
		if err != nil {
			a.closeQuietly()
			return nil, fmt.Errorf("report store init failed: %w", err)
		}
		a.hasher = sha256.New()
		logger.Debug("report artifacts enabled", zap.String("path", cfg.Report.OutputDir))
	}

	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Scheduler returns the run scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Handler builds the HTTP API handler.
func (a *App) Handler() http.Handler {
	return api.NewServer(a, api.Config{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		DefaultLimit:   a.cfg.Report.Limit,
		APIKey:         a.cfg.Server.APIKey,
		Version:        Version,
	}, a.logger.Named("api")).Handler()
}

func (a *App) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Version:     Version,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
		LogSpans:    a.cfg.Telemetry.LogSpans,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown
	a.logger.Info("tracing enabled", zap.Float64("sample_ratio", a.cfg.Telemetry.SampleRatio))
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress sink init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger),
		promSink,
	)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub, nil
}

// setupFetcher layers the fetch stack: colly static fetcher, optional headless
// promotion, then per-host rate limiting.
func (a *App) setupFetcher() analysis.Fetcher {
	fc := a.cfg.Fetch
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:        fc.UserAgent,
		Accept:           fc.Accept,
		AcceptLanguage:   fc.AcceptLanguage,
		AcceptEncoding:   fc.AcceptEncoding,
		KeepAlive:        fc.KeepAlive,
		Timeout:          fc.Timeout,
		MaxBodySize:      fc.MaxBodySize,
		FollowRedirects:  fc.FollowRedirects,
		IgnoreHTTPErrors: fc.IgnoreHTTPErrors,
		RespectRobots:    fc.RespectRobots,
	}, a.logger.Named("colly"))
	a.logger.Info("using colly static fetcher",
		zap.Duration("timeout", fc.Timeout),
		zap.Bool("respect_robots", fc.RespectRobots),
	)

	var fetcher analysis.Fetcher = static
	if a.cfg.Headless.Enabled {
		var renderer analysis.Fetcher
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         fc.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavigationTimeout,
			SettleDelay:       a.cfg.Headless.SettleDelay,
			MaxBodySize:       fc.MaxBodySize,
			IgnoreHTTPErrors:  fc.IgnoreHTTPErrors,
			Headers:           http.Header{"Accept-Language": []string{fc.AcceptLanguage}},
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed, promotions disabled", zap.Error(err))
			renderer = headlessfetcher.NewNoop()
		} else {
			a.headless = hf
			renderer = hf
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
		fetcher = headlessfetcher.NewPromoting(static, renderer,
			detector.NewHeuristic(a.cfg.Headless.PromotionThreshold),
			a.logger.Named("headless"))
	}

	if fc.RateLimitRPS > 0 {
		a.logger.Info("per-host rate limit enabled",
			zap.Float64("rps", fc.RateLimitRPS), zap.Int("burst", fc.RateLimitBurst))
		fetcher = ratelimit.New(ratelimit.Config{
			PerHostRPS: fc.RateLimitRPS,
			Burst:      fc.RateLimitBurst,
		}).Wrap(fetcher)
	}
	return fetcher
}

func setupExtractors(fetcher analysis.Fetcher, delay analysis.Delayer, vocabulary []string) ([]analysis.Extractor, error) {
	extractors := make([]analysis.Extractor, 0, len(analysis.Modes()))
	for _, mode := range analysis.Modes() {
		e, err := analysis.NewExtractor(mode, fetcher, delay, vocabulary)
		if err != nil {
			return nil, fmt.Errorf("%s extractor init failed: %w", mode, err)
		}
		extractors = append(extractors, e)
	}
	return extractors, nil
}

func (a *App) setupSearch() (search.Provider, error) {
	static := search.NewStatic(nil)
	if a.cfg.Search.Provider != config.SearchSerper {
		a.logger.Info("using static search provider")
		return a.filterSearch(static), nil
	}
	serper, err := search.NewSerper(search.SerperConfig{
		Endpoint:       a.cfg.Search.SerperEndpoint,
		APIKey:         a.cfg.Search.SerperAPIKey,
		Timeout:        a.cfg.Search.Timeout,
		MaxResults:     a.cfg.Search.MaxResults,
		MaxRetries:     a.cfg.Search.MaxRetries,
		RetryBaseDelay: a.cfg.Search.RetryBaseDelay,
	}, nil, a.logger.Named("serper"))
	if err != nil {
		return nil, fmt.Errorf("serper init failed: %w", err)
	}
	a.logger.Info("using serper search provider with static fallback")
	return a.filterSearch(&search.Fallback{Primary: serper, Secondary: static, Logger: a.logger.Named("search")}), nil
}

func (a *App) filterSearch(p search.Provider) search.Provider {
	return search.NewFiltered(p, a.cfg.Search.BlockedDomains, a.logger.Named("search"))
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := a.logger.Sync(); err != nil && !isStdSyncErr(err) {
		errs = append(errs, fmt.Errorf("logger sync: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("partial build cleanup failed", zap.Error(err))
	}
}

// isStdSyncErr reports the EINVAL/ENOTTY errors fsync returns for stdout and
// stderr on most platforms.
func isStdSyncErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
