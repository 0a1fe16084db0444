// Package collyfetcher implements analysis.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

// Browser-like request defaults.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	// DefaultAcceptEncoding only advertises gzip, the one encoding colly decodes.
	DefaultAcceptEncoding = "gzip"
	DefaultTimeout        = 15 * time.Second
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	AcceptEncoding string
	KeepAlive      bool
	Timeout        time.Duration
	// MaxBodySize caps the response body in bytes. Zero means unlimited.
	MaxBodySize int
	// FollowRedirects makes the fetcher follow 3xx responses.
	FollowRedirects bool
	// IgnoreHTTPErrors returns 4xx/5xx pages as documents instead of errors.
	IgnoreHTTPErrors bool
	RespectRobots    bool
}

// DefaultConfig mirrors a desktop browser that follows redirects and keeps
// error pages.
func DefaultConfig() Config {
	return Config{
		UserAgent:        DefaultUserAgent,
		Accept:           DefaultAccept,
		AcceptLanguage:   DefaultAcceptLanguage,
		AcceptEncoding:   DefaultAcceptEncoding,
		KeepAlive:        true,
		Timeout:          DefaultTimeout,
		FollowRedirects:  true,
		IgnoreHTTPErrors: true,
	}
}

// Fetcher implements analysis.Fetcher using the Colly collector. Every Fetch
// runs on a clone of one base collector so connection pooling is shared.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.MaxBodySize = cfg.MaxBodySize
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.ParseHTTPErrorResponse = cfg.IgnoreHTTPErrors
	// Clones share the visited store; the same URL may be analyzed by many runs.
	c.AllowURLRevisit = true
	c.WithTransport(newRobotsTransport(newHTTPTransport(cfg.KeepAlive), logger))
	c.SetRequestTimeout(cfg.Timeout)
	if !cfg.FollowRedirects {
		c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, url string) (analysis.Document, error) {
	var (
		result   analysis.Document
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, url, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return analysis.Document{}, err
	}
	metrics.ObserveFetch(url, len(result.Body))
	f.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	url string,
	start time.Time,
	result *analysis.Document,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		doc := analysis.Document{
			URL:        url,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Request != nil && r.Request.URL != nil {
			doc.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			doc.Headers = r.Headers.Clone()
		}
		*result = doc
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	set := func(key, value string) {
		if value != "" {
			r.Headers.Set(key, value)
		}
	}
	set("Accept", f.cfg.Accept)
	set("Accept-Language", f.cfg.AcceptLanguage)
	set("Accept-Encoding", f.cfg.AcceptEncoding)
	set("Upgrade-Insecure-Requests", "1")
	if f.cfg.KeepAlive {
		set("Connection", "keep-alive")
	}
}

func newHTTPTransport(keepAlive bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		DisableKeepAlives:     !keepAlive,
	}
}
