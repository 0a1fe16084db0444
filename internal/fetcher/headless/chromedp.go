// Package headless contains fetchers that render pages in headless Chrome and
// a fetcher that promotes thin static pages to a rendered re-fetch.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultWaitSelector      = "body"
)

// ErrHTTPStatus is returned for error statuses when IgnoreHTTPErrors is off.
var ErrHTTPStatus = errors.New("headless document returned error status")

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel bounds open tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Headers are sent with every navigation, e.g. Accept-Language.
	Headers http.Header
	// SettleDelay is how long to wait after WaitSelector is ready so
	// client-side rendering can finish.
	SettleDelay  time.Duration
	WaitSelector string
	// MaxBodySize truncates the rendered HTML. Zero means unlimited.
	MaxBodySize      int
	IgnoreHTTPErrors bool
}

// Fetcher implements analysis.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	tabs        *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome itself
// is started lazily by the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	if cfg.MaxBodySize < 0 {
		return nil, fmt.Errorf("max body size must be >= 0, got %d", cfg.MaxBodySize)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	cfg.SettleDelay = max(cfg.SettleDelay, 0)
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = defaultWaitSelector
	}

	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("enable-automation", false),
	)
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close stops Chrome.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders url in a fresh tab and returns the resulting DOM. The tab is
// torn down when ctx is canceled.
func (f *Fetcher) Fetch(ctx context.Context, url string) (analysis.Document, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return analysis.Document{}, fmt.Errorf("wait for headless tab: %w", err)
		}
		defer f.tabs.Release(1)
	}

	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	resp := &documentResponse{}
	chromedp.ListenTarget(tabCtx, resp.observe)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tabCtx,
		f.prepareTab(),
		chromedp.Navigate(url),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return analysis.Document{}, fmt.Errorf("headless fetch %s canceled: %w", url, ctx.Err())
		}
		return analysis.Document{}, fmt.Errorf("headless fetch %s: %w", url, err)
	}

	if f.cfg.MaxBodySize > 0 && len(html) > f.cfg.MaxBodySize {
		html = html[:f.cfg.MaxBodySize]
	}
	doc := resp.document(url, location)
	doc.Body = []byte(html)
	doc.Duration = time.Since(start)
	metrics.ObserveFetch(url, len(html))

	if doc.StatusCode >= http.StatusBadRequest && !f.cfg.IgnoreHTTPErrors {
		return doc, fmt.Errorf("%w: %d for %s", ErrHTTPStatus, doc.StatusCode, url)
	}
	return doc, nil
}

// prepareTab applies the user agent and extra headers before navigation.
func (f *Fetcher) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}
