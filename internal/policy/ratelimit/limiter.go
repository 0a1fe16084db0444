// Package ratelimit applies a per-host token bucket in front of a fetcher so
// many workers hitting the same site stay polite.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// PerHostRPS is the sustained request rate per host. Zero or less
	// disables limiting.
	PerHostRPS float64
	// Burst is the bucket size per host (minimum 1).
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Hosts reports how many hosts have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Wrap returns a fetcher that waits on the limiter before delegating.
func (l *Limiter) Wrap(next analysis.Fetcher) analysis.Fetcher {
	return &fetcher{limiter: l, next: next}
}

type fetcher struct {
	limiter *Limiter
	next    analysis.Fetcher
}

func (f *fetcher) Fetch(ctx context.Context, url string) (analysis.Document, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return analysis.Document{}, err
	}
	doc, err := f.next.Fetch(ctx, url)
	if err != nil {
		return analysis.Document{}, fmt.Errorf("rate limited fetch: %w", err)
	}
	return doc, nil
}
