package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

// DefaultSerperEndpoint is the Serper Google search API.
const DefaultSerperEndpoint = "https://google.serper.dev/search"

// ErrMissingAPIKey is returned by NewSerper without a key.
var ErrMissingAPIKey = errors.New("serper api key is required")

// SerperConfig configures the Serper provider.
type SerperConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
	// MaxRetries bounds retries on HTTP 429.
	MaxRetries int
	// RetryBaseDelay is the first backoff; each retry doubles it.
	RetryBaseDelay time.Duration
}

// Serper queries google.serper.dev and returns organic result links.
type Serper struct {
	cfg    SerperConfig
	client *http.Client
	logger *zap.Logger
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []serperResult `json:"organic"`
}

type serperResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// NewSerper builds the provider. client may be nil.
func NewSerper(cfg SerperConfig, client *http.Client, logger *zap.Logger) (*Serper, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSerperEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serper{cfg: cfg, client: client, logger: logger}, nil
}

// Name implements Provider.
func (*Serper) Name() string { return "serper" }

// Search implements Provider. Results without a title or link are skipped.
func (s *Serper) Search(ctx context.Context, mode analysis.Mode, query string) ([]string, error) {
	query, err := resolveQuery(mode, query)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(serperRequest{Q: query, Num: s.cfg.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("encode serper request: %w", err)
	}

	resp, err := s.doWithRetry(ctx, payload)
	if err != nil {
		metrics.ObserveSearch(s.Name(), "error")
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveSearch(s.Name(), "error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.ObserveSearch(s.Name(), "error")
		return nil, fmt.Errorf("decode serper response: %w", err)
	}

	links := make([]string, 0, len(decoded.Organic))
	for _, r := range decoded.Organic {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		links = append(links, r.Link)
	}
	links = dedupe(links)
	if s.cfg.MaxResults > 0 && len(links) > s.cfg.MaxResults {
		links = links[:s.cfg.MaxResults]
	}
	metrics.ObserveSearch(s.Name(), "ok")
	s.logger.Info("search completed",
		zap.String("provider", s.Name()),
		zap.String("mode", string(mode)),
		zap.String("query", query),
		zap.Int("results", len(links)),
	)
	return links, nil
}

// doWithRetry posts payload and retries HTTP 429 with exponential backoff.
// After the last retry the 429 response is returned to the caller.
func (s *Serper) doWithRetry(ctx context.Context, payload []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build serper request: %w", err)
		}
		req.Header.Set("X-API-KEY", s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("serper request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= s.cfg.MaxRetries {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		backoff := s.cfg.RetryBaseDelay << attempt
		s.logger.Warn("search rate limited, backing off",
			zap.Duration("backoff", backoff),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.cfg.MaxRetries),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("serper backoff: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
