package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsAwareTransport only intervenes on robots.txt requests. A request that
// keeps timing out is answered with an allow-all file so the document fetch
// that triggered it can still proceed.
type robotsAwareTransport struct {
	base    http.RoundTripper
	logger  *zap.Logger
	backoff []time.Duration
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsAwareTransport {
	return &robotsAwareTransport{base: base, logger: logger}
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: request without url")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}
	return t.fetchRobots(req)
}

func (t *robotsAwareTransport) fetchRobots(req *http.Request) (*http.Response, error) {
	backoff := t.backoff
	if backoff == nil {
		backoff = defaultRobotsBackoff
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !retryableRobotsError(err) {
			return nil, fmt.Errorf("robots fetch %s: %w", req.URL.Host, err)
		}
		lastErr = err
		if attempt >= len(backoff) {
			break
		}
		select {
		case <-req.Context().Done():
			return nil, fmt.Errorf("robots fetch %s: %w", req.URL.Host, req.Context().Err())
		case <-time.After(backoff[attempt]):
		}
	}

	metrics.ObserveRobotsFallback()
	if t.logger != nil {
		t.logger.Warn("robots.txt unreachable, assuming allow-all",
			zap.String("host", req.URL.Host),
			zap.Int("attempts", len(backoff)+1),
			zap.Error(lastErr),
		)
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}, nil
}

// retryableRobotsError reports timeouts, including TLS handshake timeouts.
func retryableRobotsError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
