package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fastBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

func TestRobotsFetchFallsBackToAllowAll(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{
		context.DeadlineExceeded,
		context.DeadlineExceeded,
		errors.New("net/http: tls: handshake timeout"),
		context.DeadlineExceeded,
	}}
	transport := &robotsAwareTransport{base: base, logger: zap.NewNop(), backoff: fastBackoff}

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://journal.example/robots.txt", nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 4, base.calls)
}

func TestRobotsFetchStopsOnSuccess(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{context.DeadlineExceeded, nil}}
	transport := &robotsAwareTransport{base: base, backoff: fastBackoff}

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://journal.example/ROBOTS.TXT", nil))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 2, base.calls)
}

func TestRobotsFetchNonTimeoutFails(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{errors.New("connection refused")}}
	transport := newRobotsTransport(base, nil)

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://journal.example/robots.txt", nil))
	require.ErrorContains(t, err, "connection refused")
	require.Nil(t, resp)
	require.Equal(t, 1, base.calls)
}

func TestRobotsFetchHonorsCanceledRequest(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	base := &scriptedTransport{errs: []error{context.DeadlineExceeded}}
	transport := &robotsAwareTransport{base: base, backoff: []time.Duration{time.Hour}}

	req := httptest.NewRequest(http.MethodGet, "https://journal.example/robots.txt", nil).WithContext(ctx)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, base.calls)
}

func TestDocumentRequestsAreNotRetried(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{context.DeadlineExceeded}}
	transport := &robotsAwareTransport{base: base, backoff: fastBackoff}

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://journal.example/paper/42", nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, base.calls)
}

// scriptedTransport fails with errs in order; a nil entry succeeds. Calls
// past the script repeat its last entry.
type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := min(s.calls, len(s.errs)-1)
	s.calls++
	if err := s.errs[idx]; err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(http.NoBody),
		Request:    req,
	}, nil
}
