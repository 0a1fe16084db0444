// Package metrics exposes Prometheus collectors for the analyzer service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	tasksTotal                 *prometheus.CounterVec
	taskDurationSeconds        *prometheus.HistogramVec
	signalsRecordedTotal       *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	searchRequestsTotal        *prometheus.CounterVec
	robotsFallbackTotal        prometheus.Counter
	headlessPromotionsTotal    *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_runs_total",
				Help: "Total number of analysis runs, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_run_duration_seconds",
				Help:    "Wall time of analysis runs, labeled by mode.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"mode"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_tasks_total",
				Help: "Total number of extraction tasks, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		taskDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_task_duration_seconds",
				Help:    "Histogram of extraction task latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 20},
			},
			[]string{"mode"},
		)

		signalsRecordedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_signals_recorded_total",
				Help: "Total signal increments committed to run tables, labeled by mode.",
			},
			[]string{"mode"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_search_requests_total",
				Help: "Total search provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_robots_fallback_total",
				Help: "robots.txt fetches that exhausted retries and fell back to allow-all.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_headless_promotions_total",
				Help: "Pages re-fetched in headless Chrome, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run.
func ObserveRun(mode, outcome string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(mode, outcome).Inc()
	runDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveTask records a finished extraction task and the signals it committed.
func ObserveTask(mode, outcome string, duration time.Duration, signals int) {
	Init()
	tasksTotal.WithLabelValues(mode, outcome).Inc()
	taskDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
	if signals > 0 {
		signalsRecordedTotal.WithLabelValues(mode).Add(float64(signals))
	}
}

// ObserveFetch adds fetched bytes for the URL's site.
func ObserveFetch(rawURL string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObserveSearch records a search provider call.
func ObserveSearch(provider, outcome string) {
	Init()
	searchRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveRobotsFallback counts a robots.txt fetch answered with allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveHeadlessPromotion counts a headless re-fetch attempt.
func ObserveHeadlessPromotion(outcome string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records time spent waiting for a host token.
func ObserveRateLimitDelay(site string, waited time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(waited.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
