package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
	"github.com/JakeFAU/signal-tally/internal/report"
	"github.com/JakeFAU/signal-tally/internal/scheduler"
	"github.com/JakeFAU/signal-tally/internal/search"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	maxRequestBody        = 1 << 20
	maxRunURLs            = 500
)

// Analyzer runs one analysis. When urls is empty the implementation resolves
// them from query.
type Analyzer interface {
	Analyze(ctx context.Context, mode analysis.Mode, urls []string, query string) (analysis.Result, error)
}

// Config tunes the HTTP layer.
type Config struct {
	// RequestTimeout caps each request, including the run it triggers.
	RequestTimeout time.Duration
	// DefaultLimit truncates ranked entries when a request sets no limit.
	DefaultLimit int
	// APIKey, when set, is required on /v1 routes via the X-API-Key header.
	APIKey  string
	Version string
}

// Server wires HTTP handlers to the analyzer.
type Server struct {
	router   chi.Router
	analyzer Analyzer
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(analyzer Analyzer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	metrics.Init()
	s := &Server{analyzer: analyzer, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/modes", s.listModes)
		r.Post("/runs", s.createRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	status := map[string]string{"status": "ready"}
	if s.cfg.Version != "" {
		status["version"] = s.cfg.Version
	}
	writeJSON(w, http.StatusOK, status)
}

type modeInfo struct {
	Mode         analysis.Mode `json:"mode"`
	Title        string        `json:"title"`
	DefaultQuery string        `json:"default_query"`
}

func (s *Server) listModes(w http.ResponseWriter, _ *http.Request) {
	modes := analysis.Modes()
	out := make([]modeInfo, 0, len(modes))
	for _, m := range modes {
		out = append(out, modeInfo{Mode: m, Title: m.Title(), DefaultQuery: m.DefaultQuery()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": out})
}

type runRequest struct {
	Mode  string   `json:"mode"`
	URLs  []string `json:"urls"`
	Query string   `json:"query"`
	Limit *int     `json:"limit"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode, err := analysis.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) > maxRunURLs {
		writeError(w, http.StatusBadRequest, "too many urls")
		return
	}
	limit := valueOrDefault(req.Limit, s.cfg.DefaultLimit)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be >= 0")
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), mode, req.URLs, req.Query)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("run request failed",
			zap.String("mode", string(mode)),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report.NewDocument(result, limit))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, analysis.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, scheduler.ErrScheduling):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
