// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/modes lists the supported analyses.
//   - POST /v1/runs runs an analysis synchronously and returns the ranking.
package api
