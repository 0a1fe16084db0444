package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/v1/runs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})
	r.Get("/v1/modes", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	before504 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "504"))
	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/modes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, before504+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "504")))
	require.Equal(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
