package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRouter(mw ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw...)
	r.Get("/v1/sync/status/{domain}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/migrations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("nil metrics pass through", func(t *testing.T) {
		t.Parallel()
		var m *HTTPMetrics
		router := newRouter(m.Middleware)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync/status/incidents", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("records route pattern", func(t *testing.T) {
		t.Parallel()
		reader, mp := newManualProvider(t)
		m, err := NewHTTPMetrics(mp)
		require.NoError(t, err)

		router := newRouter(m.Middleware)
		for _, domain := range []string{"incidents", "training"} {
			router.ServeHTTP(httptest.NewRecorder(),
				httptest.NewRequest(http.MethodGet, "/v1/sync/status/"+domain, nil))
		}

		got := collect(t, reader, HTTPMeterName)
		sum, ok := got["safety_sync_http_requests_total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		route, _ := sum.DataPoints[0].Attributes.Value("route")
		assert.Equal(t, "/v1/sync/status/{domain}", route.AsString())
		assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	})
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("nil provider pass through", func(t *testing.T) {
		t.Parallel()
		router := newRouter(TracingMiddleware(nil))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync/status/incidents", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("names span after route", func(t *testing.T) {
		t.Parallel()
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

		router := newRouter(TracingMiddleware(tp))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sync/status/incidents", nil))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/migrations", nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		assert.Equal(t, "GET /v1/sync/status/{domain}", spans[0].Name)
		assert.Equal(t, codes.Unset, spans[0].Status.Code)
		assert.Equal(t, "POST /v1/migrations", spans[1].Name)
		assert.Equal(t, codes.Error, spans[1].Status.Code)
	})
}
