package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newHTTPMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/ask", func(c echo.Context) error {
		c.Set(outcomeKey, "out_of_scope")
		return c.JSON(http.StatusOK, map[string]string{"status": "out_of_scope"})
	})
	e.POST("/api/v1/ingest", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/ask"},
		{http.MethodPost, "/api/v1/ingest"},
		{http.MethodGet, "/nope"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	metrics := collect(t, reader)

	requests, ok := metrics["filingqa.http.requests_total"]
	require.True(t, ok)
	byClass := sumByAttr(t, requests, "status_class")
	assert.Equal(t, int64(2), byClass["2xx"])
	assert.Equal(t, int64(2), byClass["4xx"])

	hist, ok := metrics["filingqa.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)

	outcomes, ok := metrics["filingqa.http.ask_outcomes_total"]
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"out_of_scope": 1}, sumByAttr(t, outcomes, "status"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusOK))
	assert.Equal(t, "4xx", statusClass(http.StatusUnprocessableEntity))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/ask", routeLabel("/api/v1/ask"))
}
