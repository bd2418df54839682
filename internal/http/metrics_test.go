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
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/ask", func(c echo.Context) error {
		m.RecordAsk(outcomeOK)
		return c.JSON(http.StatusOK, AskResponse{Answer: "a"})
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/ask", nil),
		httptest.NewRequest(http.MethodPost, "/ask", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			found[mm.Name] = mm
		}
	}

	require.Contains(t, found, "bellaqa.http.requests_total")
	require.Contains(t, found, "bellaqa.http.request_duration_seconds")
	require.Contains(t, found, "bellaqa.http.ask_total")

	requests := found["bellaqa.http.requests_total"].Data.(metricdata.Sum[int64])
	perRoute := map[string]int64{}
	for _, dp := range requests.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		perRoute[route.AsString()] += dp.Value
	}
	assert.Equal(t, int64(1), perRoute["/health"])
	assert.Equal(t, int64(2), perRoute["/ask"])

	asks := found["bellaqa.http.ask_total"].Data.(metricdata.Sum[int64])
	require.Len(t, asks.DataPoints, 1)
	assert.Equal(t, int64(2), asks.DataPoints[0].Value)
}
