package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/gatherers"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

func newTestGateway(t *testing.T, cfg *config.GatewayConfig) (*gateway, *metrics.Collector) {
	t.Helper()
	logger := logging.NewDiscard("test")
	collector := metrics.NewCollector("test")
	services := scattergather.NewServices(
		scattergather.WithServiceLogger(logger),
		scattergather.WithServiceMetrics(collector),
	)
	require.NoError(t, gatherers.RegisterBuiltins(services))

	if cfg == nil {
		cfg = &config.GatewayConfig{Addr: ":0"}
	}
	gw, err := newGateway(cfg, services, collector, logger)
	require.NoError(t, err)
	return gw, collector
}

func TestGateway_ServesConfiguredRoutes(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Value":"A"},{"Value":"B"}]`))
	}))
	defer downstream.Close()

	gw, _ := newTestGateway(t, nil)
	require.NoError(t, gw.mapRoutes(parseSection(t, `
- Template: /samples
  Gatherers:
    - Key: remote
      DestinationUrl: `+downstream.URL+`
    - Type: static
      Key: local
      Items:
        - Value: C
`)))

	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/samples", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	var items []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.ElementsMatch(t, []map[string]string{{"Value": "A"}, {"Value": "B"}, {"Value": "C"}}, items)

	rec = httptest.NewRecorder()
	gw.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []scattergather.RouteInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "/samples", routes[0].Template)
	assert.Equal(t, []string{"remote", "local"}, routes[0].Gatherers)
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	gw, _ := newTestGateway(t, nil)

	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	rec = httptest.NewRecorder()
	gw.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestGateway_RateLimit(t *testing.T) {
	gw, _ := newTestGateway(t, &config.GatewayConfig{Addr: ":0", RateLimitRPS: 1, RateLimitBurst: 1})

	first := httptest.NewRecorder()
	gw.router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	gw.router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestGateway_InvalidRoutes(t *testing.T) {
	gw, _ := newTestGateway(t, nil)
	err := gw.mapRoutes(parseSection(t, `
- Template: /x
  Gatherers:
    - Type: nope
      Key: a
`))
	assert.ErrorIs(t, err, scattergather.ErrUnknownGathererType)
}

func TestGateway_CORSPreflight(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Value":"A"}]`))
	}))
	defer downstream.Close()

	gw, _ := newTestGateway(t, &config.GatewayConfig{Addr: ":0", CORSOrigins: []string{"https://app.example.com"}})
	require.NoError(t, gw.mapRoutes(parseSection(t, `
- Template: /samples
  Gatherers:
    - Key: remote
      DestinationUrl: `+downstream.URL+`
`)))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/samples", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		gw.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://app.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)

	rec = preflight("https://evil.example.org")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/samples", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	gw.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestGateway_HandlerWithoutCORS(t *testing.T) {
	gw, _ := newTestGateway(t, nil)
	assert.Same(t, gw.router, gw.handler)
}

func parseSection(t *testing.T, data string) config.Section {
	t.Helper()
	s, err := config.Parse([]byte(data))
	require.NoError(t, err)
	return s
}
