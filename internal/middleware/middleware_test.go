package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "caller-trace")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "caller-trace", seen)
	assert.Equal(t, "caller-trace", rec.Header().Get(TraceHeader))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("test", "info", "json")
	logger.SetOutput(&buf)

	router := mux.NewRouter()
	router.Use(TracingMiddleware, LoggingMiddleware(logger))
	router.HandleFunc("/samples", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/samples", nil)
	req.Header.Set(TraceHeader, "trace-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"trace-1"`)
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	collector := metrics.NewCollector("test")
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(collector))
	router.HandleFunc("/items/{id}", okHandler)

	for _, id := range []string{"1", "2", "3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_http_requests_total{method="GET",path="/items/{id}",status="200"} 3`)
	assert.Contains(t, string(body), `test_http_inflight_requests 0`)
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.com", ".partner.io"}).Handler(http.HandlerFunc(okHandler))

	tests := []struct {
		name    string
		method  string
		origin  string
		allowed bool
		status  int
	}{
		{"exact origin", http.MethodGet, "https://app.example.com", true, http.StatusOK},
		{"subdomain", http.MethodGet, "https://shop.partner.io", true, http.StatusOK},
		{"bare domain", http.MethodGet, "https://partner.io", true, http.StatusOK},
		{"suffix trick", http.MethodGet, "https://evilpartner.io", false, http.StatusOK},
		{"unknown", http.MethodGet, "https://other.com", false, http.StatusOK},
		{"preflight allowed", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent},
		{"preflight refused", http.MethodOptions, "https://other.com", false, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/samples", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.allowed {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSMiddleware_AllowAll(t *testing.T) {
	handler := NewCORSMiddleware([]string{"*"}).Handler(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.dev")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://anything.dev", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.NewDiscard("test"))
	handler := rl.Handler(http.HandlerFunc(okHandler))

	request := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.1:2222").Code)

	limited := request("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "rate limit exceeded")

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1111").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDiscard("test"))
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(time.Minute)
	rl.getLimiter("b")

	rl.Cleanup(30 * time.Second)
	assert.Equal(t, 1, rl.size())
}
