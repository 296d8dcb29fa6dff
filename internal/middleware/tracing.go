package middleware

import (
	"net/http"
	"strings"

	"github.com/R3E-Network/composition_layer/internal/logging"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

const maxTraceIDLength = 128

// TracingMiddleware reuses the caller's X-Trace-ID or assigns a new one, stores
// it in the request context and echoes it on the response.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(TraceHeader))
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = logging.NewTraceID()
		}

		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}
