package middleware

import (
	"net/http"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// RequestLogging attaches a trace ID to the request (reusing the caller's
// X-Trace-ID if present) and logs method, path, status, and duration once
// the handler returns.
func RequestLogging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Trace-ID", traceID)
			w.Header().Set("X-Trace-ID", traceID)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			if logger != nil {
				logger.LogRequest(ctx, r.Method, r.URL.Path, rec.statusCode, time.Since(start))
			}
		})
	}
}
