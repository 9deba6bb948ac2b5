package middleware

import (
	"time"

	"github.com/gorilla/mux"

	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/metrics"
)

// Config holds the transport-level settings the base middleware stack
// needs; it is a subset of the gateway's full runtime configuration.
type Config struct {
	ServiceName     string
	CORSOrigins     []string
	MaxRequestBytes int64
	RequestTimeout  time.Duration
	SecurityHeaders map[string]string
	MaxInFlight     int
}

// Base returns the middleware every route — public or authenticated —
// passes through, applied outermost-first: the in-flight semaphore rejects
// overload before any other work happens, then panic recovery wraps
// everything else, then security headers, CORS, request logging, metrics,
// the body-size limit, and finally the outer request timeout.
func Base(cfg Config, logger *logging.Logger, m *metrics.Metrics) []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{
		mux.MiddlewareFunc(InFlightLimit(cfg.MaxInFlight)),
		mux.MiddlewareFunc(Recovery(logger)),
		mux.MiddlewareFunc(SecurityHeaders(cfg.SecurityHeaders)),
		mux.MiddlewareFunc(CORS(CORSConfig{AllowedOrigins: cfg.CORSOrigins})),
		mux.MiddlewareFunc(RequestLogging(logger)),
		mux.MiddlewareFunc(Metrics(cfg.ServiceName, m)),
		mux.MiddlewareFunc(BodyLimit(cfg.MaxRequestBytes)),
		mux.MiddlewareFunc(Timeout(cfg.RequestTimeout)),
	}
}

// ApplyBase registers Base's middleware on router in the order routes
// should see them.
func ApplyBase(router *mux.Router, cfg Config, logger *logging.Logger, m *metrics.Metrics) {
	for _, mw := range Base(cfg, logger, m) {
		router.Use(mw)
	}
}
