package middleware

import (
	"net/http"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

// InFlightLimit bounds the number of requests the gateway processes
// concurrently with a buffered semaphore; once max are in flight, the
// next request is rejected immediately with 503 rather than queued, so a
// traffic spike degrades as fast, explicit failures instead of growing
// unbounded latency. max <= 0 disables the limit.
func InFlightLimit(max int) func(http.Handler) http.Handler {
	if max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	slots := make(chan struct{}, max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
				next.ServeHTTP(w, r)
			default:
				httputil.WriteServiceError(w, r, qerrors.Unavailable("gateway at max in-flight capacity").WithDetails("max_in_flight", max))
			}
		})
	}
}
