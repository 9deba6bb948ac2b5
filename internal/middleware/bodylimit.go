package middleware

import (
	"net/http"

	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

const defaultMaxRequestBodyBytes int64 = 1 << 20 // 1MiB; verification payloads are small structured JSON.

// BodyLimit caps request bodies via http.MaxBytesReader so a decoder can
// never be forced to buffer an unbounded body. maxBytes <= 0 applies the
// default.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, "", "request body too large", map[string]any{
					"limit_bytes": maxBytes,
				})
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
