package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// Recovery catches a panic anywhere downstream, logs it with a stack trace,
// and turns it into a 500 response instead of taking down the server.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					stack := debug.Stack()
					if logger != nil {
						logger.Error(r.Context(), "panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
							"stack":       string(stack),
							"path":        r.URL.Path,
							"method":      r.Method,
							"remote_addr": r.RemoteAddr,
						})
					}
					httputil.WriteServiceError(w, r, qerrors.Internal("internal server error", fmt.Errorf("%v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
