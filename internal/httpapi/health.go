package httpapi

import (
	"net/http"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

var startedAt = time.Now()

// handleHealth is the public liveness probe: no tenant resolution, no
// dependency checks, just confirmation the process is serving requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(startedAt).Seconds()),
	})
}
