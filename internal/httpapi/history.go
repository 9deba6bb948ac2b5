package httpapi

import (
	"net/http"
	"strconv"

	"github.com/QWED-AI/qwed-verification/internal/audit"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

const defaultHistoryLimit = 100

// handleHistory lists the authenticated tenant's own audit entries, most
// recent first. The underlying Store only supports a forward Walk, so
// filtering and the newest-first order are applied here rather than
// pushed into Store's contract.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	tc := tenantFrom(r)
	limit := parseLimitParam(r, defaultHistoryLimit)

	var matched []audit.Entry
	err := s.AuditStore.Walk(r.Context(), func(e audit.Entry) error {
		if e.TenantID == tc.Org.ID {
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.Internal("walk audit chain", err))
		return
	}

	out := make([]audit.Entry, 0, limit)
	for i := len(matched) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, matched[i])
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

func parseLimitParam(r *http.Request, defaultValue int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
