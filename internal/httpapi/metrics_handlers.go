package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/QWED-AI/qwed-verification/internal/audit"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

// tenantCounters is the JSON shape both the global and per-tenant
// counter endpoints return: aggregated directly from the audit chain
// rather than the Prometheus registry backing GET /metrics, since the
// per-verdict, per-tenant breakdown these two endpoints document isn't
// something a scrape-oriented counter set exposes per request.
type tenantCounters struct {
	TenantID      string         `json:"tenant_id,omitempty"`
	TotalRequests int            `json:"total_requests"`
	ByVerdict     map[string]int `json:"by_verdict"`
	ByAction      map[string]int `json:"by_action"`
}

func (s *Server) aggregateCounters(r *http.Request, tenantFilter string) (tenantCounters, error) {
	counters := tenantCounters{
		TenantID:  tenantFilter,
		ByVerdict: make(map[string]int),
		ByAction:  make(map[string]int),
	}
	err := s.AuditStore.Walk(r.Context(), func(e audit.Entry) error {
		if tenantFilter != "" && e.TenantID != tenantFilter {
			return nil
		}
		counters.TotalRequests++
		counters.ByVerdict[e.Result]++
		counters.ByAction[e.Action]++
		return nil
	})
	return counters, err
}

// handleGlobalMetrics serves the gateway-wide JSON counters; restricted
// to keys carrying the admin role, distinct from the unauthenticated
// Prometheus scrape endpoint mounted at GET /metrics on the router root.
func (s *Server) handleGlobalMetrics(w http.ResponseWriter, r *http.Request) {
	tc := tenantFrom(r)
	if !tc.IsAdmin() {
		httputil.WriteServiceError(w, r, qerrors.Forbidden("admin role required"))
		return
	}

	counters, err := s.aggregateCounters(r, "")
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.Internal("aggregate metrics", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counters)
}

// handleTenantMetrics serves per-tenant JSON counters; any authenticated
// caller may read their own organization's counters, and an admin key may
// read any organization's.
func (s *Server) handleTenantMetrics(w http.ResponseWriter, r *http.Request) {
	tc := tenantFrom(r)
	orgID := mux.Vars(r)["org_id"]
	if orgID != tc.Org.ID && !tc.IsAdmin() {
		httputil.WriteServiceError(w, r, qerrors.Forbidden("cannot read another tenant's metrics"))
		return
	}

	counters, err := s.aggregateCounters(r, orgID)
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.Internal("aggregate metrics", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counters)
}
