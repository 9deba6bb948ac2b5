// Package httpapi mounts the gateway's REST surface: per-kind
// verification endpoints, agent lifecycle, tenant history, attestation
// keys, and the admin/tenant JSON metrics views, on top of the
// middleware chain and the control-plane pipeline that answers every
// request.
package httpapi

import (
	"crypto/ed25519"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/QWED-AI/qwed-verification/internal/agent"
	"github.com/QWED-AI/qwed-verification/internal/audit"
	"github.com/QWED-AI/qwed-verification/internal/controlplane"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/metrics"
	"github.com/QWED-AI/qwed-verification/internal/middleware"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

func promHandler() http.Handler {
	return promhttp.Handler()
}

// Server holds every dependency the HTTP layer needs beyond the
// control-plane pipeline itself: tenant resolution, the audit trail
// (read for /history and the JSON metrics endpoints), the agent
// registry, and the attestation signing key.
type Server struct {
	Pipeline   *controlplane.Pipeline
	Resolver   tenant.Resolver
	AuditStore audit.Store
	Agents     agent.Store
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	SigningKey ed25519.PrivateKey
}

// Config is the transport-level configuration NewRouter needs in
// addition to a Server; it is passed straight through to
// middleware.ApplyBase.
type Config = middleware.Config

// NewRouter builds the full gorilla/mux router: the base middleware
// chain on every route, the public subrouter (health, attestation keys),
// and the authenticated subrouter (everything requiring a resolved
// tenant.Context) with its own Auth middleware layered on top of Base.
func (s *Server) NewRouter(cfg Config) *mux.Router {
	router := mux.NewRouter()
	middleware.ApplyBase(router, cfg, s.Logger, s.Metrics)

	router.Handle("/metrics", promHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()

	public := api.PathPrefix("").Subrouter()
	public.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	public.HandleFunc("/attestation/keys", s.handleAttestationKeys).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(s.Resolver))

	protected.HandleFunc("/verify/natural_language", s.handleVerifyMath).Methods(http.MethodPost)
	protected.HandleFunc("/verify/logic", s.handleVerifyLogic).Methods(http.MethodPost)
	protected.HandleFunc("/verify/stats", s.handleVerifyStats).Methods(http.MethodPost)
	protected.HandleFunc("/verify/fact", s.handleVerifyFact).Methods(http.MethodPost)
	protected.HandleFunc("/verify/code", s.handleVerifyCode).Methods(http.MethodPost)
	protected.HandleFunc("/verify/sql", s.handleVerifySQL).Methods(http.MethodPost)
	protected.HandleFunc("/verify/image", s.handleVerifyImage).Methods(http.MethodPost)
	protected.HandleFunc("/verify/reasoning", s.handleVerifyReasoning).Methods(http.MethodPost)
	protected.HandleFunc("/verify/consensus", s.handleVerifyConsensus).Methods(http.MethodPost)

	protected.HandleFunc("/agents/register", s.handleAgentRegister).Methods(http.MethodPost)
	protected.HandleFunc("/agents/{id}/verify", s.handleAgentVerify).Methods(http.MethodPost)

	protected.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	protected.HandleFunc("/metrics", s.handleGlobalMetrics).Methods(http.MethodGet)
	protected.HandleFunc("/metrics/{org_id}", s.handleTenantMetrics).Methods(http.MethodGet)

	return router
}
