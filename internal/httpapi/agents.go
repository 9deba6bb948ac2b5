package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/QWED-AI/qwed-verification/internal/agent"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

type registerAgentBody struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type registerAgentResponse struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

// handleAgentRegister creates a tenant-scoped agent and mints its own API
// key, issued raw exactly once in the response body, never stored.
func (s *Server) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	var body registerAgentBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("name"))
		return
	}

	tc := tenantFrom(r)
	rawKey, prefix, hashed, err := tenant.GenerateKey()
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.Internal("generate agent key", err))
		return
	}

	a := agent.Agent{
		ID:          uuid.NewString(),
		TenantID:    tc.Org.ID,
		Name:        body.Name,
		Permissions: body.Permissions,
		KeyPrefix:   prefix,
		KeyHash:     hashed,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Agents.Register(r.Context(), a); err != nil {
		httputil.WriteServiceError(w, r, qerrors.DatabaseError("register agent", err))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registerAgentResponse{AgentID: a.ID, APIKey: rawKey})
}

// handleAgentVerify runs the same control-plane pipeline as the
// single-shot endpoints, under the path's agent identity, and records
// the call to that agent's own activity trail in addition to the
// tenant's audit chain the pipeline itself writes. The caller is
// authenticated the same way as every other protected route — via the
// tenant's own API key — and this handler then checks the path's agent
// belongs to that tenant, rather than resolving a second, agent-scoped
// credential.
func (s *Server) handleAgentVerify(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	tc := tenantFrom(r)
	agentID := mux.Vars(r)["id"]

	a, err := s.Agents.Get(r.Context(), tc.Org.ID, agentID)
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.NotFound("agent", agentID))
		return
	}
	if a.Revoked {
		httputil.WriteServiceError(w, r, qerrors.Forbidden("agent has been revoked"))
		return
	}

	var body verifyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}

	ctx := logging.WithAgentID(r.Context(), a.ID)
	req := s.baseRequest(r, "math")
	req.Query = body.Query
	req.PreferredProvider = body.Provider

	resp := s.Pipeline.Run(ctx, req)

	result := "ERROR"
	if resp.Result != nil {
		result = string(resp.Result.Verdict)
	} else if resp.ServiceErr != nil {
		result = string(resp.ServiceErr.Code)
	}
	_ = s.Agents.RecordActivity(ctx, agent.Activity{
		AgentID:   a.ID,
		TenantID:  tc.Org.ID,
		Action:    "verify.math",
		Result:    result,
		Timestamp: time.Now().UTC(),
	})

	s.respondPipeline(w, r, resp, started, tc.Org.ID)
}
