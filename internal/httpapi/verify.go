package httpapi

import (
	"net/http"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/consensus"
	"github.com/QWED-AI/qwed-verification/internal/controlplane"
	"github.com/QWED-AI/qwed-verification/internal/engine"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

// respondPipeline renders a pipeline Response as either the success
// envelope or the standard error body, signing an attestation token for
// every verdict that reached a definite, verified outcome.
func (s *Server) respondPipeline(w http.ResponseWriter, r *http.Request, resp controlplane.Response, started time.Time, tenantID string) {
	if resp.ServiceErr != nil {
		httputil.WriteServiceError(w, r, resp.ServiceErr)
		return
	}

	var token string
	if resp.Result != nil && attestable(resp.Result.Verdict) {
		if signed, err := s.signAttestation(tenantID, resp); err == nil {
			token = signed
		}
	}

	httputil.WriteJSON(w, resp.StatusCode, buildEnvelope(resp, started, token))
}

// attestable reports whether a verdict is worth a signed token: a
// definite outcome a third party might want to check later, not a
// gateway-side failure or a deliberately withheld answer.
func attestable(v engine.Verdict) bool {
	switch v {
	case engine.VerdictVerified, engine.VerdictCorrected, engine.VerdictRefuted, engine.VerdictSupported:
		return true
	default:
		return false
	}
}

// verifyBody is the JSON body shared by the single-shot text endpoints
// (natural_language, logic, fact). Provider is optional and, when set,
// takes precedence over the tenant's and the system's default provider.
type verifyBody struct {
	Query    string `json:"query"`
	Claim    string `json:"claim"`
	Context  string `json:"context"`
	Provider string `json:"provider"`
}

func tenantFrom(r *http.Request) tenant.Context {
	tc, _ := tenant.FromContext(r.Context())
	return tc
}

func (s *Server) baseRequest(r *http.Request, kind string) controlplane.Request {
	return controlplane.Request{
		Tenant:                tenantFrom(r),
		Kind:                  kind,
		Mode:                  consensus.ModeSingle,
		SystemDefaultProvider: "local",
	}
}

func (s *Server) handleVerifyMath(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body verifyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}

	req := s.baseRequest(r, "math")
	req.Query = body.Query
	req.PreferredProvider = body.Provider

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

func (s *Server) handleVerifyLogic(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body verifyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}

	req := s.baseRequest(r, "logic")
	req.Query = body.Query
	req.PreferredProvider = body.Provider

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

func (s *Server) handleVerifyFact(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body verifyBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Claim == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("claim"))
		return
	}

	req := s.baseRequest(r, "fact")
	req.Query = body.Claim
	req.FactContext = body.Context
	req.PreferredProvider = body.Provider

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

type codeBody struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body codeBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("code"))
		return
	}
	if body.Language == "" {
		body.Language = "python"
	}

	req := s.baseRequest(r, "code")
	req.CodeTask = &engine.CodeTask{Code: body.Code, Language: body.Language}

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

type sqlBody struct {
	Query   string              `json:"query"`
	Schema  map[string][]string `json:"schema"`
	Dialect string              `json:"dialect"`
}

func (s *Server) handleVerifySQL(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body sqlBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}

	req := s.baseRequest(r, "sql")
	req.SQLTask = &engine.SQLTask{
		Query:  body.Query,
		Schema: engine.SQLSchema{Tables: body.Schema},
	}

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

type imageBody struct {
	ImageBase64 string `json:"image_base64"`
	Claim       string `json:"claim"`
}

func (s *Server) handleVerifyImage(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body imageBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Claim == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("claim"))
		return
	}
	imageBytes, err := decodeBase64Image(body.ImageBase64)
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.InvalidInput("image_base64", err.Error()))
		return
	}

	req := s.baseRequest(r, "image")
	req.ImageTask = &engine.ImageTask{ImageBytes: imageBytes, Claim: body.Claim}

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

// consensusBody extends the documented {query, mode, min_confidence} body
// with an optional kind, since consensus fans out across N providers of
// one kind, not across different kinds; kind defaults to "math" when
// omitted.
type consensusBody struct {
	Query         string   `json:"query"`
	Kind          string   `json:"kind"`
	Mode          string   `json:"mode"`
	MinConfidence float64  `json:"min_confidence"`
	Providers     []string `json:"providers"`
}

func (s *Server) handleVerifyConsensus(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body consensusBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}
	kind := body.Kind
	if kind == "" {
		kind = "math"
	}
	mode := consensus.Mode(body.Mode)
	switch mode {
	case consensus.ModeHigh, consensus.ModeMaximum:
	default:
		httputil.WriteServiceError(w, r, qerrors.InvalidInput("mode", "must be HIGH or MAXIMUM"))
		return
	}

	req := s.baseRequest(r, kind)
	req.Query = body.Query
	req.Mode = mode
	req.ConsensusProviders = body.Providers

	resp := s.Pipeline.Run(r.Context(), req)

	// min_confidence is not a consensus.Aggregate concept; apply it here
	// as a presentation-layer threshold on the verdict that came back.
	if resp.ServiceErr == nil && resp.Result != nil && body.MinConfidence > 0 && resp.Result.Confidence < body.MinConfidence {
		resp.ServiceErr = qerrors.ConsensusDisputed(resp.Result.Confidence)
		resp.StatusCode = resp.ServiceErr.HTTPStatus
	}

	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}
