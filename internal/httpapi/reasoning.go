package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/engine"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

// reasoningStepBody is one step of a decomposed reasoning chain as a
// caller submits it: natural-language query or claim text, tagged with
// the engine kind that should verify it. code and sql steps carry their
// task fields directly, mirroring their own single-shot endpoints.
type reasoningStepBody struct {
	Kind     string              `json:"kind"`
	Query    string              `json:"query"`
	Claim    string              `json:"claim"`
	Context  string              `json:"context"`
	Code     string              `json:"code"`
	Language string              `json:"language"`
	SQLQuery string              `json:"sql_query"`
	Schema   map[string][]string `json:"schema"`
}

type reasoningBody struct {
	Steps    []reasoningStepBody `json:"steps"`
	Provider string              `json:"provider"`
}

// handleVerifyReasoning translates every natural-language step up front
// (the dispatcher only accepts already-typed payloads — see
// engine.Dispatcher.VerifyStep) and hands the fully-typed chain to the
// pipeline as a single "reasoning" request.
func (s *Server) handleVerifyReasoning(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body reasoningBody
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if len(body.Steps) == 0 {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("steps"))
		return
	}

	req := s.baseRequest(r, "reasoning")
	task := engine.ReasoningTask{Steps: make([]engine.ReasoningTaskStep, 0, len(body.Steps))}

	for i, step := range body.Steps {
		typed, err := s.translateStep(r.Context(), step, body.Provider, req.Tenant.Org.ID)
		if err != nil {
			httputil.WriteServiceError(w, r, qerrors.InvalidInput(fmt.Sprintf("steps[%d]", i), err.Error()))
			return
		}
		task.Steps = append(task.Steps, typed)
	}
	req.ReasoningTask = &task

	resp := s.Pipeline.Run(r.Context(), req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

// translateStep turns one submitted step into the typed payload its
// engine kind expects, running the same translators the single-shot
// endpoints use so a reasoning chain composes identically to separate
// calls.
func (s *Server) translateStep(ctx context.Context, step reasoningStepBody, preferredProvider, tenantID string) (engine.ReasoningTaskStep, error) {
	router := s.Pipeline.Router
	switch step.Kind {
	case "math":
		task, _, err := router.TranslateMath(ctx, preferredProvider, "", "local", step.Query)
		if err != nil {
			return engine.ReasoningTaskStep{}, err
		}
		return engine.ReasoningTaskStep{Kind: "math", Payload: task}, nil

	case "logic":
		task, _, err := router.TranslateLogicDSL(ctx, preferredProvider, "", "local", step.Query)
		if err != nil {
			return engine.ReasoningTaskStep{}, err
		}
		return engine.ReasoningTaskStep{Kind: "logic", Payload: task}, nil

	case "stats":
		frame, ok := frameFromContext(ctx)
		if !ok {
			return engine.ReasoningTaskStep{}, fmt.Errorf("stats steps require a prior /verify/stats frame upload")
		}
		schema := frame.schema
		task, _, err := router.GenerateStatsCode(ctx, preferredProvider, "", "local", step.Query, schema)
		if err != nil {
			return engine.ReasoningTaskStep{}, err
		}
		return engine.ReasoningTaskStep{Kind: "stats", Payload: task}, nil

	case "fact":
		verdict, _, err := router.VerifyFact(ctx, preferredProvider, "", "local", step.Claim, step.Context)
		if err != nil {
			return engine.ReasoningTaskStep{}, err
		}
		return engine.ReasoningTaskStep{Kind: "fact", Payload: verdict}, nil

	case "code":
		if step.Code == "" {
			return engine.ReasoningTaskStep{}, fmt.Errorf("code step missing code")
		}
		language := step.Language
		if language == "" {
			language = "python"
		}
		return engine.ReasoningTaskStep{Kind: "code", Payload: engine.CodeTask{Code: step.Code, Language: language}}, nil

	case "sql":
		if step.SQLQuery == "" {
			return engine.ReasoningTaskStep{}, fmt.Errorf("sql step missing sql_query")
		}
		return engine.ReasoningTaskStep{
			Kind:    "sql",
			Payload: engine.SQLTask{Query: step.SQLQuery, Schema: engine.SQLSchema{Tables: step.Schema}},
		}, nil

	default:
		return engine.ReasoningTaskStep{}, fmt.Errorf("unsupported step kind %q", step.Kind)
	}
}
