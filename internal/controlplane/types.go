// Package controlplane sequences one verification request through
// admission, translation, engine dispatch, consensus, reflection,
// caching, and audit logging, and produces the single outcome the HTTP
// layer renders back to the caller.
package controlplane

import (
	"github.com/QWED-AI/qwed-verification/internal/consensus"
	"github.com/QWED-AI/qwed-verification/internal/engine"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/provider"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

// State names the pipeline's current stage for logging and metrics. It is
// not a type any caller branches on; Response already carries the
// information a caller needs.
type State string

const (
	StateIngress       State = "INGRESS"
	StateAuthenticated State = "AUTHENTICATED"
	StateAdmitted      State = "ADMITTED"
	StateTranslated    State = "TRANSLATED"
	StateVerified      State = "VERIFIED"
	StateSanitized     State = "SANITIZED"
	StateLogged        State = "LOGGED"
	StateRespond       State = "RESPOND"

	StateRateLimited State = "RATE_LIMITED"
	StateBlocked     State = "BLOCKED"
	StateCached      State = "CACHED"
	StateReflected   State = "REFLECTED"
	StateFailed      State = "FAILED"
)

// Request is one verification call, already authenticated: the caller
// (the HTTP layer's auth middleware) has resolved the API key to a
// tenant.Context before a Request ever reaches the pipeline.
type Request struct {
	Tenant tenant.Context

	// Kind selects which engine answers the request: "math", "logic",
	// "stats", "fact", "code", "sql", "image", or "reasoning".
	Kind string

	// Query is the natural-language input translated for math, logic,
	// stats, and fact kinds. FactContext supplies fact's supporting
	// context text, kept separate from Query because VerifyFact takes
	// claim and context as distinct parameters.
	Query       string
	FactContext string
	Schema      provider.FrameSchema

	// CodeTask, SQLTask, and ImageTask are supplied directly by the
	// caller rather than translated: the engine, not a translator, is
	// the authority over these payloads (see engine.CodeTask).
	CodeTask      *engine.CodeTask
	SQLTask       *engine.SQLTask
	ImageTask     *engine.ImageTask
	ReasoningTask *engine.ReasoningTask

	PreferredProvider     string
	TenantDefaultProvider string
	SystemDefaultProvider string

	// Mode selects single-engine or multi-engine consensus verification.
	// ConsensusProviders names the provider to prefer for each parallel
	// engine slot; its length should match the mode's required engine
	// count. A shorter or empty slice lets the router's own fallback
	// order choose a provider for the missing slots.
	Mode               consensus.Mode
	ConsensusProviders []string
}

// Response is the pipeline's terminal outcome. Exactly one of Result or
// ServiceErr is set: Result for anything that reached a verdict (even
// FAILED, UNSAFE, or a disputed consensus), ServiceErr for a request the
// gateway itself refused or failed to process (unauthenticated,
// rate-limited, blocked at admission, timed out, or an internal error).
type Response struct {
	State      State
	StatusCode int
	Result     *engine.Result
	ServiceErr *qerrors.ServiceError

	Provider string
	Attempts int
	CacheHit bool
	Disputed bool
	TraceID  string
}
