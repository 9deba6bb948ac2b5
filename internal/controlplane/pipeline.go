package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/audit"
	"github.com/QWED-AI/qwed-verification/internal/cache"
	"github.com/QWED-AI/qwed-verification/internal/consensus"
	"github.com/QWED-AI/qwed-verification/internal/engine"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/metrics"
	"github.com/QWED-AI/qwed-verification/internal/policy"
	"github.com/QWED-AI/qwed-verification/internal/provider"
	"github.com/QWED-AI/qwed-verification/internal/ratelimit"
	"github.com/QWED-AI/qwed-verification/internal/reflection"
	"github.com/QWED-AI/qwed-verification/internal/security"
)

// defaultDeadline bounds a single request's entire walk through the
// pipeline, from admission through the final engine call.
const defaultDeadline = 30 * time.Second

// Pipeline wires every gateway subsystem into the single ordered sequence
// a verification request moves through. Every dependency but Gate,
// Limiter, Router, and Dispatcher is optional: a nil Cache skips
// memoization, a nil Audit skips logging, a nil Metrics skips
// instrumentation.
type Pipeline struct {
	Gate       *policy.Gate
	Limiter    *ratelimit.Limiter
	Router     *provider.Router
	Dispatcher *engine.Dispatcher
	Reflection *reflection.Loop
	Cache      cache.Cache
	Audit      *audit.Writer
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Deadline   time.Duration

	sequence int64
}

// New builds a Pipeline from its required collaborators. Optional
// collaborators (cache, audit, metrics) are set directly on the returned
// value by the caller.
func New(gate *policy.Gate, limiter *ratelimit.Limiter, router *provider.Router, dispatcher *engine.Dispatcher, reflectionLoop *reflection.Loop, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		Gate:       gate,
		Limiter:    limiter,
		Router:     router,
		Dispatcher: dispatcher,
		Reflection: reflectionLoop,
		Logger:     logger,
		Deadline:   defaultDeadline,
	}
}

// Run carries req through Ingress, Authenticated, Admitted, Translated,
// Verified (by way of Cached/Reflected when applicable), Sanitized,
// Logged, and finally Respond. RateLimited, Blocked, and Failed are the
// early- and late-exit branches; every exit, including deadline expiry,
// still reaches Logged before Respond.
func (p *Pipeline) Run(ctx context.Context, req Request) Response {
	start := time.Now()
	state := StateIngress

	traceID := logging.GetTraceID(ctx)
	if traceID == "" {
		traceID = logging.NewTraceID()
		ctx = logging.WithTraceID(ctx, traceID)
	}

	deadline := p.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tenantID := req.Tenant.Org.ID
	ctx = logging.WithOrgID(ctx, tenantID)

	// Authenticated: the caller already resolved req.Tenant before
	// invoking Run; this checkpoint exists so the audit trail records
	// that every logged request passed through it.
	state = StateAuthenticated

	if p.Limiter != nil {
		if decision := p.Limiter.Allow(tenantID); !decision.Allowed {
			state = StateRateLimited
			if p.Metrics != nil {
				p.Metrics.RecordRateLimited(decision.Scope)
			}
			svcErr := qerrors.RateLimited(decision.RetryAfterSeconds)
			return p.finish(ctx, req, state, start, traceID, nil, svcErr, "", 0, false, false)
		}
	}

	var cleaned string
	if p.Gate != nil {
		decision := p.Gate.Admit(ctx, tenantID, admissionText(req))
		if !decision.Allowed {
			state = StateBlocked
			if p.Metrics != nil {
				p.Metrics.RecordAdmissionBlocked(decision.Reason.Name)
			}
			svcErr := qerrors.AdmissionBlocked(decision.Reason.Name, decision.Reason.Detail)
			return p.finish(ctx, req, state, start, traceID, nil, svcErr, "", 0, false, false)
		}
		cleaned = decision.Cleaned
	} else {
		cleaned = req.Query
	}
	state = StateAdmitted
	req.Query = cleaned

	result, providerUsed, attempts, cacheHit, disputed, err := p.verify(ctx, req)
	if err != nil {
		state = StateFailed
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			svcErr := qerrors.DeadlineExceeded(time.Since(start).Milliseconds())
			return p.finish(ctx, req, state, start, traceID, nil, svcErr, providerUsed, attempts, cacheHit, disputed)
		case errors.Is(err, consensus.ErrAllEnginesFailed):
			// Every consulted engine errored; this is the consensus
			// analogue of reflection exhausting its retries, so it
			// surfaces the same way: a FAILED verdict, not a gateway
			// error.
			failed := engine.Result{Verdict: engine.VerdictFailed, Diagnostic: security.SanitizeString(err.Error())}
			return p.finish(ctx, req, state, start, traceID, &failed, nil, providerUsed, attempts, cacheHit, disputed)
		default:
			svcErr := qerrors.Internal("verification pipeline error", err)
			return p.finish(ctx, req, state, start, traceID, nil, svcErr, providerUsed, attempts, cacheHit, disputed)
		}
	}

	switch {
	case cacheHit:
		state = StateCached
	case attempts > 1:
		state = StateReflected
	case result.Verdict == engine.VerdictFailed:
		state = StateFailed
	default:
		state = StateVerified
	}

	result.Diagnostic = security.SanitizeString(result.Diagnostic)
	return p.finish(ctx, req, state, start, traceID, &result, nil, providerUsed, attempts, cacheHit, disputed)
}

// verify runs the translate-dispatch step either once under the
// reflection loop (single-engine mode) or N times in parallel under
// consensus reconciliation (high/maximum mode).
func (p *Pipeline) verify(ctx context.Context, req Request) (result engine.Result, providerUsed string, attempts int, cacheHit bool, disputed bool, err error) {
	if req.Mode == "" || req.Mode == consensus.ModeSingle {
		attempts = 0
		var lastProvider string
		var lastHit bool
		loop := p.Reflection
		if loop == nil {
			loop = reflection.New(p.Logger)
		}
		result, err = loop.Run(ctx, func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error) {
			attempts = attemptNumber
			r, pv, hit, runErr := p.runOnce(ctx, req)
			lastProvider = pv
			lastHit = hit
			if runErr != nil {
				return engine.Result{}, runErr
			}
			if r.Verdict == engine.VerdictError {
				return r, fmt.Errorf("%s", r.Diagnostic)
			}
			return r, nil
		})
		return result, lastProvider, attempts, lastHit, false, err
	}

	runners := make([]consensus.EngineRunner, consensusEngineCount(req.Mode, len(req.ConsensusProviders)))
	for i := range runners {
		idx := i
		runners[i] = func(ctx context.Context) (engine.Result, error) {
			perEngine := req
			if idx < len(req.ConsensusProviders) {
				perEngine.PreferredProvider = req.ConsensusProviders[idx]
			}
			r, _, _, runErr := p.runOnce(ctx, perEngine)
			return r, runErr
		}
	}
	outcome, aggErr := consensus.Aggregate(ctx, req.Mode, p.Deadline, runners)
	if aggErr != nil {
		return engine.Result{}, "", 1, false, false, aggErr
	}
	return outcome.Result, outcome.Result.Provider, 1, false, outcome.Disputed, nil
}

func consensusEngineCount(mode consensus.Mode, requested int) int {
	minimum := 2
	if mode == consensus.ModeMaximum {
		minimum = 3
	}
	if requested > minimum {
		return requested
	}
	return minimum
}

// finish logs the audit entry for every exit path and builds the HTTP
// status the caller returns. Audit logging never changes the response:
// a store failure is logged loudly but does not turn a completed
// verification into a 500.
func (p *Pipeline) finish(ctx context.Context, req Request, state State, start time.Time, traceID string, result *engine.Result, svcErr *qerrors.ServiceError, providerUsed string, attempts int, cacheHit, disputed bool) Response {
	resp := Response{
		State:    StateRespond,
		Provider: providerUsed,
		Attempts: attempts,
		CacheHit: cacheHit,
		Disputed: disputed,
		TraceID:  traceID,
	}

	if svcErr != nil {
		resp.ServiceErr = svcErr
		resp.StatusCode = svcErr.HTTPStatus
	} else {
		resp.Result = result
		resp.StatusCode = http.StatusOK
	}

	p.recordMetrics(req, state, result, svcErr, start)
	p.writeAudit(ctx, req, state, result, svcErr, attempts, cacheHit, disputed)

	return resp
}

func (p *Pipeline) recordMetrics(req Request, state State, result *engine.Result, svcErr *qerrors.ServiceError, start time.Time) {
	if p.Metrics == nil {
		return
	}
	duration := time.Since(start)
	status := "200"
	if svcErr != nil {
		status = fmt.Sprintf("%d", svcErr.HTTPStatus)
	}
	p.Metrics.RecordHTTPRequest("qwed-gateway", "POST", "/v1/verify/"+req.Kind, status, duration)
	if result != nil {
		p.Metrics.RecordEngineCall(req.Kind, string(result.Verdict), duration)
	}
	if req.Mode != "" && req.Mode != consensus.ModeSingle && result != nil {
		p.Metrics.RecordConsensusVerdict(string(req.Mode), string(result.Verdict))
	}
}

func (p *Pipeline) writeAudit(ctx context.Context, req Request, state State, result *engine.Result, svcErr *qerrors.ServiceError, attempts int, cacheHit, disputed bool) {
	if p.Audit == nil {
		return
	}

	outcome := string(state)
	var confidence float64
	if result != nil {
		outcome = string(result.Verdict)
		confidence = result.Confidence
	}
	if svcErr != nil {
		outcome = string(svcErr.Code)
	}

	entry := audit.Entry{
		Sequence:  atomic.AddInt64(&p.sequence, 1),
		Timestamp: time.Now().UTC(),
		TenantID:  req.Tenant.Org.ID,
		Actor:     req.Tenant.KeyID,
		Action:    "verify." + req.Kind,
		Resource:  "verification_request",
		Result:    outcome,
		Details: map[string]interface{}{
			"state":      string(state),
			"query":      truncate(req.Query, 500),
			"attempts":   attempts,
			"cache_hit":  cacheHit,
			"disputed":   disputed,
			"confidence": confidence,
			"mode":       string(req.Mode),
		},
	}

	if _, err := p.Audit.Append(ctx, entry); err != nil && p.Logger != nil {
		p.Logger.Error(ctx, "audit append failed", err, map[string]interface{}{
			"tenant_id": req.Tenant.Org.ID,
			"action":    entry.Action,
		})
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
