package httpapi

import (
	"time"

	"github.com/QWED-AI/qwed-verification/internal/controlplane"
	"github.com/QWED-AI/qwed-verification/internal/engine"
)

// Envelope is the response body every verification endpoint returns on
// success: the verdict, the engine-specific answer, and the bookkeeping a
// caller needs to audit or replay the call.
type Envelope struct {
	Status        string      `json:"status"`
	FinalAnswer   interface{} `json:"final_answer,omitempty"`
	Verification  interface{} `json:"verification,omitempty"`
	Translation   interface{} `json:"translation,omitempty"`
	ProviderUsed  string      `json:"provider_used,omitempty"`
	LatencyMS     int64       `json:"latency_ms"`
	Attestation   string      `json:"attestation,omitempty"`
	CacheHit      bool        `json:"cache_hit,omitempty"`
	Disputed      bool        `json:"disputed,omitempty"`
	Attempts      int         `json:"attempts,omitempty"`
	TraceID       string      `json:"trace_id,omitempty"`
}

// buildEnvelope renders a pipeline Response that reached a verdict (the
// caller has already checked resp.ServiceErr is nil) into the wire
// envelope. attestation is the signed token string, or empty when the
// caller's plan or the verdict itself doesn't qualify for one.
func buildEnvelope(resp controlplane.Response, started time.Time, attestation string) Envelope {
	env := Envelope{
		ProviderUsed: resp.Provider,
		LatencyMS:    time.Since(started).Milliseconds(),
		CacheHit:     resp.CacheHit,
		Disputed:     resp.Disputed,
		Attempts:     resp.Attempts,
		TraceID:      resp.TraceID,
		Attestation:  attestation,
	}
	if resp.Result != nil {
		env.Status = string(resp.Result.Verdict)
		env.FinalAnswer = finalAnswer(resp.Result)
		env.Verification = verificationDetail(resp.Result)
	}
	return env
}

// finalAnswer picks the engine-specific value a caller actually wants out
// of a Result: the corrected value when the engine proposed one, else
// whatever payload the adapter produced.
func finalAnswer(result *engine.Result) interface{} {
	if result.Correction != nil {
		return result.Correction
	}
	return result.Payload
}

// verificationDetail surfaces the confidence and diagnostic alongside the
// raw payload, so a caller doesn't have to reach into final_answer to
// learn why a verdict landed where it did.
func verificationDetail(result *engine.Result) map[string]interface{} {
	detail := map[string]interface{}{
		"confidence": result.Confidence,
	}
	if result.Diagnostic != "" {
		detail["diagnostic"] = result.Diagnostic
	}
	return detail
}
