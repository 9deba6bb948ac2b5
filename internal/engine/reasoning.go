package engine

import (
	"context"
	"fmt"
	"time"
)

// ReasoningAdapter decomposes a chain of steps and verifies each with the
// engine its kind names, stopping at the first step that doesn't resolve
// to a passing verdict.
type ReasoningAdapter struct {
	dispatcher *Dispatcher
}

// NewReasoningAdapter builds a ReasoningAdapter bound to dispatcher, which
// it uses to route each step.
func NewReasoningAdapter(dispatcher *Dispatcher) *ReasoningAdapter {
	return &ReasoningAdapter{dispatcher: dispatcher}
}

// stepPassed reports whether verdict counts as the step having held up —
// CORRECTED still means the claim was checked and a value produced, so it
// counts as passed; anything else means the chain stops here.
func stepPassed(v Verdict) bool {
	switch v {
	case VerdictVerified, VerdictCorrected, VerdictSupported:
		return true
	default:
		return false
	}
}

// Verify runs task's steps in order, short-circuiting at the first
// failing step with its index and diagnostic.
func (r *ReasoningAdapter) Verify(ctx context.Context, task ReasoningTask) (Result, error) {
	started := time.Now()

	steps := make([]ReasoningStep, 0, len(task.Steps))
	for i, step := range task.Steps {
		result, err := r.dispatcher.VerifyStep(ctx, step)
		steps = append(steps, ReasoningStep{Index: i, Kind: step.Kind, Result: result})

		if err != nil || !stepPassed(result.Verdict) {
			diagnostic := result.Diagnostic
			if diagnostic == "" && err != nil {
				diagnostic = err.Error()
			}
			return Result{
				Verdict:    result.Verdict,
				Confidence: result.Confidence,
				Payload:    steps,
				Diagnostic: fmt.Sprintf("step %d (%s) failed: %s", i, step.Kind, diagnostic),
				Latency:    time.Since(started),
			}, nil
		}
	}

	return Result{
		Verdict:    VerdictVerified,
		Confidence: 1.0,
		Payload:    steps,
		Latency:    time.Since(started),
	}, nil
}
