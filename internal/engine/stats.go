package engine

import (
	"context"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/provider"
	"github.com/QWED-AI/qwed-verification/internal/sandbox"
)

// FrameSource supplies the tabular data a stats task aggregates over. The
// control plane is responsible for loading it (from a request attachment
// or a prior cached dataset); the adapter only knows how to hand it to the
// sandbox.
type FrameSource interface {
	Load(ctx context.Context, schema provider.FrameSchema) (sandbox.Frame, error)
}

// StatsAdapter hands a validated stats-DSL program and its backing frame to
// the sandbox runner.
type StatsAdapter struct {
	runner *sandbox.Runner
	frames FrameSource
}

// NewStatsAdapter builds a StatsAdapter.
func NewStatsAdapter(runner *sandbox.Runner, frames FrameSource) *StatsAdapter {
	return &StatsAdapter{runner: runner, frames: frames}
}

// Verify loads the frame referenced by task.Schema and executes task.Code
// against it inside the sandbox.
func (s *StatsAdapter) Verify(ctx context.Context, task provider.StatsTask) (Result, error) {
	started := time.Now()

	frame, err := s.frames.Load(ctx, task.Schema)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	run, err := s.runner.Run(ctx, task.Code, task.Schema, frame)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	return Result{
		Verdict:    VerdictVerified,
		Confidence: 1.0,
		Payload:    run.Value,
		Latency:    time.Since(started),
	}, nil
}
