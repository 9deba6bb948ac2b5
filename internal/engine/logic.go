package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/dsl"
	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// defaultSolverTimeout bounds a single solve call when the caller doesn't
// override it.
const defaultSolverTimeout = 5 * time.Second

// LogicAdapter parses a QWED-DSL S-expression, compiles it to a solver
// program, and runs it against a Solver — by default the bundled
// ReferenceSolver.
type LogicAdapter struct {
	solver  dsl.Solver
	timeout time.Duration
}

// NewLogicAdapter builds a LogicAdapter. A nil solver uses
// dsl.NewReferenceSolver(); timeout <= 0 uses defaultSolverTimeout.
func NewLogicAdapter(solver dsl.Solver, timeout time.Duration) *LogicAdapter {
	if solver == nil {
		solver = dsl.NewReferenceSolver()
	}
	if timeout <= 0 {
		timeout = defaultSolverTimeout
	}
	return &LogicAdapter{solver: solver, timeout: timeout}
}

// Verify parses, compiles, and solves task.Expression.
func (l *LogicAdapter) Verify(ctx context.Context, task provider.LogicTask) (Result, error) {
	started := time.Now()

	ast, err := dsl.Parse(task.Expression)
	if err != nil {
		return Result{Verdict: VerdictUnsafe, Latency: time.Since(started), Diagnostic: err.Error()}, fmt.Errorf("logic: UNSAFE_DSL: %w", err)
	}

	prog, err := dsl.Compile(ast)
	if err != nil {
		return Result{Verdict: VerdictUnsafe, Latency: time.Since(started), Diagnostic: err.Error()}, fmt.Errorf("logic: UNSAFE_DSL: %w", err)
	}

	solved, err := l.solver.Solve(ctx, prog, l.timeout)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, fmt.Errorf("logic: solve: %w", err)
	}

	result := Result{Latency: time.Since(started), Payload: solved.Model}
	switch solved.Verdict {
	case dsl.VerdictSAT:
		result.Verdict = VerdictVerified
		result.Confidence = 1.0
	case dsl.VerdictUNSAT:
		result.Verdict = VerdictRefuted
		result.Confidence = 1.0
	default:
		result.Verdict = VerdictUnknown
		result.Confidence = 0
		result.Diagnostic = "solver timed out before deciding satisfiability"
	}
	return result, nil
}
