package engine

import (
	"context"
	"fmt"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// Dispatcher routes a verification task to the adapter responsible for its
// kind. Every field is independently optional; a nil adapter surfaces as
// an ERROR result rather than a panic when its kind is requested.
type Dispatcher struct {
	Math      *MathAdapter
	Logic     *LogicAdapter
	Stats     *StatsAdapter
	Fact      *FactAdapter
	Code      *CodeAdapter
	SQL       *SQLAdapter
	Image     *ImageAdapter
	Reasoning *ReasoningAdapter
}

// NewDispatcher wires the given adapters together. The Reasoning adapter
// is constructed automatically, referencing this Dispatcher, so steps of
// any kind can be verified recursively.
func NewDispatcher(math *MathAdapter, logic *LogicAdapter, stats *StatsAdapter, fact *FactAdapter, code *CodeAdapter, sql *SQLAdapter, image *ImageAdapter) *Dispatcher {
	d := &Dispatcher{Math: math, Logic: logic, Stats: stats, Fact: fact, Code: code, SQL: sql, Image: image}
	d.Reasoning = NewReasoningAdapter(d)
	return d
}

// VerifyStep verifies one reasoning step by dispatching on its Kind and
// type-asserting its Payload into the shape that kind's adapter expects.
func (d *Dispatcher) VerifyStep(ctx context.Context, step ReasoningTaskStep) (Result, error) {
	switch step.Kind {
	case "math":
		if d.Math == nil {
			return errResult("reasoning: no math adapter configured")
		}
		task, ok := step.Payload.(provider.MathTask)
		if !ok {
			return errResult("reasoning: step payload is not a MathTask")
		}
		return d.Math.Verify(ctx, task)
	case "logic":
		if d.Logic == nil {
			return errResult("reasoning: no logic adapter configured")
		}
		task, ok := step.Payload.(provider.LogicTask)
		if !ok {
			return errResult("reasoning: step payload is not a LogicTask")
		}
		return d.Logic.Verify(ctx, task)
	case "stats":
		if d.Stats == nil {
			return errResult("reasoning: no stats adapter configured")
		}
		task, ok := step.Payload.(provider.StatsTask)
		if !ok {
			return errResult("reasoning: step payload is not a StatsTask")
		}
		return d.Stats.Verify(ctx, task)
	case "fact":
		if d.Fact == nil {
			return errResult("reasoning: no fact adapter configured")
		}
		task, ok := step.Payload.(provider.FactVerdict)
		if !ok {
			return errResult("reasoning: step payload is not a FactVerdict")
		}
		return d.Fact.Verify(ctx, task)
	case "code":
		if d.Code == nil {
			return errResult("reasoning: no code adapter configured")
		}
		task, ok := step.Payload.(CodeTask)
		if !ok {
			return errResult("reasoning: step payload is not a CodeTask")
		}
		return d.Code.Verify(ctx, task)
	case "sql":
		if d.SQL == nil {
			return errResult("reasoning: no sql adapter configured")
		}
		task, ok := step.Payload.(SQLTask)
		if !ok {
			return errResult("reasoning: step payload is not a SQLTask")
		}
		return d.SQL.Verify(ctx, task)
	default:
		return errResult(fmt.Sprintf("reasoning: unknown step kind %q", step.Kind))
	}
}

func errResult(msg string) (Result, error) {
	return Result{Verdict: VerdictError, Diagnostic: msg}, fmt.Errorf("%s", msg)
}
