package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/PaesslerAG/gval"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// mathTolerance is the maximum absolute difference between the computed
// and claimed value still counted as VERIFIED.
const mathTolerance = 1e-9

// mathFunctionNames are the only identifiers a math expression may call.
var mathFunctionNames = regexp.MustCompile(`\b(sqrt|sin|cos|log|exp|abs|floor|ceil)\b`)

// mathSafeChars matches an expression with every whitelisted function name
// already stripped: only numerals, arithmetic operators, parens, commas,
// and whitespace should remain.
var mathSafeChars = regexp.MustCompile(`^[0-9+\-*/%().,\s]*$`)

// mathLanguage is a gval dialect exposing arithmetic plus the fixed
// whitelist of unary math functions. No variables, no object access, no
// ternary, no string or date operators — those belong to gval.Full, which
// this adapter never uses.
var mathLanguage = gval.NewLanguage(
	gval.Arithmetic(),
	gval.Function("sqrt", math.Sqrt),
	gval.Function("sin", math.Sin),
	gval.Function("cos", math.Cos),
	gval.Function("log", math.Log),
	gval.Function("exp", math.Exp),
	gval.Function("abs", math.Abs),
	gval.Function("floor", math.Floor),
	gval.Function("ceil", math.Ceil),
)

// ErrUnsafeMathExpression is returned when an expression reaches the
// adapter containing anything outside the whitelisted grammar.
type ErrUnsafeMathExpression struct {
	Expression string
}

func (e *ErrUnsafeMathExpression) Error() string {
	return fmt.Sprintf("unsafe math expression: %q", e.Expression)
}

func validateMathExpression(expr string) error {
	stripped := mathFunctionNames.ReplaceAllString(expr, "")
	if !mathSafeChars.MatchString(stripped) {
		return &ErrUnsafeMathExpression{Expression: expr}
	}
	return nil
}

// MathAdapter deterministically evaluates a safe-subset arithmetic
// expression and compares it against the claimed result.
type MathAdapter struct{}

// NewMathAdapter constructs a MathAdapter.
func NewMathAdapter() *MathAdapter {
	return &MathAdapter{}
}

// Verify evaluates task.Expression and reports whether it matches
// task.Claimed within mathTolerance.
func (m *MathAdapter) Verify(ctx context.Context, task provider.MathTask) (Result, error) {
	started := time.Now()

	if err := validateMathExpression(task.Expression); err != nil {
		return Result{Verdict: VerdictUnsafe, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	value, err := mathLanguage.Evaluate(task.Expression, nil)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, fmt.Errorf("math: evaluate %q: %w", task.Expression, err)
	}

	computed, ok := toFloat(value)
	if !ok {
		err := fmt.Errorf("math: expression %q did not evaluate to a number (got %T)", task.Expression, value)
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	result := Result{
		Confidence: 1.0,
		Payload:    computed,
		Latency:    time.Since(started),
	}
	if math.Abs(computed-task.Claimed) <= mathTolerance {
		result.Verdict = VerdictVerified
	} else {
		result.Verdict = VerdictCorrected
		result.Correction = computed
	}
	return result, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
