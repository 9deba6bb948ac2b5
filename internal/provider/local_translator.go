package provider

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LocalTranslator is a deterministic, pattern-based Translator with no
// upstream model call. It exists as a safety-net default and as the
// collaborator the gateway's own tests exercise, not as a substitute for a
// real provider adapter (out of scope here; see Translator).
type LocalTranslator struct{}

// NewLocalTranslator constructs the reference translator.
func NewLocalTranslator() *LocalTranslator {
	return &LocalTranslator{}
}

var mathExprPattern = regexp.MustCompile(`[-+]?[0-9.]+(?:\s*[-+*/^]\s*[-+]?[0-9.]+)+`)
var claimedResultPattern = regexp.MustCompile(`(?:=|equals|is)\s*([-+]?[0-9]*\.?[0-9]+)\s*\??$`)

// TranslateMath extracts the first arithmetic expression and any trailing
// claimed result from a natural-language query, e.g. "what is 2 + 2? I
// think it equals 5".
func (t *LocalTranslator) TranslateMath(_ context.Context, query string) (MathTask, error) {
	expr := mathExprPattern.FindString(query)
	if expr == "" {
		return MathTask{}, MarkClientError(fmt.Errorf("no arithmetic expression found in query"))
	}
	expr = strings.ReplaceAll(expr, "^", "**")

	task := MathTask{Expression: strings.TrimSpace(expr)}
	if m := claimedResultPattern.FindStringSubmatch(query); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			task.Claimed = v
		}
	}
	return task, nil
}

// comparisonOps maps the symbolic operators comparisonPattern recognizes
// ("X > Y", "X != Y", ...) to their QWED-DSL form; worded comparisons such
// as "X is greater than Y" are not recognized.
var comparisonOps = map[string]string{
	">":  "GT",
	"<":  "LT",
	">=": "GE",
	"<=": "LE",
	"==": "EQ",
	"=":  "EQ",
	"!=": "NEQ",
}

var comparisonPattern = regexp.MustCompile(`(\w+)\s*(>=|<=|==|!=|>|<|=)\s*(\w+)`)

// TranslateLogicDSL extracts a simple comparison from the query and emits
// it as a whitelisted QWED-DSL S-expression.
func (t *LocalTranslator) TranslateLogicDSL(_ context.Context, query string) (LogicTask, error) {
	m := comparisonPattern.FindStringSubmatch(query)
	if m == nil {
		return LogicTask{}, MarkClientError(fmt.Errorf("no comparison found in query"))
	}
	op, ok := comparisonOps[m[2]]
	if !ok {
		return LogicTask{}, MarkClientError(fmt.Errorf("unsupported comparison operator %q", m[2]))
	}
	return LogicTask{Expression: fmt.Sprintf("(%s %s %s)", op, m[1], m[3])}, nil
}

// GenerateStatsCode emits a single-expression stats DSL program that
// references the frame schema's alphabetically first column, sufficient for the
// gateway's own sandbox round-trip tests.
func (t *LocalTranslator) GenerateStatsCode(_ context.Context, query string, schema FrameSchema) (StatsTask, error) {
	if len(schema.Columns) == 0 {
		return StatsTask{}, MarkClientError(fmt.Errorf("frame schema has no columns to reference"))
	}
	var first string
	for name := range schema.Columns {
		if first == "" || name < first {
			first = name
		}
	}
	return StatsTask{Code: fmt.Sprintf("mean(frame.%s)", first), Schema: schema}, nil
}

// VerifyFact passes the claim and its supporting context through with
// surrounding whitespace trimmed; an empty claim is rejected as a client
// error.
func (t *LocalTranslator) VerifyFact(_ context.Context, claim, context string) (FactVerdict, error) {
	if claim == "" {
		return FactVerdict{}, MarkClientError(fmt.Errorf("empty claim"))
	}
	return FactVerdict{Claim: strings.TrimSpace(claim), Context: strings.TrimSpace(context)}, nil
}
