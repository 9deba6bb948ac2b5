package sandbox

import (
	"fmt"
	"regexp"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// statsExprPattern is the entire narrow statistics DSL this sandbox ever
// executes: one whitelisted aggregate function applied to one column of
// the single named frame variable. Code is always validated against this
// grammar before it ever reaches the runtime — the sandbox never
// evaluates an arbitrary translator string.
var statsExprPattern = regexp.MustCompile(`^\s*(mean|sum|count|min|max|std)\(frame\.([a-zA-Z_][a-zA-Z0-9_]*)\)\s*$`)

// ErrInvalidStatsExpression is returned when code does not match the
// whitelisted stats DSL grammar.
type ErrInvalidStatsExpression struct {
	Code   string
	Reason string
}

func (e *ErrInvalidStatsExpression) Error() string {
	return fmt.Sprintf("invalid stats expression %q: %s", e.Code, e.Reason)
}

// statsExpr is a validated statistics-DSL program: an aggregate function
// applied to one column.
type statsExpr struct {
	Func   string
	Column string
}

// validateStatsExpression parses code against the whitelisted grammar and
// checks the referenced column exists in schema. It never executes code.
func validateStatsExpression(code string, schema provider.FrameSchema) (statsExpr, error) {
	m := statsExprPattern.FindStringSubmatch(code)
	if m == nil {
		return statsExpr{}, &ErrInvalidStatsExpression{Code: code, Reason: "does not match whitelisted aggregate(frame.column) grammar"}
	}
	fn, col := m[1], m[2]
	if _, ok := schema.Columns[col]; !ok {
		return statsExpr{}, &ErrInvalidStatsExpression{Code: code, Reason: fmt.Sprintf("column %q not present in frame schema", col)}
	}
	return statsExpr{Func: fn, Column: col}, nil
}
