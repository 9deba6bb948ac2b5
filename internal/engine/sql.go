package engine

import (
	"context"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/engine/sqlcheck"
)

// SQLAdapter checks a query against a whitelist: SELECT-only, no stacked
// statements, no references outside the declared schema.
type SQLAdapter struct{}

// NewSQLAdapter builds a SQLAdapter.
func NewSQLAdapter() *SQLAdapter {
	return &SQLAdapter{}
}

// Verify tokenizes and checks task.Query against task.Schema.
func (s *SQLAdapter) Verify(ctx context.Context, task SQLTask) (Result, error) {
	started := time.Now()

	schema := sqlcheck.Schema{Tables: task.Schema.Tables}
	checked, err := sqlcheck.Check(task.Query, schema)
	if err != nil {
		return Result{Verdict: VerdictUnsafe, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	issues := make([]Issue, 0, len(checked.Violations))
	for _, v := range checked.Violations {
		issues = append(issues, Issue{Severity: "critical", Rule: "sql-whitelist", Message: v.Reason})
	}

	result := Result{Payload: issues, Latency: time.Since(started)}
	if checked.Allowed {
		result.Verdict = VerdictVerified
		result.Confidence = 1.0
	} else {
		result.Verdict = VerdictUnsafe
		result.Confidence = 1.0
	}
	return result, nil
}
