package dsl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleComparison(t *testing.T) {
	node, err := Parse("(AND (GT x 5) (LT x 10))")
	require.NoError(t, err)
	form, ok := node.(Form)
	require.True(t, ok)
	assert.Equal(t, "AND", form.Op)
	assert.Len(t, form.Args, 2)
}

func TestParseRejectsUnknownOperator(t *testing.T) {
	_, err := Parse("(EVAL x)")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseRejectsDottedIdentifier(t *testing.T) {
	_, err := Parse("(GT os.system 5)")
	require.Error(t, err)
}

func TestParseRejectsUnbalancedParens(t *testing.T) {
	_, err := Parse("(AND (GT x 5)")
	require.Error(t, err)
}

func TestParseIsTotalNeverPanics(t *testing.T) {
	inputs := []string{
		"", "(", ")", "(((", "\"unterminated", "(AND)", "()", "((()))",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = Parse(in)
		})
	}
}

func TestCompileRejectsMixedTyping(t *testing.T) {
	node, err := Parse("(PLUS x true)")
	require.NoError(t, err)
	_, err = Compile(node)
	require.Error(t, err)
}

func TestCompileAndSolveSAT(t *testing.T) {
	node, err := Parse("(AND (GT x 5) (LT x 10))")
	require.NoError(t, err)
	prog, err := Compile(node)
	require.NoError(t, err)
	assert.Equal(t, TypeInt, prog.VarTypes["x"])

	solver := NewReferenceSolver()
	result, err := solver.Solve(context.Background(), prog, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, VerdictSAT, result.Verdict)

	x, ok := result.Model["x"].(float64)
	require.True(t, ok)
	assert.Greater(t, x, 5.0)
	assert.Less(t, x, 10.0)
}

func TestCompileAndSolveUNSAT(t *testing.T) {
	node, err := Parse("(AND (GT x 10) (LT x 5))")
	require.NoError(t, err)
	prog, err := Compile(node)
	require.NoError(t, err)

	solver := NewReferenceSolver()
	result, err := solver.Solve(context.Background(), prog, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, VerdictUNSAT, result.Verdict)
}

func TestProgramWithMultipleAsserts(t *testing.T) {
	node, err := Parse("(PROGRAM (ASSERT (EQ x 7)) (ASSERT (GT x 0)))")
	require.NoError(t, err)
	prog, err := Compile(node)
	require.NoError(t, err)
	require.Len(t, prog.Asserts, 2)

	solver := NewReferenceSolver()
	result, err := solver.Solve(context.Background(), prog, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, VerdictSAT, result.Verdict)
	assert.Equal(t, 7.0, result.Model["x"])
}
