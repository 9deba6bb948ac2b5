package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(NewMathAdapter(), NewLogicAdapter(nil, 0), nil, NewFactAdapter(nil), NewCodeAdapter(nil), NewSQLAdapter(), nil)
}

func TestReasoningAdapterPassesAllSteps(t *testing.T) {
	d := testDispatcher()
	result, err := d.Reasoning.Verify(context.Background(), ReasoningTask{
		Steps: []ReasoningTaskStep{
			{Kind: "math", Payload: provider.MathTask{Expression: "2 + 2", Claimed: 4}},
			{Kind: "sql", Payload: SQLTask{Query: "SELECT id FROM orders", Schema: testOrdersSchema()}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
	steps, ok := result.Payload.([]ReasoningStep)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestReasoningAdapterShortCircuitsOnFailingStep(t *testing.T) {
	d := testDispatcher()
	result, err := d.Reasoning.Verify(context.Background(), ReasoningTask{
		Steps: []ReasoningTaskStep{
			{Kind: "math", Payload: provider.MathTask{Expression: "2 + 2", Claimed: 4}},
			{Kind: "sql", Payload: SQLTask{Query: "DELETE FROM orders", Schema: testOrdersSchema()}},
			{Kind: "math", Payload: provider.MathTask{Expression: "5 * 5", Claimed: 25}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsafe, result.Verdict)
	steps, ok := result.Payload.([]ReasoningStep)
	require.True(t, ok)
	assert.Len(t, steps, 2) // third step never runs
	assert.Contains(t, result.Diagnostic, "step 1")
}
