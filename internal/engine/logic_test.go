package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

func TestLogicAdapterReturnsSAT(t *testing.T) {
	l := NewLogicAdapter(nil, 0)
	result, err := l.Verify(context.Background(), provider.LogicTask{Expression: "(PROGRAM (ASSERT (GT x 3)))"})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
}

func TestLogicAdapterReturnsUNSAT(t *testing.T) {
	l := NewLogicAdapter(nil, 0)
	result, err := l.Verify(context.Background(), provider.LogicTask{Expression: "(PROGRAM (ASSERT (AND (GT x 3) (LT x 3))))"})
	require.NoError(t, err)
	assert.Equal(t, VerdictRefuted, result.Verdict)
}

func TestLogicAdapterRejectsUnsafeDSL(t *testing.T) {
	l := NewLogicAdapter(nil, 0)
	_, err := l.Verify(context.Background(), provider.LogicTask{Expression: "(SYSTEM 'rm -rf /')"})
	require.Error(t, err)
}
