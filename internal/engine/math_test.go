package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

func TestMathAdapterVerifiesCorrectClaim(t *testing.T) {
	m := NewMathAdapter()
	result, err := m.Verify(context.Background(), provider.MathTask{Expression: "2 + 2 * 3", Claimed: 8})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
}

func TestMathAdapterCorrectsWrongClaim(t *testing.T) {
	m := NewMathAdapter()
	result, err := m.Verify(context.Background(), provider.MathTask{Expression: "10 / 2", Claimed: 3})
	require.NoError(t, err)
	assert.Equal(t, VerdictCorrected, result.Verdict)
	assert.Equal(t, 5.0, result.Correction)
}

func TestMathAdapterAcceptsWhitelistedFunctions(t *testing.T) {
	m := NewMathAdapter()
	result, err := m.Verify(context.Background(), provider.MathTask{Expression: "sqrt(16)", Claimed: 4})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
}

func TestMathAdapterRejectsUnsafeExpression(t *testing.T) {
	m := NewMathAdapter()
	_, err := m.Verify(context.Background(), provider.MathTask{Expression: "os.system('rm -rf /')", Claimed: 0})
	require.Error(t, err)
	var unsafe *ErrUnsafeMathExpression
	assert.ErrorAs(t, err, &unsafe)
}
