package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

func TestFactAdapterSupportsMatchingClaim(t *testing.T) {
	a := NewFactAdapter(nil)
	result, err := a.Verify(context.Background(), provider.FactVerdict{
		Claim:   "the company reported record revenue in 2025",
		Context: "In its annual filing the company reported record revenue in 2025, driven by strong demand.",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictSupported, result.Verdict)
}

func TestFactAdapterRefutesNegatedClaim(t *testing.T) {
	a := NewFactAdapter(nil)
	result, err := a.Verify(context.Background(), provider.FactVerdict{
		Claim:   "the company reported record revenue in 2025",
		Context: "The company did not report record revenue in 2025; results were flat.",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictRefuted, result.Verdict)
}

func TestFactAdapterNotEnoughInfoWhenUnrelated(t *testing.T) {
	a := NewFactAdapter(nil)
	result, err := a.Verify(context.Background(), provider.FactVerdict{
		Claim:   "the moon landing happened in 1969",
		Context: "The local bakery introduced a new sourdough recipe this spring.",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictNotEnoughInfo, result.Verdict)
}

func TestFactAdapterRejectsEmptyClaim(t *testing.T) {
	a := NewFactAdapter(nil)
	_, err := a.Verify(context.Background(), provider.FactVerdict{Claim: "  ", Context: "anything"})
	require.Error(t, err)
}
