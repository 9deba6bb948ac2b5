package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
	"github.com/QWED-AI/qwed-verification/internal/sandbox"
)

type staticFrameSource struct {
	frame sandbox.Frame
}

func (s staticFrameSource) Load(ctx context.Context, schema provider.FrameSchema) (sandbox.Frame, error) {
	return s.frame, nil
}

func TestStatsAdapterRunsAggregate(t *testing.T) {
	frames := staticFrameSource{frame: sandbox.Frame{"amount": {1, 2, 3, 4}}}
	a := NewStatsAdapter(sandbox.New(sandbox.DefaultConfig(), nil), frames)

	schema := provider.FrameSchema{Columns: map[string]string{"amount": "real"}}
	result, err := a.Verify(context.Background(), provider.StatsTask{Code: "mean(frame.amount)", Schema: schema})
	require.NoError(t, err)
	assert.Equal(t, VerdictVerified, result.Verdict)
	assert.Equal(t, 2.5, result.Payload)
}
