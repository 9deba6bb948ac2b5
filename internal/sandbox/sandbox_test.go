package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

func testSchema() provider.FrameSchema {
	return provider.FrameSchema{Columns: map[string]string{"amount": "real"}}
}

func TestRunMean(t *testing.T) {
	r := New(DefaultConfig(), nil)
	frame := Frame{"amount": {1, 2, 3, 4, 5}}
	result, err := r.Run(context.Background(), "mean(frame.amount)", testSchema(), frame)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Value)
	assert.True(t, result.Fallback)
}

func TestRunSumAndCount(t *testing.T) {
	r := New(DefaultConfig(), nil)
	frame := Frame{"amount": {10, 20, 30}}

	sumResult, err := r.Run(context.Background(), "sum(frame.amount)", testSchema(), frame)
	require.NoError(t, err)
	assert.Equal(t, 60.0, sumResult.Value)

	countResult, err := r.Run(context.Background(), "count(frame.amount)", testSchema(), frame)
	require.NoError(t, err)
	assert.Equal(t, 3.0, countResult.Value)
}

func TestRunRejectsUnwhitelistedExpression(t *testing.T) {
	r := New(DefaultConfig(), nil)
	_, err := r.Run(context.Background(), "eval('1+1')", testSchema(), Frame{"amount": {1}})
	require.Error(t, err)
	var invalid *ErrInvalidStatsExpression
	assert.ErrorAs(t, err, &invalid)
}

func TestRunRejectsUnknownColumn(t *testing.T) {
	r := New(DefaultConfig(), nil)
	_, err := r.Run(context.Background(), "mean(frame.unknown)", testSchema(), Frame{"amount": {1}})
	require.Error(t, err)
}

func TestRunRespectsTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Millisecond
	r := New(cfg, nil)
	// std on a three-value column still completes well within 5ms in practice;
	// this test only asserts the timeout plumbing doesn't panic or hang,
	// not that it necessarily trips for so cheap a computation.
	frame := Frame{"amount": {1, 2, 3}}
	_, err := r.Run(context.Background(), "std(frame.amount)", testSchema(), frame)
	_ = err
}

func TestRunOnEmptyColumnReturnsError(t *testing.T) {
	r := New(DefaultConfig(), nil)
	_, err := r.Run(context.Background(), "mean(frame.amount)", testSchema(), Frame{"amount": {}})
	require.Error(t, err)
}
