package reflection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

func fastLoop() *Loop {
	l := New(nil)
	l.initialWait = time.Millisecond
	return l
}

func TestLoopSucceedsOnFirstAttempt(t *testing.T) {
	l := fastLoop()
	calls := 0
	result, err := l.Run(context.Background(), func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error) {
		calls++
		assert.Nil(t, priorErr)
		assert.Equal(t, 1, attemptNumber)
		return engine.Result{Verdict: engine.VerdictVerified}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, result.Verdict)
	assert.Equal(t, 1, calls)
}

func TestLoopRetriesAndRecovers(t *testing.T) {
	l := fastLoop()
	calls := 0
	result, err := l.Run(context.Background(), func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error) {
		calls++
		if attemptNumber < 3 {
			return engine.Result{}, errors.New("translator produced an invalid expression")
		}
		assert.NotNil(t, priorErr)
		return engine.Result{Verdict: engine.VerdictVerified}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, result.Verdict)
	assert.Equal(t, 3, calls)
}

func TestLoopFailsAfterExhaustingRetries(t *testing.T) {
	l := fastLoop()
	calls := 0
	result, err := l.Run(context.Background(), func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error) {
		calls++
		return engine.Result{}, errors.New("solver timed out")
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictFailed, result.Verdict)
	assert.Contains(t, result.Diagnostic, "4 attempts")
	assert.Equal(t, 4, calls) // 1 initial + 3 retries
}

func TestLoopAbortsOnContextCancellation(t *testing.T) {
	l := fastLoop()
	l.initialWait = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := l.Run(ctx, func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error) {
		calls++
		return engine.Result{}, errors.New("still broken")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
