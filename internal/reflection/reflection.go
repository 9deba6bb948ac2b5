// Package reflection bounds how many times a failed translation/verification
// round is retried with the failure fed back into the next prompt, before
// the caller gives up and reports a definitive failure.
package reflection

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/QWED-AI/qwed-verification/internal/engine"
	"github.com/QWED-AI/qwed-verification/internal/logging"
)

const (
	defaultMaxRetries  = 3
	defaultInitialWait = 500 * time.Millisecond
	defaultMultiplier  = 2.0
)

// Attempt runs one translate-then-verify round. priorErr is nil on the
// first call and holds the previous round's failure on every retry, so
// the implementation can fold it back into the next translation prompt.
// attemptNumber is 1-based and counts the initial call as attempt 1.
type Attempt func(ctx context.Context, priorErr error, attemptNumber int) (engine.Result, error)

// Loop retries a failing Attempt with exponential backoff, capped at a
// fixed number of retries beyond the initial call.
type Loop struct {
	logger      *logging.Logger
	maxRetries  int
	initialWait time.Duration
	multiplier  float64
}

// New builds a Loop with the reference schedule: up to 3 retries beyond
// the initial attempt, waiting 500ms then 1s then 2s between them.
func New(logger *logging.Logger) *Loop {
	return &Loop{
		logger:      logger,
		maxRetries:  defaultMaxRetries,
		initialWait: defaultInitialWait,
		multiplier:  defaultMultiplier,
	}
}

// Run executes attempt, retrying on error up to l.maxRetries additional
// times. It never returns a Go error itself for an exhausted retry budget:
// once every attempt has failed, it returns a synthetic FAILED result
// carrying the last failure as its diagnostic, so callers always get a
// well-formed engine.Result to continue the pipeline with.
func (l *Loop) Run(ctx context.Context, attempt Attempt) (engine.Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.initialWait
	bo.Multiplier = l.multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var priorErr error
	totalAttempts := l.maxRetries + 1
	for attemptNumber := 1; attemptNumber <= totalAttempts; attemptNumber++ {
		started := time.Now()
		result, err := attempt(ctx, priorErr, attemptNumber)
		duration := time.Since(started)

		if l.logger != nil {
			verdict := string(result.Verdict)
			l.logger.LogEngineCall(ctx, "reflection", duration, verdict, err)
		}

		if err == nil {
			return result, nil
		}

		priorErr = err
		if attemptNumber == totalAttempts {
			break
		}

		wait := bo.NextBackOff()
		if l.logger != nil {
			l.logger.Warn(ctx, "reflection attempt failed, retrying", map[string]interface{}{
				"attempt":    attemptNumber,
				"next_wait":  wait.String(),
				"last_error": err.Error(),
			})
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return failedResult(ctx.Err(), attemptNumber), ctx.Err()
		}
	}

	return failedResult(priorErr, totalAttempts), nil
}

func failedResult(lastErr error, attempts int) engine.Result {
	return engine.Result{
		Verdict:    engine.VerdictFailed,
		Diagnostic: fmt.Sprintf("reflection exhausted after %d attempts: %v", attempts, lastErr),
	}
}
