package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

func verifiedRunner(confidence float64) EngineRunner {
	return func(ctx context.Context) (engine.Result, error) {
		return engine.Result{Verdict: engine.VerdictVerified, Confidence: confidence}, nil
	}
}

func refutedRunner() EngineRunner {
	return func(ctx context.Context) (engine.Result, error) {
		return engine.Result{Verdict: engine.VerdictRefuted, Confidence: 1.0}, nil
	}
}

func erroringRunner(err error) EngineRunner {
	return func(ctx context.Context) (engine.Result, error) {
		return engine.Result{}, err
	}
}

func TestAggregateSinglePassesThrough(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeSingle, time.Second, []EngineRunner{verifiedRunner(1.0)})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, out.Verdict)
	assert.False(t, out.Disputed)
}

func TestAggregateSingleRejectsWrongCount(t *testing.T) {
	_, err := Aggregate(context.Background(), ModeSingle, time.Second, []EngineRunner{verifiedRunner(1.0), verifiedRunner(1.0)})
	assert.ErrorIs(t, err, ErrModeEngineCount)
}

func TestAggregateHighAgreementBoostsConfidence(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeHigh, time.Second, []EngineRunner{verifiedRunner(1.0), verifiedRunner(1.0)})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, out.Verdict)
	assert.Equal(t, 0.95, out.Confidence)
	assert.False(t, out.Disputed)
}

func TestAggregateHighDisagreementIsDisputed(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeHigh, time.Second, []EngineRunner{verifiedRunner(1.0), refutedRunner()})
	require.NoError(t, err)
	assert.True(t, out.Disputed)
	assert.Equal(t, 0.55, out.Confidence)
}

func TestAggregateHighDropsErroredEngineFromVote(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeHigh, time.Second, []EngineRunner{
		verifiedRunner(1.0),
		erroringRunner(errors.New("provider unavailable")),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, out.Verdict)
	assert.False(t, out.Disputed)
	assert.Len(t, out.EngineErrors, 2)
	assert.Nil(t, out.EngineErrors[0])
	assert.Error(t, out.EngineErrors[1])
}

func TestAggregateHighAllEnginesFailed(t *testing.T) {
	_, err := Aggregate(context.Background(), ModeHigh, time.Second, []EngineRunner{
		erroringRunner(errors.New("a")),
		erroringRunner(errors.New("b")),
	})
	assert.ErrorIs(t, err, ErrAllEnginesFailed)
}

func TestAggregateMaximumStrictMajority(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeMaximum, time.Second, []EngineRunner{
		verifiedRunner(1.0), verifiedRunner(1.0), refutedRunner(),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VerdictVerified, out.Verdict)
	assert.Equal(t, 0.90, out.Confidence)
	assert.False(t, out.Disputed)
}

func TestAggregateMaximumNoMajorityIsDisputedAtPluralityShare(t *testing.T) {
	out, err := Aggregate(context.Background(), ModeMaximum, time.Second, []EngineRunner{
		refutedRunner(), refutedRunner(), verifiedRunner(1.0), verifiedRunner(1.0),
	})
	require.NoError(t, err)
	assert.True(t, out.Disputed)
	assert.Equal(t, engine.VerdictRefuted, out.Verdict)
	assert.InDelta(t, 2.0/4.0, out.Confidence, 1e-9)
}

func TestAggregateMaximumRejectsTooFewEngines(t *testing.T) {
	_, err := Aggregate(context.Background(), ModeMaximum, time.Second, []EngineRunner{verifiedRunner(1.0), verifiedRunner(1.0)})
	assert.ErrorIs(t, err, ErrModeEngineCount)
}

func TestAggregateHonorsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := func(ctx context.Context) (engine.Result, error) {
		<-ctx.Done()
		return engine.Result{}, ctx.Err()
	}
	_, err := Aggregate(ctx, ModeSingle, time.Second, []EngineRunner{blocked})
	assert.Error(t, err)
}
