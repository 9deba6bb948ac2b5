package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTranslatorMath(t *testing.T) {
	lt := NewLocalTranslator()
	task, err := lt.TranslateMath(context.Background(), "what is 2 + 2? I think it equals 5")
	require.NoError(t, err)
	assert.Equal(t, "2 + 2", task.Expression)
	assert.Equal(t, 5.0, task.Claimed)
}

func TestLocalTranslatorMathNoExpression(t *testing.T) {
	lt := NewLocalTranslator()
	_, err := lt.TranslateMath(context.Background(), "hello there")
	assert.Error(t, err)
}

func TestLocalTranslatorLogic(t *testing.T) {
	lt := NewLocalTranslator()
	task, err := lt.TranslateLogicDSL(context.Background(), "is x > 5")
	require.NoError(t, err)
	assert.Equal(t, "(GT x 5)", task.Expression)
}

func TestLocalTranslatorStats(t *testing.T) {
	lt := NewLocalTranslator()
	schema := FrameSchema{Columns: map[string]string{"amount": "real"}}
	task, err := lt.GenerateStatsCode(context.Background(), "average amount", schema)
	require.NoError(t, err)
	assert.Equal(t, "mean(frame.amount)", task.Code)
}

func TestLocalTranslatorFact(t *testing.T) {
	lt := NewLocalTranslator()
	v, err := lt.VerifyFact(context.Background(), "the sky is blue", "atmospheric scattering")
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue", v.Claim)
}

type failingTranslator struct{ err error }

func (f failingTranslator) TranslateMath(context.Context, string) (MathTask, error) {
	return MathTask{}, f.err
}
func (f failingTranslator) TranslateLogicDSL(context.Context, string) (LogicTask, error) {
	return LogicTask{}, f.err
}
func (f failingTranslator) GenerateStatsCode(context.Context, string, FrameSchema) (StatsTask, error) {
	return StatsTask{}, f.err
}
func (f failingTranslator) VerifyFact(context.Context, string, string) (FactVerdict, error) {
	return FactVerdict{}, f.err
}

func TestRouterFailsOverInAutoMode(t *testing.T) {
	r := New(Config{Order: []string{"primary", "secondary"}, Breaker: BreakerConfig{MaxFailures: 1, CoolDown: time.Minute}}, nil)
	r.Register("primary", failingTranslator{err: errors.New("boom")}, BreakerConfig{MaxFailures: 1, CoolDown: time.Minute})
	r.Register("secondary", NewLocalTranslator(), BreakerConfig{MaxFailures: 1, CoolDown: time.Minute})

	task, used, err := r.TranslateMath(context.Background(), "auto", "", "", "what is 3 + 4?")
	require.NoError(t, err)
	assert.Equal(t, "secondary", used)
	assert.Equal(t, "3 + 4", task.Expression)
}

func TestRouterTripsBreakerAfterMaxFailures(t *testing.T) {
	r := New(Config{Order: []string{"flaky"}}, nil)
	r.Register("flaky", failingTranslator{err: errors.New("down")}, BreakerConfig{MaxFailures: 2, CoolDown: time.Minute})

	_, _, err := r.TranslateMath(context.Background(), "flaky", "", "", "2+2")
	assert.Error(t, err)
	_, _, err = r.TranslateMath(context.Background(), "flaky", "", "", "2+2")
	assert.Error(t, err)
	assert.Equal(t, StateOpen, r.BreakerState("flaky"))

	_, _, err = r.TranslateMath(context.Background(), "flaky", "", "", "2+2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestRouterSelectionPreferenceOrder(t *testing.T) {
	r := New(Config{}, nil)
	r.Register("explicit", NewLocalTranslator(), DefaultBreakerConfig())
	r.Register("tenant-default", NewLocalTranslator(), DefaultBreakerConfig())

	names := r.candidates("explicit", "tenant-default", "system-default")
	require.Equal(t, []string{"explicit"}, names)

	names = r.candidates("", "tenant-default", "system-default")
	require.Equal(t, []string{"tenant-default"}, names)

	names = r.candidates("", "", "system-default")
	require.Equal(t, []string{"system-default"}, names)
}

func TestCircuitBreakerRecoversAfterCoolDown(t *testing.T) {
	cb := newCircuitBreaker(BreakerConfig{MaxFailures: 1, CoolDown: 10 * time.Millisecond, HalfOpenMax: 1})
	cb.recordOutcome(outcomeFailure)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.recordOutcome(outcomeSuccess)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	cb := newCircuitBreaker(BreakerConfig{MaxFailures: 1, CoolDown: time.Minute})
	for i := 0; i < 10; i++ {
		cb.recordOutcome(classify(MarkClientError(errors.New("bad query"))))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerClientErrorReturnsHalfOpenProbeSlot(t *testing.T) {
	cb := newCircuitBreaker(BreakerConfig{MaxFailures: 1, CoolDown: 10 * time.Millisecond, HalfOpenMax: 1})
	cb.recordOutcome(outcomeFailure)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.recordOutcome(classify(MarkClientError(errors.New("bad query"))))
	// The wasted probe slot is returned, so the breaker still allows a
	// real health-check probe instead of treating itself as exhausted.
	require.NoError(t, cb.allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestRouterDoesNotTripBreakerOnClientErrors(t *testing.T) {
	r := New(Config{Order: []string{"picky"}}, nil)
	r.Register("picky", NewLocalTranslator(), BreakerConfig{MaxFailures: 1, CoolDown: time.Minute})

	for i := 0; i < 5; i++ {
		_, _, err := r.TranslateMath(context.Background(), "picky", "", "", "hello there, no numbers here")
		assert.Error(t, err)
	}
	assert.Equal(t, StateClosed, r.BreakerState("picky"))
}
