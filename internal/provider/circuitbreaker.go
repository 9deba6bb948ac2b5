package provider

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is one of closed, open, half-open.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a request is rejected because the
// provider's breaker is open.
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

// BreakerConfig tunes a single provider's circuit breaker.
type BreakerConfig struct {
	MaxFailures   int
	CoolDown      time.Duration
	HalfOpenMax   int
	OnStateChange func(from, to BreakerState)
}

// DefaultBreakerConfig matches the documented 30s cool-down default.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, CoolDown: 30 * time.Second, HalfOpenMax: 3}
}

// outcome classifies what a completed Translator call tells a provider's
// breaker about that provider's health. Router is a fan-out over several
// Translators serving arbitrary tenant input, not a single wrapped
// operation, so a caller's malformed query is a routine event, not a
// provider failure — it must never count against the breaker that decides
// whether the rest of the tenant population can still reach that provider.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeClientError
)

// clientError marks a Translator error as caused by the caller's input
// rather than the provider itself (malformed query, unsupported operator,
// empty claim). classify uses this to keep such errors out of the
// breaker's failure count.
type clientError struct{ err error }

// MarkClientError wraps err so Router's breaker accounting does not treat
// it as evidence the provider is unhealthy. Translator implementations
// call this for input-validation failures they can detect without ever
// reaching an upstream dependency.
func MarkClientError(err error) error {
	if err == nil {
		return nil
	}
	return &clientError{err: err}
}

func (e *clientError) Error() string { return e.err.Error() }
func (e *clientError) Unwrap() error { return e.err }

func classify(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	var ce *clientError
	if errors.As(err, &ce) {
		return outcomeClientError
	}
	return outcomeFailure
}

// circuitBreaker wraps a single provider's health state: consecutive
// failures trip it open for CoolDown, after which a bounded number of
// half-open probes decide whether it recloses.
type circuitBreaker struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	state        BreakerState
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

func newCircuitBreaker(cfg BreakerConfig) *circuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &circuitBreaker{cfg: cfg, state: StateClosed}
}

func (cb *circuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a request may proceed, transitioning an open
// breaker to half-open once the cool-down has elapsed.
func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cfg.CoolDown {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.cfg.HalfOpenMax {
			return ErrCircuitOpen
		}
		cb.halfOpenReqs++
	}
	return nil
}

// recordOutcome updates the breaker from a completed call's classified
// outcome. outcomeClientError is deliberately invisible to the failure and
// success counters: the provider answered, so it says nothing about the
// provider's health. When that call consumed a half-open probe slot, the
// slot is handed back rather than spent on a request that could never have
// told the breaker whether the provider has recovered.
func (cb *circuitBreaker) recordOutcome(o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if o == outcomeClientError {
		if cb.state == StateHalfOpen && cb.halfOpenReqs > 0 {
			cb.halfOpenReqs--
		}
		return
	}

	if o == outcomeSuccess {
		switch cb.state {
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.cfg.HalfOpenMax {
				cb.setState(StateClosed)
			}
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailure = time.Now()
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.cfg.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *circuitBreaker) setState(newState BreakerState) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0
	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(old, newState)
	}
}
