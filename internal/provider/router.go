package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// Config configures the Router's provider list. New does not read
// Breaker: each provider's breaker is configured by the BreakerConfig
// passed to Register.
type Config struct {
	// Order is the configured provider enumeration order "auto" walks.
	Order   []string
	Breaker BreakerConfig
}

// Router resolves a logical provider name to a concrete Translator,
// consulting a per-provider circuit breaker before dispatch and, in "auto"
// mode, advancing to the next configured provider on failure or an open
// breaker.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Translator
	breakers  map[string]*circuitBreaker
	order     []string
	logger    *logging.Logger
}

// New builds a Router with no providers registered; call Register for
// each one before routing requests.
func New(cfg Config, logger *logging.Logger) *Router {
	return &Router{
		providers: make(map[string]Translator),
		breakers:  make(map[string]*circuitBreaker),
		order:     cfg.Order,
		logger:    logger,
	}
}

// Register adds or replaces a named provider and gives it its own breaker.
func (r *Router) Register(name string, t Translator, breakerCfg BreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = t
	r.breakers[name] = newCircuitBreaker(breakerCfg)
	found := false
	for _, n := range r.order {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		r.order = append(r.order, name)
	}
}

// BreakerState reports the named provider's current circuit state.
func (r *Router) BreakerState(name string) BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cb, ok := r.breakers[name]; ok {
		return cb.State()
	}
	return StateClosed
}

// candidates resolves the provider selection order per request
// preference → tenant default → system default, falling back to the
// configured auto-enumeration order when the resolved name is empty or
// "auto".
func (r *Router) candidates(preferred, tenantDefault, systemDefault string) []string {
	name := preferred
	if name == "" {
		name = tenantDefault
	}
	if name == "" {
		name = systemDefault
	}
	if name == "" || name == "auto" {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]string, len(r.order))
		copy(out, r.order)
		return out
	}
	return []string{name}
}

// ErrNoProvidersAvailable is returned when every candidate provider's
// breaker is open or no provider satisfied the call.
var ErrNoProvidersAvailable = fmt.Errorf("no provider available: all candidates open or failed")

// call walks the candidate provider list, skipping open breakers,
// invoking op against each Translator in turn and stopping at the first
// success. It records the outcome against that provider's breaker before
// moving on.
func call[T any](ctx context.Context, r *Router, preferred, tenantDefault, systemDefault string, op func(Translator) (T, error)) (T, string, error) {
	var zero T
	names := r.candidates(preferred, tenantDefault, systemDefault)
	if len(names) == 0 {
		return zero, "", fmt.Errorf("router has no providers registered")
	}

	var lastErr error
	for _, name := range names {
		r.mu.RLock()
		translator, ok := r.providers[name]
		breaker := r.breakers[name]
		r.mu.RUnlock()
		if !ok {
			lastErr = fmt.Errorf("unknown provider %q", name)
			continue
		}
		if err := breaker.allow(); err != nil {
			lastErr = err
			if r.logger != nil {
				r.logger.Debug(ctx, "provider circuit open, skipping", map[string]interface{}{"provider": name})
			}
			continue
		}

		result, err := op(translator)
		if ctx.Err() != nil {
			breaker.recordOutcome(outcomeFailure)
			return zero, name, ctx.Err()
		}
		breaker.recordOutcome(classify(err))
		if err == nil {
			return result, name, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return zero, "", fmt.Errorf("%w: %v", ErrNoProvidersAvailable, lastErr)
	}
	return zero, "", ErrNoProvidersAvailable
}

// TranslateMath routes a math translation request through the resolved
// provider chain.
func (r *Router) TranslateMath(ctx context.Context, preferred, tenantDefault, systemDefault, query string) (MathTask, string, error) {
	return call(ctx, r, preferred, tenantDefault, systemDefault, func(t Translator) (MathTask, error) {
		return t.TranslateMath(ctx, query)
	})
}

// TranslateLogicDSL routes a logic translation request.
func (r *Router) TranslateLogicDSL(ctx context.Context, preferred, tenantDefault, systemDefault, query string) (LogicTask, string, error) {
	return call(ctx, r, preferred, tenantDefault, systemDefault, func(t Translator) (LogicTask, error) {
		return t.TranslateLogicDSL(ctx, query)
	})
}

// GenerateStatsCode routes a stats-code generation request.
func (r *Router) GenerateStatsCode(ctx context.Context, preferred, tenantDefault, systemDefault, query string, schema FrameSchema) (StatsTask, string, error) {
	return call(ctx, r, preferred, tenantDefault, systemDefault, func(t Translator) (StatsTask, error) {
		return t.GenerateStatsCode(ctx, query, schema)
	})
}

// VerifyFact routes a fact-verification translation request.
func (r *Router) VerifyFact(ctx context.Context, preferred, tenantDefault, systemDefault, claim, factCtx string) (FactVerdict, string, error) {
	return call(ctx, r, preferred, tenantDefault, systemDefault, func(t Translator) (FactVerdict, error) {
		return t.VerifyFact(ctx, claim, factCtx)
	})
}
