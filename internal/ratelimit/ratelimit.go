// Package ratelimit implements the gateway's dual token-bucket admission
// layer: one bucket per API key and one shared bucket across the whole
// gateway process.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// Config configures both buckets. PerKeyLimit/PerKeyWindow bound an
// individual tenant's API key; GlobalLimit/GlobalWindow bound the gateway
// as a whole, protecting shared downstream capacity (providers, sandbox).
// Each bucket's burst capacity is its own limit: a key or the gateway as a
// whole may legitimately take its entire window's allowance in one burst,
// and only the request past that allowance is blocked.
type Config struct {
	PerKeyLimit  int
	PerKeyWindow time.Duration
	GlobalLimit  int
	GlobalWindow time.Duration
}

// DefaultConfig returns the gateway's documented defaults: 100 requests per
// minute per key, 1000 requests per minute across all tenants.
func DefaultConfig() Config {
	return Config{
		PerKeyLimit:  100,
		PerKeyWindow: time.Minute,
		GlobalLimit:  1000,
		GlobalWindow: time.Minute,
	}
}

// Decision reports the outcome of a rate-limit check.
type Decision struct {
	Allowed           bool
	Scope             string // "key" or "global", set when Allowed is false
	RetryAfterSeconds int
}

// Limiter is the dual bucket rate limiter: a per-key bucket created lazily
// per tenant API key, and one fixed global bucket shared by every tenant.
type Limiter struct {
	mu          sync.RWMutex
	keyLimiters map[string]*rate.Limiter
	global      *rate.Limiter
	cfg         Config
	logger      *logging.Logger
}

// New constructs a Limiter from cfg.
func New(cfg Config, logger *logging.Logger) *Limiter {
	if cfg.PerKeyWindow <= 0 {
		cfg.PerKeyWindow = time.Minute
	}
	if cfg.GlobalWindow <= 0 {
		cfg.GlobalWindow = time.Minute
	}

	globalRate := rate.Limit(float64(cfg.GlobalLimit) / cfg.GlobalWindow.Seconds())

	return &Limiter{
		keyLimiters: make(map[string]*rate.Limiter),
		global:      rate.NewLimiter(globalRate, cfg.GlobalLimit),
		cfg:         cfg,
		logger:      logger,
	}
}

// perKeyLimiter returns (creating if necessary) the bucket for key.
func (l *Limiter) perKeyLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.keyLimiters[key]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok = l.keyLimiters[key]; ok {
		return limiter
	}
	perSecond := rate.Limit(float64(l.cfg.PerKeyLimit) / l.cfg.PerKeyWindow.Seconds())
	limiter = rate.NewLimiter(perSecond, l.cfg.PerKeyLimit)
	l.keyLimiters[key] = limiter
	return limiter
}

// Allow checks both buckets for key. The global bucket is checked first,
// so a gateway-wide overload never charges a tenant's own quota; a
// request that the per-key bucket then refuses has still spent its
// global token.
func (l *Limiter) Allow(key string) Decision {
	if !l.global.Allow() {
		if l.logger != nil {
			l.logger.Warn(context.Background(), "global rate limit exceeded", map[string]interface{}{"key": key})
		}
		return Decision{
			Allowed:           false,
			Scope:             "global",
			RetryAfterSeconds: retryAfterSeconds(l.cfg.GlobalWindow),
		}
	}

	if !l.perKeyLimiter(key).Allow() {
		return Decision{
			Allowed:           false,
			Scope:             "key",
			RetryAfterSeconds: retryAfterSeconds(l.cfg.PerKeyWindow),
		}
	}

	return Decision{Allowed: true}
}

func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		window = time.Second
	}
	return int(math.Ceil(window.Seconds()))
}

// Cleanup drops all per-key buckets once the tracked key count grows large,
// bounding memory under a very wide tenant population.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.keyLimiters) > 10000 {
		l.keyLimiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on a ticker until the returned func is called.
func (l *Limiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// KeyCount reports how many per-key buckets are currently tracked.
func (l *Limiter) KeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyLimiters)
}
