// Package cron runs the gateway's periodic background sweeps: the audit
// chain integrity check and rate-limiter bucket cleanup, both of which
// need to run on a schedule independent of request traffic.
package cron

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/QWED-AI/qwed-verification/internal/audit"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/ratelimit"
)

// Scheduler wraps robfig/cron/v3 with the gateway's fixed set of sweeps.
type Scheduler struct {
	c      *cron.Cron
	logger *logging.Logger
}

// New builds a Scheduler; call Start to begin running jobs.
func New(logger *logging.Logger) *Scheduler {
	return &Scheduler{c: cron.New(), logger: logger}
}

// RegisterAuditIntegritySweep walks the full audit chain on the given
// schedule and logs the first broken link it finds, if any. It runs
// unattended, so a tampered or corrupted chain is caught between
// requests; no HTTP endpoint runs this check.
func (s *Scheduler) RegisterAuditIntegritySweep(spec string, verifier *audit.Verifier) error {
	_, err := s.c.AddFunc(spec, func() {
		brk, err := verifier.Walk(context.Background())
		if err != nil {
			s.logger.Error(context.Background(), "audit integrity sweep failed", err, nil)
			return
		}
		if brk != nil {
			s.logger.Error(context.Background(), "audit chain integrity broken", nil, map[string]interface{}{
				"sequence": brk.Sequence,
				"kind":     string(brk.Kind),
			})
		}
	})
	return err
}

// RegisterRateLimiterCleanup prunes idle per-key limiter buckets on the
// given schedule, bounding Limiter's memory to active keys rather than
// every key ever seen.
func (s *Scheduler) RegisterRateLimiterCleanup(spec string, limiter *ratelimit.Limiter) error {
	_, err := s.c.AddFunc(spec, limiter.Cleanup)
	return err
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}
