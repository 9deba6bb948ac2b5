// Package consensus runs a verification task against several engine
// adapters in parallel and reconciles their verdicts into one outcome.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

// Mode selects how many engines must be consulted and how their votes
// are reconciled.
type Mode string

const (
	// ModeSingle runs exactly one engine and passes its result through.
	ModeSingle Mode = "SINGLE"
	// ModeHigh runs exactly two engines and requires agreement for a
	// high-confidence verdict.
	ModeHigh Mode = "HIGH"
	// ModeMaximum runs three or more engines and decides by majority.
	ModeMaximum Mode = "MAXIMUM"
)

const (
	agreedConfidenceHigh   = 0.95
	disputedConfidenceHigh = 0.55
	majorityConfidenceMax  = 0.90
	minEnginesForMode2     = 2
	minEnginesForModeMax   = 3
)

// ErrModeEngineCount is returned when the number of runners does not
// match what the requested mode requires.
var ErrModeEngineCount = errors.New("consensus: wrong number of engines for mode")

// ErrAllEnginesFailed is returned when every engine errored and there is
// nothing left to vote on.
var ErrAllEnginesFailed = errors.New("consensus: all engines failed")

// EngineRunner verifies a task with one engine, honoring ctx cancellation.
type EngineRunner func(ctx context.Context) (engine.Result, error)

// Outcome is the reconciled result of running a task through one or more
// engines.
type Outcome struct {
	engine.Result
	// Disputed is true when the consulted engines did not agree and the
	// returned verdict only reflects a plurality (MAXIMUM) or the first of
	// two disagreeing engines (HIGH). A lone engine left after the other
	// errored is passed through with Disputed false.
	Disputed bool
	// Votes tallies how many live (non-errored) engines returned each
	// verdict.
	Votes map[engine.Verdict]int
	// EngineErrors holds the errors returned by engines that failed,
	// in runner order. These engines are dropped from the vote.
	EngineErrors []error
}

type runResult struct {
	index  int
	result engine.Result
	err    error
}

// Aggregate runs runners in parallel under a shared deadline and
// reconciles their results according to mode.
func Aggregate(ctx context.Context, mode Mode, deadline time.Duration, runners []EngineRunner) (Outcome, error) {
	if err := validateCount(mode, len(runners)); err != nil {
		return Outcome{}, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	results := make([]runResult, len(runners))
	var wg sync.WaitGroup
	for i, run := range runners {
		wg.Add(1)
		go func(i int, run EngineRunner) {
			defer wg.Done()
			res, err := run(runCtx)
			results[i] = runResult{index: i, result: res, err: err}
		}(i, run)
	}
	wg.Wait()

	var merr *multierror.Error
	live := make([]engine.Result, 0, len(results))
	errs := make([]error, len(results))
	for _, r := range results {
		if r.err != nil {
			merr = multierror.Append(merr, fmt.Errorf("engine %d: %w", r.index, r.err))
			errs[r.index] = r.err
			continue
		}
		live = append(live, r.result)
	}

	if len(live) == 0 {
		if merr != nil {
			return Outcome{EngineErrors: errs}, fmt.Errorf("%w: %s", ErrAllEnginesFailed, merr)
		}
		return Outcome{EngineErrors: errs}, ErrAllEnginesFailed
	}

	votes := tally(live)

	switch mode {
	case ModeSingle:
		return Outcome{Result: live[0], Votes: votes, EngineErrors: errs}, nil
	case ModeHigh:
		return reconcileHigh(live, votes, errs), nil
	case ModeMaximum:
		return reconcileMaximum(live, votes, errs), nil
	default:
		return Outcome{}, fmt.Errorf("consensus: unknown mode %q", mode)
	}
}

func validateCount(mode Mode, n int) error {
	switch mode {
	case ModeSingle:
		if n != 1 {
			return fmt.Errorf("%w: SINGLE requires exactly 1 engine, got %d", ErrModeEngineCount, n)
		}
	case ModeHigh:
		if n != minEnginesForMode2 {
			return fmt.Errorf("%w: HIGH requires exactly 2 engines, got %d", ErrModeEngineCount, n)
		}
	case ModeMaximum:
		if n < minEnginesForModeMax {
			return fmt.Errorf("%w: MAXIMUM requires at least 3 engines, got %d", ErrModeEngineCount, n)
		}
	default:
		return fmt.Errorf("consensus: unknown mode %q", mode)
	}
	return nil
}

func tally(live []engine.Result) map[engine.Verdict]int {
	votes := make(map[engine.Verdict]int, len(live))
	for _, r := range live {
		votes[r.Verdict]++
	}
	return votes
}

// reconcileHigh handles the degenerate case where one of the two
// configured engines errored (dropped from the vote, leaving a single
// survivor) as well as the normal two-engine agree/disagree case.
func reconcileHigh(live []engine.Result, votes map[engine.Verdict]int, errs []error) Outcome {
	if len(live) == 1 {
		return Outcome{Result: live[0], Votes: votes, EngineErrors: errs}
	}
	if live[0].Verdict == live[1].Verdict {
		agreed := live[0]
		agreed.Confidence = agreedConfidenceHigh
		return Outcome{Result: agreed, Votes: votes, EngineErrors: errs}
	}
	disputed := live[0]
	disputed.Confidence = disputedConfidenceHigh
	disputed.Diagnostic = fmt.Sprintf("engines disagreed: %s vs %s", live[0].Verdict, live[1].Verdict)
	return Outcome{Result: disputed, Disputed: true, Votes: votes, EngineErrors: errs}
}

func reconcileMaximum(live []engine.Result, votes map[engine.Verdict]int, errs []error) Outcome {
	total := len(live)
	verdict, count := pluralityVerdict(live, votes)
	share := float64(count) / float64(total)

	representative := live[0]
	for _, r := range live {
		if r.Verdict == verdict {
			representative = r
			break
		}
	}

	if count*2 > total {
		representative.Confidence = majorityConfidenceMax
		return Outcome{Result: representative, Votes: votes, EngineErrors: errs}
	}

	representative.Confidence = share
	representative.Diagnostic = fmt.Sprintf("no majority: plurality verdict %s held %d/%d votes", verdict, count, total)
	return Outcome{Result: representative, Disputed: true, Votes: votes, EngineErrors: errs}
}

// pluralityVerdict returns the most common verdict among live results,
// breaking ties by the order the verdict first appeared.
func pluralityVerdict(live []engine.Result, votes map[engine.Verdict]int) (engine.Verdict, int) {
	var best engine.Verdict
	bestCount := -1
	seen := make(map[engine.Verdict]bool, len(votes))
	for _, r := range live {
		if seen[r.Verdict] {
			continue
		}
		seen[r.Verdict] = true
		if votes[r.Verdict] > bestCount {
			best = r.Verdict
			bestCount = votes[r.Verdict]
		}
	}
	return best, bestCount
}
