// Package sandbox executes validated statistics-DSL code under an
// ephemeral, resource-bounded JavaScript runtime. No OS-level process
// isolation (cgroups, seccomp, network namespace) is available to a
// single Go binary without an external collaborator (a container runtime
// or microVM); this package is always the "restricted evaluator" fallback
// path the containment contract allows for that case, and it always
// records that fact as a security event rather than silently presenting
// itself as fully isolated.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// Config bounds a single sandbox run. Zero values fall back to the
// documented defaults.
type Config struct {
	Timeout          time.Duration
	MemoryLimitBytes int64
	// MemoryPollInterval controls how often resident memory is sampled
	// against MemoryLimitBytes during a run.
	MemoryPollInterval time.Duration
	OutputLimitBytes   int
}

// DefaultConfig matches the documented wall-clock/memory/output caps.
func DefaultConfig() Config {
	return Config{
		Timeout:            10 * time.Second,
		MemoryLimitBytes:   512 * 1024 * 1024,
		MemoryPollInterval: 50 * time.Millisecond,
		OutputLimitBytes:   10 * 1024,
	}
}

// Result is the outcome of one sandboxed run.
type Result struct {
	Value      float64
	Truncated  bool
	Duration   time.Duration
	Fallback   bool // always true: see package doc
	MemoryHalt bool // true if the run was stopped for exceeding MemoryLimitBytes
}

// Frame is the tabular data a stats expression may aggregate over: column
// name to a slice of float64 values.
type Frame map[string][]float64

// Runner executes validated stats-DSL code, one fresh goja.Runtime per
// call, under a wall-clock deadline and a best-effort resident-memory
// watch.
type Runner struct {
	cfg    Config
	logger *logging.Logger
}

// New builds a Runner.
func New(cfg Config, logger *logging.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MemoryLimitBytes <= 0 {
		cfg.MemoryLimitBytes = 512 * 1024 * 1024
	}
	if cfg.MemoryPollInterval <= 0 {
		cfg.MemoryPollInterval = 50 * time.Millisecond
	}
	if cfg.OutputLimitBytes <= 0 {
		cfg.OutputLimitBytes = 10 * 1024
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run validates code against the whitelisted stats grammar, then
// evaluates it against frame inside a fresh, ephemeral runtime destroyed
// at the end of the call regardless of outcome.
func (r *Runner) Run(ctx context.Context, code string, schema provider.FrameSchema, frame Frame) (Result, error) {
	expr, err := validateStatsExpression(code, schema)
	if err != nil {
		return Result{}, err
	}

	r.emitFallbackEvent(ctx, code)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var memoryHalt atomic.Bool
	monitorDone := make(chan struct{})
	var once sync.Once
	stopMonitor := func() { once.Do(func() { close(monitorDone) }) }
	defer stopMonitor()

	go r.watchMemory(runCtx, cancel, monitorDone, &memoryHalt)

	vm := goja.New()
	frameObj := vm.NewObject()
	for col, values := range frame {
		_ = frameObj.Set(col, values)
	}
	if err := vm.Set("frame", frameObj); err != nil {
		return Result{}, fmt.Errorf("sandbox: set frame: %w", err)
	}
	if _, err := vm.RunString(aggregateBuiltins); err != nil {
		return Result{}, fmt.Errorf("sandbox: load builtins: %w", err)
	}

	interruptDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt(runCtx.Err())
		case <-interruptDone:
		}
	}()
	defer close(interruptDone)

	started := time.Now()
	val, err := vm.RunString(code)
	duration := time.Since(started)

	result := Result{Duration: duration, Fallback: true, MemoryHalt: memoryHalt.Load()}

	if err != nil {
		return result, translateRuntimeError(err, runCtx, expr)
	}

	exported := val.Export()
	num, ok := toFloat64(exported)
	if !ok {
		return result, fmt.Errorf("sandbox: expression %q did not evaluate to a number (got %T)", code, exported)
	}
	result.Value = num

	if encoded, mErr := json.Marshal(num); mErr == nil && len(encoded) > r.cfg.OutputLimitBytes {
		result.Truncated = true
	}

	return result, nil
}

// watchMemory polls this process's resident memory against the
// configured limit and cancels the run if exceeded. This is a whole-
// process, best-effort check, not per-execution isolation — the package
// doc explains why no stronger guarantee is available here.
func (r *Runner) watchMemory(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}, halted *atomic.Bool) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	ticker := time.NewTicker(r.cfg.MemoryPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := proc.MemoryInfoWithContext(ctx)
			if err != nil || info == nil {
				continue
			}
			if int64(info.RSS) > r.cfg.MemoryLimitBytes {
				halted.Store(true)
				cancel()
				return
			}
		}
	}
}

func (r *Runner) emitFallbackEvent(ctx context.Context, code string) {
	if r.logger == nil {
		return
	}
	r.logger.LogSecurityEvent(ctx, "SANDBOX_FALLBACK", map[string]interface{}{
		"reason": "no OS-level isolation available; executing under restricted in-process evaluator",
		"code":   code,
	})
}

func translateRuntimeError(err error, ctx context.Context, expr statsExpr) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("sandbox: %s(frame.%s) did not complete: %w", expr.Func, expr.Column, ctxErr)
	}
	switch typed := err.(type) {
	case *goja.InterruptedError:
		return fmt.Errorf("sandbox: execution interrupted: %v", typed.Value())
	case *goja.Exception:
		return fmt.Errorf("sandbox: runtime exception: %s", typed.Error())
	default:
		return fmt.Errorf("sandbox: %w", err)
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
