// Package recovery implements the recovery strategies (spec.md §4.7):
// a rate-limit sliding window feeding a circuit breaker, adaptive
// inter-spawn stagger, auto-split eligibility, rescue-skipped
// promotion, and the once-per-run mid-run replan trigger.
//
// The sliding window is grounded directly on pkg/agent/ratelimit.go's
// rateLimiter (pruneOld + append-under-mutex). The stagger delay is
// wired to golang.org/x/time/rate (SPEC_FULL.md §11) instead of a
// hand-rolled time.Sleep loop: ApplyStagger calls limiter.Wait(ctx),
// which honors context cancellation the way spec.md §5 requires every
// suspension point to.
package recovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// Defaults per spec.md §4.7.
const (
	DefaultCircuitBreakerWindowMs = 30000
	DefaultCircuitBreakerThreshold = 3
	DefaultCircuitBreakerPauseMs  = 15000
	DefaultStaggerCapMs           = 5000
	DefaultStaggerInitialMs       = 250
	DefaultStallTicksThreshold    = 2
)

// autoSplitFailureModes are the failure modes that count toward
// auto-split eligibility (spec.md §4.7).
var autoSplitFailureModes = map[string]bool{
	"timeout":          true,
	"context_overflow": true,
	"generic_failure":  true,
}

// Config configures a Recovery tracker.
type Config struct {
	CircuitBreakerWindowMs  int64
	CircuitBreakerThreshold int
	CircuitBreakerPauseMs   int64
	StaggerCapMs            int64
	StaggerInitialMs        int64
	StallTicksThreshold     int
}

func (c Config) withDefaults() Config {
	if c.CircuitBreakerWindowMs <= 0 {
		c.CircuitBreakerWindowMs = DefaultCircuitBreakerWindowMs
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = DefaultCircuitBreakerThreshold
	}
	if c.CircuitBreakerPauseMs <= 0 {
		c.CircuitBreakerPauseMs = DefaultCircuitBreakerPauseMs
	}
	if c.StaggerCapMs <= 0 {
		c.StaggerCapMs = DefaultStaggerCapMs
	}
	if c.StaggerInitialMs <= 0 {
		c.StaggerInitialMs = DefaultStaggerInitialMs
	}
	if c.StallTicksThreshold <= 0 {
		c.StallTicksThreshold = DefaultStallTicksThreshold
	}
	return c
}

// Recovery tracks the run-wide recovery state (spec.md §4.7). A single
// mutex guards everything; no nested locks into other components
// (spec.md §5).
type Recovery struct {
	cfg Config
	mu  sync.Mutex

	rateLimitEvents []time.Time

	breakerActive     bool
	breakerActivatedAt time.Time

	staggerMs      int64
	staggerLimiter *rate.Limiter

	failureHistory map[string][]string // taskID -> failureModes, most recent last
	rescuedTasks   map[string]bool

	hasReplanned bool
	stallTicks   int
}

// New constructs a Recovery tracker.
func New(cfg Config) *Recovery {
	cfg = cfg.withDefaults()
	r := &Recovery{
		cfg:            cfg,
		staggerMs:      cfg.StaggerInitialMs,
		failureHistory: make(map[string][]string),
		rescuedTasks:   make(map[string]bool),
	}
	r.staggerLimiter = rate.NewLimiter(rate.Every(time.Duration(r.staggerMs)*time.Millisecond), 1)
	return r
}

// RecordRateLimit appends a rate_limit signal timestamp and evaluates
// whether the circuit breaker should activate.
func (r *Recovery) RecordRateLimit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.rateLimitEvents = pruneOld(r.rateLimitEvents, now.Add(-time.Duration(r.cfg.CircuitBreakerWindowMs)*time.Millisecond))
	r.rateLimitEvents = append(r.rateLimitEvents, now)

	if len(r.rateLimitEvents) >= r.cfg.CircuitBreakerThreshold && !r.breakerActive {
		r.breakerActive = true
		r.breakerActivatedAt = now
	}
}

// IsBreakerActive reports whether dispatch must be withheld. Auto-clears
// the breaker once the pause has elapsed.
func (r *Recovery) IsBreakerActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.breakerActive {
		return false
	}
	if time.Since(r.breakerActivatedAt) >= time.Duration(r.cfg.CircuitBreakerPauseMs)*time.Millisecond {
		r.breakerActive = false
		r.rateLimitEvents = nil
		return false
	}
	return true
}

// BreakerRemaining returns the time left in the current pause, or 0 if
// the breaker is not active.
func (r *Recovery) BreakerRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.breakerActive {
		return 0
	}
	elapsed := time.Since(r.breakerActivatedAt)
	pause := time.Duration(r.cfg.CircuitBreakerPauseMs) * time.Millisecond
	if elapsed >= pause {
		return 0
	}
	return pause - elapsed
}

// IncreaseStagger doubles the stagger delay up to the configured cap.
func (r *Recovery) IncreaseStagger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.staggerMs * 2
	if next > r.cfg.StaggerCapMs {
		next = r.cfg.StaggerCapMs
	}
	if next == 0 {
		next = r.cfg.StaggerInitialMs
	}
	r.staggerMs = next
	r.staggerLimiter.SetLimit(rate.Every(time.Duration(r.staggerMs) * time.Millisecond))
}

// DecreaseStagger halves the stagger delay toward zero.
func (r *Recovery) DecreaseStagger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staggerMs = r.staggerMs / 2
	limit := rate.Inf
	if r.staggerMs > 0 {
		limit = rate.Every(time.Duration(r.staggerMs) * time.Millisecond)
	}
	r.staggerLimiter.SetLimit(limit)
}

// StaggerMs returns the current stagger delay in milliseconds.
func (r *Recovery) StaggerMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staggerMs
}

// ApplyStagger waits for the current stagger interval, or returns
// ctx.Err() immediately if ctx is cancelled first — honoring spec.md
// §5's requirement that every suspension point respect cancellation.
func (r *Recovery) ApplyStagger(ctx context.Context) error {
	r.mu.Lock()
	limiter := r.staggerLimiter
	r.mu.Unlock()
	return limiter.Wait(ctx)
}

// RecordFailure appends failureMode to taskID's history, most recent
// last, used by ShouldAutoSplit.
func (r *Recovery) RecordFailure(taskID, failureMode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureHistory[taskID] = append(r.failureHistory[taskID], failureMode)
}

// ShouldAutoSplit reports whether task is eligible for micro-
// decomposition (spec.md §4.7): attempts at or past retryLimit-1, high
// enough complexity, and its last two recorded failures both fall in
// {timeout, context_overflow, generic_failure}.
func (r *Recovery) ShouldAutoSplit(task *swarmtypes.SwarmTask, attempts int, typeCfg swarmtypes.TaskTypeConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempts < typeCfg.RetryLimit-1 {
		return false
	}
	if task.Complexity < typeCfg.AutoSplitComplexity {
		return false
	}
	hist := r.failureHistory[task.ID]
	if len(hist) < 2 {
		return false
	}
	lastTwo := hist[len(hist)-2:]
	return autoSplitFailureModes[lastTwo[0]] && autoSplitFailureModes[lastTwo[1]]
}

// RescueSkipped reports whether taskID may be re-promoted from skipped
// to ready. A task is rescued at most once per run.
func (r *Recovery) RescueSkipped(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rescuedTasks[taskID] {
		return false
	}
	r.rescuedTasks[taskID] = true
	return true
}

// RecordWaveTick reports one orchestrator tick's completion status and
// returns true exactly once per run, the moment a stall of
// StallTicksThreshold consecutive ticks is observed with pending > 0
// and ready == 0 (spec.md §4.7 "Mid-run replan").
func (r *Recovery) RecordWaveTick(pending, ready int, completedThisTick bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if completedThisTick || ready > 0 || pending == 0 {
		r.stallTicks = 0
		return false
	}

	r.stallTicks++
	if r.stallTicks >= r.cfg.StallTicksThreshold && !r.hasReplanned {
		r.hasReplanned = true
		r.stallTicks = 0
		return true
	}
	return false
}

func pruneOld(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return times[i:]
}
