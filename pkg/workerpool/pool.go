// Package workerpool implements the worker pool (spec.md §4.9):
// capability-based worker selection with model-health tie-breaking, a
// concurrency-limited spawn path that wraps the external SpawnAgent
// function, complexity-derived timeouts, and failure classification.
//
// Grounded on pkg/multiagent/spawn.go's SpawnManager: the semaphore
// pattern (a buffered channel acquired/released per in-flight spawn),
// the spawn/complete event-publishing bracket, and the
// context.WithTimeout-per-spawn shape are reused directly, adapted
// from "fire-and-forget goroutine announced via the Announcer" to
// "synchronous spawn awaited by the orchestrator, result returned
// through the swarm event bus" since this core has no background
// announcer to hand results to. Capability-based routing follows
// pkg/agent/multi/registry.go's Handoff/resolveTarget (superset
// capability match, deterministic fallback) generalized from a single
// "first idle match" to a best-match score with model-health
// tie-breaking.
package workerpool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wavecode/wavecode/pkg/events"
	"github.com/wavecode/wavecode/pkg/logger"
	"github.com/wavecode/wavecode/pkg/swarmerrors"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// DefaultBaseTimeoutMs is the per-complexity-point timeout unit
// (spec.md §5 "per-task timeout scales with complexity").
const DefaultBaseTimeoutMs = 60_000

// SpawnAgentFunc invokes the external agent runner. Implementations
// live outside this package (see pkg/spawnadapter) since the core
// never constructs a concrete agent process itself (spec.md §1 OUT OF
// SCOPE).
type SpawnAgentFunc func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error)

// Config configures a Pool.
type Config struct {
	MaxConcurrent   int
	WorkerSpecs     []swarmtypes.SwarmWorkerSpec
	DefaultModel    string
	FallbackWorkers []string // worker IDs, tried in order
	BaseTimeoutMs   int64
}

// Option configures a Pool beyond Config.
type Option func(*Pool)

// WithEventBus wires an events.Bus for spawn/claim/complete/fail
// publication.
func WithEventBus(bus *events.Bus) Option {
	return func(p *Pool) { p.bus = bus }
}

// Pool dispatches tasks to workers under a concurrency limit.
type Pool struct {
	cfg Config
	sem chan struct{}
	bus *events.Bus

	mu       sync.Mutex
	health   map[string]*swarmtypes.ModelHealthRecord // keyed by model
	specByID map[string]swarmtypes.SwarmWorkerSpec
}

// New constructs a Pool.
func New(cfg Config, opts ...Option) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.BaseTimeoutMs <= 0 {
		cfg.BaseTimeoutMs = DefaultBaseTimeoutMs
	}
	p := &Pool{
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		health:   make(map[string]*swarmtypes.ModelHealthRecord),
		specByID: make(map[string]swarmtypes.SwarmWorkerSpec, len(cfg.WorkerSpecs)),
	}
	for _, s := range cfg.WorkerSpecs {
		p.specByID[s.WorkerID] = s
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectWorker picks the spec whose capability set is a superset of
// requiredCaps with the tightest fit (fewest surplus capabilities),
// breaking ties by lowest recent failure rate, falling through to the
// deterministic FallbackWorkers list (spec.md §4.9).
func (p *Pool) SelectWorker(requiredCaps []swarmtypes.Capability) (swarmtypes.SwarmWorkerSpec, error) {
	var best *swarmtypes.SwarmWorkerSpec
	bestSurplus := -1
	bestFailureRate := 2.0 // always beaten by any real rate in [0,1]

	for i := range p.cfg.WorkerSpecs {
		spec := p.cfg.WorkerSpecs[i]
		if !hasAllCapabilities(spec.Capabilities, requiredCaps) {
			continue
		}
		surplus := len(spec.Capabilities) - len(requiredCaps)
		rate := p.failureRate(spec.Model)

		switch {
		case best == nil:
		case surplus < bestSurplus:
		case surplus == bestSurplus && rate < bestFailureRate:
		default:
			continue
		}
		specCopy := spec
		best = &specCopy
		bestSurplus = surplus
		bestFailureRate = rate
	}
	if best != nil {
		return *best, nil
	}

	for _, workerID := range p.cfg.FallbackWorkers {
		if spec, ok := p.specByID[workerID]; ok {
			return spec, nil
		}
	}
	return swarmtypes.SwarmWorkerSpec{}, swarmerrors.New(swarmerrors.KindConfigurationError, nil)
}

func hasAllCapabilities(have map[swarmtypes.Capability]bool, want []swarmtypes.Capability) bool {
	for _, c := range want {
		if !have[c] {
			return false
		}
	}
	return true
}

func (p *Pool) failureRate(model string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.health[model]
	if !ok {
		return 0
	}
	total := rec.Successes + rec.Failures
	if total == 0 {
		return 0
	}
	return float64(rec.Failures) / float64(total)
}

// RecordOutcome updates the model-health tracker after a spawn
// completes (spec.md §4.9 "Used by recovery and model health").
func (p *Pool) RecordOutcome(model string, success bool, failureMode string, latencyMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.health[model]
	if !ok {
		rec = &swarmtypes.ModelHealthRecord{Model: model, Healthy: true}
		p.health[model] = rec
	}
	if success {
		rec.Successes++
	} else {
		rec.Failures++
		switch failureMode {
		case "rate_limit":
			rec.RateLimits++
		case "quality_rejection":
			rec.QualityRejections++
		}
	}
	n := rec.Successes + rec.Failures
	if n > 0 {
		rec.AvgLatencyMs = (rec.AvgLatencyMs*float64(n-1) + float64(latencyMs)) / float64(n)
	}
	rec.Healthy = rec.Failures == 0 || float64(rec.Successes)/float64(n) >= 0.5
}

// HealthSnapshot returns a copy of the current per-model health
// records.
func (p *Pool) HealthSnapshot() map[string]swarmtypes.ModelHealthRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]swarmtypes.ModelHealthRecord, len(p.health))
	for k, v := range p.health {
		out[k] = *v
	}
	return out
}

// Spawn acquires a concurrency permit, publishes spawn/claim events,
// invokes spawnFn with a complexity-derived timeout, and publishes
// complete/fail on return (spec.md §4.9). It blocks until a permit is
// available, ctx is done, or cancelDone fires.
func (p *Pool) Spawn(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, attempt int, cancelDone <-chan struct{}, spawnFn SpawnAgentFunc) (swarmtypes.SwarmTaskResult, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, FailureMode: "cancelled"}, ctx.Err()
	case <-cancelDone:
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, FailureMode: "cancelled"}, swarmerrors.New(swarmerrors.KindCancelled, nil)
	}
	defer func() { <-p.sem }()

	logCtx := logger.Context{TaskID: task.ID, WorkerID: spec.WorkerID}

	p.emit(swarmtypes.EventSpawn, task.ID, spec.WorkerID, swarmtypes.SpawnEventData{WorkerID: spec.WorkerID, Model: spec.Model, Attempt: attempt})
	p.emit(swarmtypes.EventClaim, task.ID, spec.WorkerID, swarmtypes.ClaimEventData{Granted: true})
	logger.InfoCX("workerpool", "dispatching task to worker", logCtx, map[string]any{
		"model": spec.Model, "attempt": attempt, "complexity": task.Complexity,
	})

	timeout := time.Duration(p.cfg.BaseTimeoutMs) * time.Duration(max(task.Complexity, 1)) * time.Millisecond
	spawnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	systemPrompt := buildSystemPrompt(task, attempt)
	result, err := spawnFn(spawnCtx, task, spec, systemPrompt)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		mode := classifyFailure(err, spawnCtx.Err())
		result.TaskID = task.ID
		result.Success = false
		result.FailureMode = mode
		p.RecordOutcome(spec.Model, false, mode, latencyMs)
		p.emit(swarmtypes.EventFail, task.ID, spec.WorkerID, swarmtypes.FailEventData{FailureMode: mode, Attempt: attempt, Retryable: isRetryable(mode)})
		logger.WarnCX("workerpool", "worker spawn failed", logCtx, map[string]any{
			"failure_mode": mode, "latency_ms": latencyMs, "error": err.Error(),
		})
		return result, err
	}

	p.RecordOutcome(spec.Model, result.Success, result.FailureMode, latencyMs)
	if result.Success {
		p.emit(swarmtypes.EventComplete, task.ID, spec.WorkerID, swarmtypes.CompleteEventData{Degraded: result.AcceptedWithDegradation})
		logger.InfoCX("workerpool", "worker completed task", logCtx, map[string]any{
			"latency_ms": latencyMs, "degraded": result.AcceptedWithDegradation,
		})
	} else {
		p.emit(swarmtypes.EventFail, task.ID, spec.WorkerID, swarmtypes.FailEventData{FailureMode: result.FailureMode, Attempt: attempt, Retryable: isRetryable(result.FailureMode)})
		logger.WarnCX("workerpool", "worker reported failure", logCtx, map[string]any{
			"failure_mode": result.FailureMode, "latency_ms": latencyMs,
		})
	}
	return result, nil
}

func (p *Pool) emit(t swarmtypes.EventType, taskID, agentID string, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Emit(swarmtypes.SwarmEvent{Type: t, TaskID: taskID, AgentID: agentID, Data: data})
}

// classifyFailure buckets a spawn error into spec.md §4.9's fixed
// failure-mode set.
func classifyFailure(err error, ctxErr error) string {
	kind := swarmerrors.ClassifyContextError(ctxErr)
	if kind == swarmerrors.KindCancelled {
		return "cancelled"
	}
	if kind == swarmerrors.KindWorkerTimeout {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "context") && (strings.Contains(msg, "overflow") || strings.Contains(msg, "too long") || strings.Contains(msg, "maximum context")):
		return "context_overflow"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "tool"):
		return "tool_error"
	case strings.Contains(msg, "quality") || strings.Contains(msg, "rejected"):
		return "quality_rejection"
	case strings.Contains(msg, "cancel"):
		return "cancelled"
	default:
		return "generic_failure"
	}
}

func isRetryable(failureMode string) bool {
	switch failureMode {
	case "rate_limit", "timeout":
		return true
	default:
		return false
	}
}

// buildSystemPrompt tiers the prompt by attempt count (spec.md §4.9):
// attempt 1 is bare, attempt 2 includes prior failure evidence, attempt
// >= 3 adds an explicit "try a different approach" directive.
func buildSystemPrompt(task *swarmtypes.SwarmTask, attempt int) string {
	var b strings.Builder
	b.WriteString("You are a ")
	b.WriteString(string(task.Type))
	b.WriteString(" worker. Task: ")
	b.WriteString(task.Description)

	if attempt >= 2 && task.LastFailureMode != "" {
		b.WriteString("\n\nA previous attempt failed with: ")
		b.WriteString(task.LastFailureMode)
	}
	if attempt >= 3 {
		b.WriteString("\n\nTry a different approach than previous attempts.")
	}
	return b.String()
}
