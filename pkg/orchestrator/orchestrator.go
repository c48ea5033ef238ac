// Package orchestrator implements the orchestrator (spec.md §4.10):
// the phase machine that drives decomposition, planning, execution,
// verification, and synthesis, wiring together every other component
// (C1-C9) without any of them taking a nested lock into another
// (spec.md §5).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavecode/wavecode/pkg/budget"
	"github.com/wavecode/wavecode/pkg/cancel"
	"github.com/wavecode/wavecode/pkg/economics"
	"github.com/wavecode/wavecode/pkg/events"
	"github.com/wavecode/wavecode/pkg/ledger"
	"github.com/wavecode/wavecode/pkg/quality"
	"github.com/wavecode/wavecode/pkg/queue"
	"github.com/wavecode/wavecode/pkg/recovery"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
	"github.com/wavecode/wavecode/pkg/workerpool"
)

// DefaultMidWaveTickDelay bounds the busy-loop when a tick produces an
// empty wave but the queue is not yet terminal (no ready work, workers
// still in flight, or waiting out a stall).
const DefaultMidWaveTickDelay = 25 * time.Millisecond

// DecomposeFunc calls the Provider with the goal and returns the
// initial task set (spec.md §4.10 step 1). Returning an error or an
// empty slice triggers the built-in emergency decomposition.
type DecomposeFunc func(ctx context.Context, goal string) ([]*swarmtypes.SwarmTask, error)

// ReplanFunc is invoked at most once per run when the queue stalls
// (spec.md §4.10 step 3, §4.7 "Mid-run replan"). It may return
// additional tasks to unblock the stall; a nil/empty return is a
// no-op.
type ReplanFunc func(ctx context.Context, pending []swarmtypes.SwarmTask) ([]*swarmtypes.SwarmTask, error)

// VerifyFunc runs a verification prompt against a completed task's
// artifacts (spec.md §4.10 step 4). Its result never blocks
// acceptance already granted by C6.
type VerifyFunc func(ctx context.Context, task swarmtypes.SwarmTask, artifacts []string) swarmtypes.VerificationResult

// CapabilitiesFunc maps a task onto the capabilities required to work
// it, feeding workerpool.SelectWorker.
type CapabilitiesFunc func(task *swarmtypes.SwarmTask) []swarmtypes.Capability

// Config configures a Run.
type Config struct {
	Goal                  string
	MaxWaveSize           int
	TaskTypeConfigs       map[swarmtypes.TaskType]swarmtypes.TaskTypeConfig
	DefaultTaskTypeConfig swarmtypes.TaskTypeConfig
	Decompose             DecomposeFunc
	Replan                ReplanFunc
	Verify                VerifyFunc
	Capabilities          CapabilitiesFunc
	ArtifactExists        func(path string) (exists bool, nonEmpty bool)
}

// Deps bundles the already-constructed C1-C9 components an
// Orchestrator coordinates. Each component owns exactly one of the
// locks spec.md §5 enumerates; the orchestrator never reaches inside
// one component's lock while holding another's.
type Deps struct {
	Bus        *events.Bus
	Economics  *economics.Economics
	Budget     *budget.Pool
	Ledger     *ledger.Ledger
	Gate       *quality.Gate
	Recovery   *recovery.Recovery
	Queue      *queue.Queue
	Pool       *workerpool.Pool
	CancelRoot *cancel.Token
	CancelFn   cancel.CancelFunc
	Persister  *Persister
	SpawnAgent workerpool.SpawnAgentFunc
}

// Orchestrator runs a single swarm execution from goal to result.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	phases *PhaseTracker
	runID  string

	resultsMu sync.Mutex
	results   []swarmtypes.SwarmTaskResult

	waveNumber int
}

// New constructs an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MaxWaveSize <= 0 {
		cfg.MaxWaveSize = 5
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = func(*swarmtypes.SwarmTask) []swarmtypes.Capability { return nil }
	}
	if cfg.ArtifactExists == nil {
		cfg.ArtifactExists = func(string) (bool, bool) { return true, true }
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		phases: NewPhaseTracker(deps.Bus),
		runID:  uuid.NewString(),
	}
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() swarmtypes.Phase { return o.phases.Current() }

func (o *Orchestrator) typeConfigFor(t swarmtypes.TaskType) swarmtypes.TaskTypeConfig {
	if cfg, ok := o.cfg.TaskTypeConfigs[t]; ok {
		return cfg
	}
	return o.cfg.DefaultTaskTypeConfig
}

// Run drives the run from decomposition through synthesis (spec.md
// §4.10).
func (o *Orchestrator) Run(ctx context.Context) (swarmtypes.SwarmExecutionResult, error) {
	startedAt := time.Now()
	runCtx, cancelRunCtx := o.deps.CancelRoot.WithContext(ctx)
	defer cancelRunCtx()

	tasks, err := o.decompose(runCtx)
	if err != nil {
		o.phases.Transition(swarmtypes.PhaseFailed)
		return synthesize(nil, swarmtypes.QueueStats{}, startedAt, false, "config"), err
	}

	o.phases.Transition(swarmtypes.PhasePlanning)
	if err := o.deps.Queue.Ingest(tasks); err != nil {
		o.phases.Transition(swarmtypes.PhaseFailed)
		return synthesize(nil, swarmtypes.QueueStats{}, startedAt, false, "config"), err
	}
	o.deps.Budget.SetExpectedChildren(len(tasks))
	o.persistManifest(tasks)

	reason, fatalErr := o.execute(runCtx)

	o.phases.Transition(swarmtypes.PhaseVerifying)
	o.verify(runCtx)

	o.phases.Transition(swarmtypes.PhaseSynthesizing)
	stats := o.deps.Queue.Stats()
	success := reason == "" && stats.Failed == 0
	if reason == "" && stats.Failed > 0 {
		reason = "failed_tasks"
	}

	o.resultsMu.Lock()
	results := append([]swarmtypes.SwarmTaskResult(nil), o.results...)
	o.resultsMu.Unlock()

	final := synthesize(results, stats, startedAt, success, reason)
	if success {
		o.phases.Transition(swarmtypes.PhaseCompleted)
	} else {
		o.phases.Transition(swarmtypes.PhaseFailed)
	}
	o.persistState()
	return final, fatalErr
}

// decompose implements spec.md §4.10 step 1, including the built-in
// emergency fallback on parse/call failure.
func (o *Orchestrator) decompose(ctx context.Context) ([]*swarmtypes.SwarmTask, error) {
	o.phases.Transition(swarmtypes.PhaseDecomposing)
	if o.cfg.Decompose != nil {
		tasks, err := o.cfg.Decompose(ctx, o.cfg.Goal)
		if err == nil && len(tasks) > 0 {
			return tasks, nil
		}
	}
	return []*swarmtypes.SwarmTask{{
		ID:          uuid.NewString(),
		Description: o.cfg.Goal,
		Type:        swarmtypes.TaskImplement,
		Complexity:  3,
		Priority:    int(swarmtypes.PriorityNormal),
		Status:      swarmtypes.StatusPending,
	}}, nil
}

// execute implements spec.md §4.10 step 3. Returns a non-empty reason
// on fatal termination (cancelled/budget), or "" on a normal drain to
// terminal queue state.
func (o *Orchestrator) execute(ctx context.Context) (reason string, err error) {
	o.phases.Transition(swarmtypes.PhaseExecuting)

	for {
		if o.deps.CancelRoot.IsCancelled() {
			return "cancelled", o.deps.CancelRoot.Check()
		}
		if err := ctx.Err(); err != nil {
			return "cancelled", err
		}
		if o.deps.Queue.IsTerminal() {
			return "", nil
		}
		if o.deps.Recovery.IsBreakerActive() {
			o.sleepOrCancel(ctx, o.deps.Recovery.BreakerRemaining())
			continue
		}

		wave := o.deps.Queue.NextWave(o.cfg.MaxWaveSize)
		if len(wave) == 0 {
			stats := o.deps.Queue.Stats()
			if o.deps.Recovery.RecordWaveTick(stats.Pending, stats.Ready, false) {
				o.replan(ctx)
			}
			o.sleepOrCancel(ctx, DefaultMidWaveTickDelay)
			continue
		}

		o.runWave(ctx, wave)
		o.persistState()

		budgetStats := o.deps.Budget.Stats()
		if budgetStats.Available <= 0 && budgetStats.ChildPool > 0 {
			return "budget", nil
		}
	}
}

func (o *Orchestrator) sleepOrCancel(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = DefaultMidWaveTickDelay
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	case <-o.deps.CancelRoot.Done():
	}
}

// replan implements spec.md §4.7's mid-run replan: at most once per
// run, invoked when the queue stalls.
func (o *Orchestrator) replan(ctx context.Context) {
	o.phases.Transition(swarmtypes.PhaseReplanning)
	defer o.phases.Transition(swarmtypes.PhaseExecuting)

	if o.cfg.Replan == nil {
		return
	}
	pending := make([]swarmtypes.SwarmTask, 0)
	for _, t := range o.deps.Queue.AllTasks() {
		if t.Status == swarmtypes.StatusPending {
			pending = append(pending, t)
		}
	}
	extra, err := o.cfg.Replan(ctx, pending)
	if err != nil || len(extra) == 0 {
		return
	}
	_ = o.deps.Queue.Ingest(extra)
}

// runWave dispatches one wave's tasks concurrently and feeds each
// result back through C4/C6/C7/C8 as it completes (spec.md §4.10 step
// 3).
func (o *Orchestrator) runWave(ctx context.Context, wave []*swarmtypes.SwarmTask) {
	o.waveNumber++
	taskIDs := make([]string, len(wave))
	for i, t := range wave {
		taskIDs[i] = t.ID
	}
	o.emit(swarmtypes.EventWaveStart, swarmtypes.WaveEventData{WaveNumber: o.waveNumber, TaskIDs: taskIDs})

	var wg sync.WaitGroup
	for _, task := range wave {
		alloc := o.deps.Budget.Allocate(task.ID, task.ID, task.Priority)
		if alloc == nil {
			// Budget couldn't cover this task this tick; it stays
			// ready and is re-offered next tick (spec.md §4.10 step 3
			// "park the task and re-evaluate next tick").
			continue
		}
		if err := o.deps.Queue.MarkDispatched(task.ID); err != nil {
			o.deps.Budget.Release(alloc.ID)
			continue
		}

		wg.Add(1)
		go func(t *swarmtypes.SwarmTask, alloc *swarmtypes.BudgetAllocation) {
			defer wg.Done()
			o.runTask(ctx, t, alloc)
		}(task, alloc)
	}
	wg.Wait()

	o.emit(swarmtypes.EventWaveEnd, swarmtypes.WaveEventData{WaveNumber: o.waveNumber, TaskIDs: taskIDs})
}

// runTask spawns one task's worker, evaluates the result through the
// quality gate, and applies the resulting queue transition.
func (o *Orchestrator) runTask(ctx context.Context, task *swarmtypes.SwarmTask, alloc *swarmtypes.BudgetAllocation) {
	if err := o.deps.Recovery.ApplyStagger(ctx); err != nil {
		o.deps.Budget.Release(alloc.ID)
		o.deps.Queue.MarkRetry(task.ID, "cancelled")
		return
	}

	caps := o.cfg.Capabilities(task)
	spec, err := o.deps.Pool.SelectWorker(caps)
	if err != nil {
		o.deps.Budget.Release(alloc.ID)
		o.deps.Queue.MarkFailed(task.ID, "generic_failure", nil)
		return
	}

	if o.deps.Ledger != nil {
		for _, path := range task.TargetFiles {
			o.deps.Ledger.Claim(path, spec.WorkerID, task.ID)
		}
		defer func() {
			for _, path := range task.TargetFiles {
				o.deps.Ledger.Release(path, spec.WorkerID)
			}
		}()
	}

	attempt := task.Attempts + 1
	result, spawnErr := o.deps.Pool.Spawn(ctx, task, spec, attempt, o.deps.CancelRoot.Done(), o.deps.SpawnAgent)
	o.deps.Budget.ReportUsage(alloc.ID, result.TokensUsed)
	o.deps.Budget.Release(alloc.ID)

	o.resultsMu.Lock()
	o.results = append(o.results, result)
	o.resultsMu.Unlock()

	if o.deps.Persister != nil {
		_ = o.deps.Persister.WriteTask(*task)
	}

	if spawnErr != nil || !result.Success {
		o.deps.Recovery.RecordFailure(task.ID, result.FailureMode)
		if result.FailureMode == "rate_limit" {
			o.deps.Recovery.RecordRateLimit()
			o.deps.Recovery.IncreaseStagger()
		}
		o.finishFailedAttempt(task, result)
		return
	}
	o.deps.Recovery.DecreaseStagger()

	typeCfg := o.typeConfigFor(task.Type)
	eval := o.deps.Gate.Evaluate(typeCfg, task, result, nil, o.cfg.ArtifactExists)
	if eval.Accepted {
		o.deps.Queue.MarkCompleted(task.ID)
		return
	}

	o.deps.Recovery.RecordFailure(task.ID, result.FailureMode)
	o.finishFailedAttempt(task, result)
}

// finishFailedAttempt applies the retry/fail/auto-split decision for a
// task whose attempt did not result in acceptance (spec.md §4.8, §4.7).
func (o *Orchestrator) finishFailedAttempt(task *swarmtypes.SwarmTask, result swarmtypes.SwarmTaskResult) {
	typeCfg := o.typeConfigFor(task.Type)
	attempt := task.Attempts + 1

	if o.deps.Recovery.ShouldAutoSplit(task, attempt, typeCfg) {
		o.deps.Queue.MarkDecomposed(task.ID)
		return
	}
	if attempt < typeCfg.RetryLimit {
		o.deps.Queue.MarkRetry(task.ID, result.FailureMode)
		return
	}
	o.deps.Queue.MarkFailed(task.ID, result.FailureMode, result.ArtifactsChanged)
}

// verify implements spec.md §4.10 step 4: verification results are
// recorded but never revoke acceptance already granted.
func (o *Orchestrator) verify(ctx context.Context) []swarmtypes.VerificationResult {
	if o.cfg.Verify == nil {
		return nil
	}
	var out []swarmtypes.VerificationResult
	for _, t := range o.deps.Queue.AllTasks() {
		if t.Status != swarmtypes.StatusCompleted {
			continue
		}
		out = append(out, o.cfg.Verify(ctx, t, t.ArtifactsOnDisk))
	}
	return out
}

func (o *Orchestrator) emit(t swarmtypes.EventType, data any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Emit(swarmtypes.SwarmEvent{Type: t, Data: data})
}

func (o *Orchestrator) persistManifest(tasks []*swarmtypes.SwarmTask) {
	if o.deps.Persister == nil {
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	_ = o.deps.Persister.WriteManifest(Manifest{
		Goal:    o.cfg.Goal,
		TaskIDs: ids,
		Budget:  o.deps.Budget.Stats(),
	})
}

func (o *Orchestrator) persistState() {
	if o.deps.Persister == nil {
		return
	}
	_ = o.deps.Persister.WriteState(o.Snapshot())
}

// Snapshot builds a SwarmCheckpoint from the current live state
// (spec.md §6.4).
func (o *Orchestrator) Snapshot() swarmtypes.SwarmCheckpoint {
	var economicsState map[string]map[string]int
	if o.deps.Economics != nil {
		economicsState = o.deps.Economics.Snapshot()
	}
	var budgetStats swarmtypes.BudgetPoolStats
	if o.deps.Budget != nil {
		budgetStats = o.deps.Budget.Stats()
	}
	var recent []swarmtypes.SwarmEvent
	if o.deps.Bus != nil {
		recent = o.deps.Bus.Recent(100)
	}
	return swarmtypes.SwarmCheckpoint{
		RunID:           o.runID,
		Phase:           o.phases.Current(),
		Tasks:           o.deps.Queue.AllTasks(),
		QueueState:      o.deps.Queue.Stats(),
		Economics:       economicsState,
		BudgetPoolState: budgetStats,
		Events:          recent,
	}
}

// Restore reinstalls a previously-persisted checkpoint (spec.md §6.4):
// tasks in `dispatched` are demoted to `ready`; attempt counters are
// preserved.
func (o *Orchestrator) Restore(cp swarmtypes.SwarmCheckpoint) {
	o.runID = cp.RunID
	o.deps.Queue.RestoreTasks(cp.Tasks)
	if o.deps.Economics != nil && cp.Economics != nil {
		o.deps.Economics.Restore(cp.Economics)
	}
}
