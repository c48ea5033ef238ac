package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func testTypeConfig() swarmtypes.TaskTypeConfig {
	return swarmtypes.TaskTypeConfig{
		AcceptanceThreshold: 0.8,
		RetryLimit:          2,
		AutoSplitComplexity: 99,
		DegradedAcceptable:  false,
		RequiresArtifacts:   false,
	}
}

func newTestDeps() Deps {
	bus := events.New()
	return Deps{
		Bus:       bus,
		Economics: economics.New(),
		Budget:    budget.New(budget.Config{ParentTotal: 1_000_000, MinAllocation: 10}),
		Ledger:    ledger.New(ledger.WithEventBus(bus)),
		Gate:      quality.New(quality.Config{}, nil, nil),
		Recovery:  recovery.New(recovery.Config{StaggerInitialMs: 1, StaggerCapMs: 2}),
		Queue:     queue.New(queue.WithEventBus(bus)),
		Pool: workerpool.New(workerpool.Config{
			MaxConcurrent: 4,
			WorkerSpecs: []swarmtypes.SwarmWorkerSpec{
				{WorkerID: "coder-1", Model: "test-model", Capabilities: map[swarmtypes.Capability]bool{"code": true}},
			},
		}, workerpool.WithEventBus(bus)),
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, deps Deps) *Orchestrator {
	t.Helper()
	root, cancelFn := cancel.NewRoot()
	deps.CancelRoot = root
	deps.CancelFn = cancelFn
	deps.Persister = NewPersister("")
	if cfg.DefaultTaskTypeConfig == (swarmtypes.TaskTypeConfig{}) {
		cfg.DefaultTaskTypeConfig = testTypeConfig()
	}
	return New(cfg, deps)
}

func succeedingSpawn(result swarmtypes.SwarmTaskResult) workerpool.SpawnAgentFunc {
	return func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		result.TaskID = task.ID
		result.Success = true
		return result, nil
	}
}

func TestRunCompletesSingleTaskGoal(t *testing.T) {
	deps := newTestDeps()
	deps.SpawnAgent = succeedingSpawn(swarmtypes.SwarmTaskResult{
		Response:         "done",
		ArtifactsChanged: []string{"main.go"},
		TokensUsed:       10,
	})
	o := newTestOrchestrator(t, Config{Goal: "build a thing", MaxWaveSize: 5}, deps)

	res, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "", res.Reason)
	assert.Equal(t, 1, res.Stats.Completed)
	assert.Equal(t, swarmtypes.PhaseCompleted, o.Phase())
}

func TestRunDecomposesExplicitTaskSet(t *testing.T) {
	deps := newTestDeps()
	deps.SpawnAgent = succeedingSpawn(swarmtypes.SwarmTaskResult{Response: "ok", ArtifactsChanged: []string{"a.go"}})

	decompose := func(ctx context.Context, goal string) ([]*swarmtypes.SwarmTask, error) {
		return []*swarmtypes.SwarmTask{
			{ID: "t1", Description: "first", Type: swarmtypes.TaskImplement, Complexity: 1, Priority: 3, Status: swarmtypes.StatusPending},
			{ID: "t2", Description: "second", Type: swarmtypes.TaskImplement, Complexity: 1, Priority: 3, Status: swarmtypes.StatusPending, Dependencies: []string{"t1"}},
		}, nil
	}

	o := newTestOrchestrator(t, Config{Goal: "multi-step goal", MaxWaveSize: 5, Decompose: decompose}, deps)

	res, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Stats.Completed)
}

func TestRunSurfacesFailedTasksReason(t *testing.T) {
	deps := newTestDeps()
	deps.SpawnAgent = func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, Success: false, FailureMode: "generic_failure"}, nil
	}
	cfg := Config{Goal: "a hard goal", MaxWaveSize: 5, DefaultTaskTypeConfig: swarmtypes.TaskTypeConfig{AcceptanceThreshold: 0.8, RetryLimit: 1, AutoSplitComplexity: 99}}
	o := newTestOrchestrator(t, cfg, deps)

	res, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "failed_tasks", res.Reason)
	assert.Equal(t, 1, res.Stats.Failed)
}

func TestRunHonorsPreCancelledToken(t *testing.T) {
	deps := newTestDeps()
	deps.SpawnAgent = succeedingSpawn(swarmtypes.SwarmTaskResult{Response: "ok", ArtifactsChanged: []string{"a.go"}})
	o := newTestOrchestrator(t, Config{Goal: "goal", MaxWaveSize: 5}, deps)
	o.deps.CancelFn("user requested stop")

	res, err := o.Run(context.Background())

	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "cancelled", res.Reason)
}

func TestRunHonorsContextTimeout(t *testing.T) {
	deps := newTestDeps()
	deps.SpawnAgent = func(ctx context.Context, task *swarmtypes.SwarmTask, spec swarmtypes.SwarmWorkerSpec, systemPrompt string) (swarmtypes.SwarmTaskResult, error) {
		<-ctx.Done()
		return swarmtypes.SwarmTaskResult{TaskID: task.ID, FailureMode: "timeout"}, ctx.Err()
	}
	o := newTestOrchestrator(t, Config{Goal: "goal", MaxWaveSize: 5}, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := o.Run(ctx)

	assert.Error(t, err)
	assert.Equal(t, "cancelled", res.Reason)
}

func TestSnapshotAndRestoreRoundTripQueueState(t *testing.T) {
	deps := newTestDeps()
	require.NoError(t, deps.Queue.Ingest([]*swarmtypes.SwarmTask{
		{ID: "a", Description: "a", Type: swarmtypes.TaskImplement, Priority: 3, Status: swarmtypes.StatusPending},
	}))
	require.NoError(t, deps.Queue.MarkDispatched("a"))

	o := newTestOrchestrator(t, Config{Goal: "goal"}, deps)
	cp := o.Snapshot()
	require.Len(t, cp.Tasks, 1)
	assert.Equal(t, swarmtypes.StatusDispatched, cp.Tasks[0].Status)

	restoreDeps := newTestDeps()
	o2 := newTestOrchestrator(t, Config{Goal: "goal"}, restoreDeps)
	o2.Restore(cp)

	restored, ok := o2.deps.Queue.Get("a")
	require.True(t, ok)
	assert.Equal(t, swarmtypes.StatusReady, restored.Status, "dispatched tasks demote to ready on restore")
}

func TestRunRejectsDependencyCycleAsConfigError(t *testing.T) {
	deps := newTestDeps()
	decompose := func(ctx context.Context, goal string) ([]*swarmtypes.SwarmTask, error) {
		return []*swarmtypes.SwarmTask{
			{ID: "a", Description: "a", Type: swarmtypes.TaskImplement, Priority: 3, Status: swarmtypes.StatusPending, Dependencies: []string{"b"}},
			{ID: "b", Description: "b", Type: swarmtypes.TaskImplement, Priority: 3, Status: swarmtypes.StatusPending, Dependencies: []string{"a"}},
		}, nil
	}
	o := newTestOrchestrator(t, Config{Goal: "goal", Decompose: decompose}, deps)

	res, err := o.Run(context.Background())

	assert.Error(t, err)
	assert.Equal(t, "config", res.Reason)
}
