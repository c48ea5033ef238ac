// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package swarmtypes holds the data model shared by every swarm
// orchestrator component: tasks, results, worker specs, events, and the
// snapshot shapes used for status reporting and checkpointing.
package swarmtypes

import "time"

// TaskType enumerates the built-in task categories. Each type carries a
// default TaskTypeConfig (see Config.TaskTypes).
type TaskType string

const (
	TaskImplement     TaskType = "implement"
	TaskResearch      TaskType = "research"
	TaskReview        TaskType = "review"
	TaskTest          TaskType = "test"
	TaskRefactor      TaskType = "refactor"
	TaskDesign        TaskType = "design"
	TaskFix           TaskType = "fix"
	TaskIntegrate     TaskType = "integrate"
	TaskDocumentation TaskType = "documentation"
)

// TaskStatus is the task lifecycle state (spec.md §4.8).
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusReady      TaskStatus = "ready"
	StatusDispatched TaskStatus = "dispatched"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusSkipped    TaskStatus = "skipped"
	StatusDecomposed TaskStatus = "decomposed"
)

// SkipReason records why a task was skipped, distinguishing artifact-bearing
// skips (rescuable per §4.7) from plain dependency failures.
type SkipReason string

const (
	SkipDependencyFailed        SkipReason = "dependency_failed"
	SkipDependencyFailedArtifacts SkipReason = "dependency_failed_with_artifacts"
	SkipFileConflict              SkipReason = "file_conflict_first_wins"
)

// Priority is a 1..3 scale; lower numbers are scheduled first (§4.8 wave
// ordering: priority ASC).
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityNormal   Priority = 3
	PriorityLow      Priority = 4
)

// TaskTypeConfig is the per-TaskType policy row (spec.md §3.3).
type TaskTypeConfig struct {
	AcceptanceThreshold float64
	RetryLimit          int
	AutoSplitComplexity int
	DegradedAcceptable  bool
	RequiresArtifacts   bool
}

// SwarmTask is a unit of work in the dependency DAG.
type SwarmTask struct {
	ID           string
	Description  string
	Type         TaskType
	Complexity   int // 1..5
	Dependencies []string
	TargetFiles  []string
	Priority     int // 1..3, lower = more urgent
	Status       TaskStatus
	SkipReason   SkipReason
	Metadata     map[string]any

	// Runtime bookkeeping, not part of the wire contract but needed by
	// the queue/recovery components.
	Attempts        int
	LastFailureMode string
	ArtifactsOnDisk []string // artifacts a prior attempt left behind
}

// Clone returns a deep-enough copy for safe mutation by callers that hold
// no lock of their own (the queue is the source of truth and always
// copies out before handing a task to another component).
func (t *SwarmTask) Clone() *SwarmTask {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.TargetFiles = append([]string(nil), t.TargetFiles...)
	cp.ArtifactsOnDisk = append([]string(nil), t.ArtifactsOnDisk...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// FixupTask is a SwarmTask created to repair a prior task's output (§4.7,
// §4.8 "Fixup insertion").
type FixupTask struct {
	SwarmTask
	FixesTaskID     string
	FixInstructions string
}

// SwarmTaskResult is what a worker produces for a dispatched task.
type SwarmTaskResult struct {
	TaskID                string
	Success               bool
	Response              string
	ArtifactsChanged      []string
	TokensUsed            int
	CostUsd               float64
	DurationMs            int64
	FailureMode           string
	AcceptedWithDegradation bool
}

// Capability tags a worker's skill set; matched against a task's required
// capabilities in C9's selectWorker.
type Capability string

// WorkerRole enumerates the built-in worker roles.
type WorkerRole string

const (
	RoleCoder      WorkerRole = "coder"
	RoleResearcher WorkerRole = "researcher"
	RoleReviewer   WorkerRole = "reviewer"
	RoleTester     WorkerRole = "tester"
	RoleDesigner   WorkerRole = "designer"
)

// SwarmWorkerSpec describes one configured worker archetype.
type SwarmWorkerSpec struct {
	WorkerID       string
	Model          string
	Role           WorkerRole
	Capabilities   map[Capability]bool
	MaxConcurrency int
}

// WorkerState is the runtime status of a single worker instance.
type WorkerState string

const (
	WorkerIdle     WorkerState = "idle"
	WorkerClaiming WorkerState = "claiming"
	WorkerRunning  WorkerState = "running"
	WorkerDone     WorkerState = "done"
	WorkerError    WorkerState = "error"
)

// SwarmWorkerStatus is the live status of one worker, surfaced in
// SwarmStatus snapshots.
type SwarmWorkerStatus struct {
	WorkerID   string
	Status     WorkerState
	TaskID     string
	StartedAt  time.Time
	ElapsedMs  int64
	TokensUsed int
}

// QueueStats summarizes the task queue's counts by status.
type QueueStats struct {
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Skipped   int
}

// Phase is the orchestrator's lifecycle phase (§4.10).
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseDecomposing   Phase = "decomposing"
	PhasePlanning      Phase = "planning"
	PhaseExecuting     Phase = "executing"
	PhaseVerifying     Phase = "verifying"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseReplanning    Phase = "replanning"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// SwarmStatus is a point-in-time snapshot of the whole run.
type SwarmStatus struct {
	Phase       Phase
	CurrentWave int
	TotalWaves  int
	Queue       QueueStats
	Workers     []SwarmWorkerStatus
	Budget      BudgetPoolStats
}

// BudgetPoolStats mirrors §4.4 stats().
type BudgetPoolStats struct {
	ParentTotal int
	Reserved    int
	ChildPool   int
	Used        int
	Available   int
	Allocations int
}

// BudgetAllocation is one child's draw against the shared pool.
type BudgetAllocation struct {
	ID            string
	WorkerID      string
	TaskID        string
	AllocatedTokens int
	UsedTokens      int
	ReturnedAt      *time.Time
}

// FileVersion is a read snapshot used for optimistic concurrency.
type FileVersion struct {
	Path           string
	ContentSnapshot string
	VersionHash    string
	ReaderAgentID  string
}

// WriteResult is the outcome of an attempted file write (§4.5).
type WriteResult struct {
	Success     bool
	Conflict    bool
	BaseHash    string
	CurrentHash string
	Reason      string
}

// ModelHealthRecord tracks per-model reliability for worker selection
// tie-breaking (§4.9).
type ModelHealthRecord struct {
	Model            string
	Successes        int
	Failures         int
	RateLimits       int
	QualityRejections int
	AvgLatencyMs     float64
	Healthy          bool
}

// DependencyGraph exposes the task DAG for visualization/diagnostics.
type DependencyGraph struct {
	Forward  map[string][]string // task -> deps
	Reverse  map[string][]string // task -> dependents
	Edges    [][2]string         // (from, to) pairs, from = dependency, to = dependent
}

// SwarmExecutionResult is the final artifact of a run (§4.10 step 5, §7).
type SwarmExecutionResult struct {
	Success     bool
	TaskResults []SwarmTaskResult
	Stats       QueueStats
	Artifacts   []string
	DurationMs  int64
	Reason      string
}

// VerificationResult is produced by the "verifying" phase; it never blocks
// acceptance already granted by C6 (§4.10 step 4).
type VerificationResult struct {
	TaskID  string
	Passed  bool
	Notes   string
}

// SwarmCheckpoint is the serializable snapshot/restore payload (§6.4).
type SwarmCheckpoint struct {
	RunID            string
	Phase            Phase
	Tasks            []SwarmTask
	QueueState       QueueStats
	Economics        map[string]map[string]int // fingerprint -> workerID -> count
	BudgetPoolState  BudgetPoolStats
	Events           []SwarmEvent
}
