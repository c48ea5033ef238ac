// Package queue implements the task queue (spec.md §4.8): DAG ingest
// with cycle rejection, status transitions, wave composition with
// file-conflict detection, and fixup insertion.
//
// Grounded on pkg/swarm/dag.go's DAG/DAGNode: cycle detection via DFS
// with a recursion-stack set, and GetReadyNodes' dependency-satisfied
// scan are the same shape here, generalized from a flat "all deps
// completed" rule to spec.md §4.8's richer "completed OR skipped-with-
// artifacts" readiness rule, priority/tie-break wave ordering, and
// file-conflict-aware wave composition that pkg/swarm/dag.go does not
// need (its DAGExecutor just runs every ready node at once).
package queue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wavecode/wavecode/pkg/events"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// ConflictStrategy selects how the queue handles target-file overlap
// within a candidate wave (spec.md §4.8).
type ConflictStrategy string

const (
	StrategySerialize ConflictStrategy = "serialize"
	StrategyFirstWins ConflictStrategy = "first-wins"
)

// Option configures a Queue.
type Option func(*Queue)

// WithConflictStrategy sets the wave conflict-resolution strategy.
// Defaults to StrategySerialize.
func WithConflictStrategy(s ConflictStrategy) Option {
	return func(q *Queue) { q.strategy = s }
}

// WithEventBus wires an events.Bus so conflict events are published.
func WithEventBus(bus *events.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// Queue holds the task DAG and its live status.
type Queue struct {
	mu       sync.Mutex
	tasks    map[string]*swarmtypes.SwarmTask
	order    []string // insertion order, used for stable iteration
	strategy ConflictStrategy
	bus      *events.Bus
}

// New constructs an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		tasks:    make(map[string]*swarmtypes.SwarmTask),
		strategy: StrategySerialize,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Ingest adds tasks to the DAG, rejecting the whole batch if any
// dependency is undeclared or a cycle would result (spec.md §3.2).
func (q *Queue) Ingest(tasks []*swarmtypes.SwarmTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	staged := make(map[string]*swarmtypes.SwarmTask, len(q.tasks)+len(tasks))
	for id, t := range q.tasks {
		staged[id] = t
	}
	for _, t := range tasks {
		if _, exists := staged[t.ID]; exists {
			return fmt.Errorf("queue: task %s already ingested", t.ID)
		}
		cp := t.Clone()
		if cp.Status == "" {
			cp.Status = swarmtypes.StatusPending
		}
		staged[t.ID] = cp
	}
	for _, t := range staged {
		for _, dep := range t.Dependencies {
			if _, ok := staged[dep]; !ok {
				return fmt.Errorf("queue: task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	if cycle := findCycle(staged); cycle != "" {
		return fmt.Errorf("queue: cycle detected involving task %s", cycle)
	}

	for _, t := range tasks {
		q.tasks[t.ID] = staged[t.ID]
		q.order = append(q.order, t.ID)
	}
	q.recomputeReadinessLocked()
	return nil
}

// findCycle runs DFS with a recursion-stack set over the dependency
// edges (dep -> dependent), mirroring pkg/swarm/dag.go's
// checkCycleDFS. Returns the ID of a task involved in a cycle, or "".
func findCycle(tasks map[string]*swarmtypes.SwarmTask) string {
	adjacency := make(map[string][]string, len(tasks))
	for id, t := range tasks {
		for _, dep := range t.Dependencies {
			adjacency[dep] = append(adjacency[dep], id)
		}
	}

	visited := make(map[string]bool, len(tasks))
	onStack := make(map[string]bool, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if onStack[next] {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for id := range tasks {
		if !visited[id] {
			if visit(id) {
				return id
			}
		}
	}
	return ""
}

// recomputeReadinessLocked promotes pending tasks whose dependencies
// are all satisfied (spec.md §4.8: completed or skipped-with-
// artifacts). Caller must hold q.mu.
func (q *Queue) recomputeReadinessLocked() {
	for _, t := range q.tasks {
		if t.Status != swarmtypes.StatusPending {
			continue
		}
		if q.depsSatisfiedLocked(t) {
			t.Status = swarmtypes.StatusReady
		}
	}
}

func (q *Queue) depsSatisfiedLocked(t *swarmtypes.SwarmTask) bool {
	for _, dep := range t.Dependencies {
		d, ok := q.tasks[dep]
		if !ok {
			return false
		}
		if d.Status == swarmtypes.StatusCompleted {
			continue
		}
		// A dependency that failed or was itself skipped but left
		// artifacts behind is "rescuable" (spec.md §4.8): downstream
		// tasks are not blocked on it reaching completed.
		if d.Status == swarmtypes.StatusFailed && len(d.ArtifactsOnDisk) > 0 {
			continue
		}
		if d.Status == swarmtypes.StatusSkipped && d.SkipReason == swarmtypes.SkipDependencyFailedArtifacts {
			continue
		}
		return false
	}
	return true
}

// MarkDispatched transitions a ready task to dispatched.
func (q *Queue) MarkDispatched(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	if t.Status != swarmtypes.StatusReady {
		return fmt.Errorf("queue: task %s is %s, not ready", taskID, t.Status)
	}
	t.Status = swarmtypes.StatusDispatched
	return nil
}

// MarkCompleted transitions a dispatched task to completed and
// re-evaluates readiness of its dependents.
func (q *Queue) MarkCompleted(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	t.Status = swarmtypes.StatusCompleted
	q.recomputeReadinessLocked()
	return nil
}

// MarkRetry returns a dispatched task to ready with its attempt count
// incremented (transient failure with retry remaining).
func (q *Queue) MarkRetry(taskID, failureMode string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	t.Attempts++
	t.LastFailureMode = failureMode
	t.Status = swarmtypes.StatusReady
	return nil
}

// MarkFailed transitions a dispatched task to failed (retry limit
// exhausted) and skips dependents that are not rescuable.
func (q *Queue) MarkFailed(taskID, failureMode string, artifactsOnDisk []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	t.LastFailureMode = failureMode
	t.ArtifactsOnDisk = artifactsOnDisk
	t.Status = swarmtypes.StatusFailed

	reason := swarmtypes.SkipDependencyFailed
	if len(artifactsOnDisk) > 0 {
		reason = swarmtypes.SkipDependencyFailedArtifacts
	}
	q.skipDependentsLocked(taskID, reason)
	return nil
}

// skipDependentsLocked marks every direct and transitive dependent of
// failedID as skipped, unless the failure left artifacts behind (in
// which case dependents stay eligible via skipped-with-artifacts
// readiness, per spec.md §4.8, rather than being hard-skipped).
func (q *Queue) skipDependentsLocked(failedID string, reason swarmtypes.SkipReason) {
	if reason == swarmtypes.SkipDependencyFailedArtifacts {
		q.recomputeReadinessLocked()
		return
	}
	var walk func(id string)
	walk = func(id string) {
		for _, t := range q.tasks {
			if t.Status != swarmtypes.StatusPending && t.Status != swarmtypes.StatusReady {
				continue
			}
			for _, dep := range t.Dependencies {
				if dep == id {
					t.Status = swarmtypes.StatusSkipped
					t.SkipReason = reason
					walk(t.ID)
					break
				}
			}
		}
	}
	walk(failedID)
}

// MarkDecomposed transitions a pending task to decomposed (C7 auto-
// split replaced it with child tasks).
func (q *Queue) MarkDecomposed(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	t.Status = swarmtypes.StatusDecomposed
	return nil
}

// Rescue promotes a skipped task back to pending so it can be
// re-evaluated for readiness (recovery's rescue-skipped rule, C7).
func (q *Queue) Rescue(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.require(taskID)
	if err != nil {
		return err
	}
	if t.Status != swarmtypes.StatusSkipped {
		return fmt.Errorf("queue: task %s is %s, not skipped", taskID, t.Status)
	}
	t.Status = swarmtypes.StatusPending
	q.recomputeReadinessLocked()
	return nil
}

func (q *Queue) require(taskID string) (*swarmtypes.SwarmTask, error) {
	t, ok := q.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("queue: unknown task %s", taskID)
	}
	return t, nil
}

// NextWave returns the largest ready subset containing no unresolved
// file conflicts, bounded by maxSize (the worker pool's concurrency,
// §4.9), ordered by (priority ASC, dependencyCount DESC, taskId) per
// spec.md §4.8.
func (q *Queue) NextWave(maxSize int) []*swarmtypes.SwarmTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*swarmtypes.SwarmTask
	for _, t := range q.tasks {
		if t.Status == swarmtypes.StatusReady {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if len(a.Dependencies) != len(b.Dependencies) {
			return len(a.Dependencies) > len(b.Dependencies)
		}
		return a.ID < b.ID
	})

	claimed := make(map[string]string) // targetFile -> taskID already in wave
	var wave []*swarmtypes.SwarmTask
	for _, t := range candidates {
		if maxSize > 0 && len(wave) >= maxSize {
			break
		}
		conflictsWith := ""
		for _, f := range t.TargetFiles {
			if owner, ok := claimed[f]; ok {
				conflictsWith = owner
				break
			}
		}
		if conflictsWith == "" {
			wave = append(wave, t)
			for _, f := range t.TargetFiles {
				claimed[f] = t.ID
			}
			continue
		}

		switch q.strategy {
		case StrategyFirstWins:
			t.Status = swarmtypes.StatusSkipped
			t.SkipReason = swarmtypes.SkipFileConflict
			q.emitConflict(t.ID, conflictsWith)
		default: // StrategySerialize
			// t is deferred to a later wave by dependency-tie-break
			// order: leaving it out of this wave and letting the next
			// NextWave call re-offer it once the conflicting task's
			// target files are no longer claimed achieves the same
			// effect without an explicit successor edge.
		}
	}
	return wave
}

func (q *Queue) emitConflict(losingTaskID, winningTaskID string) {
	if q.bus == nil {
		return
	}
	q.bus.Emit(swarmtypes.SwarmEvent{
		Type:   swarmtypes.EventConflict,
		TaskID: losingTaskID,
		Data:   swarmtypes.ConflictEventData{WinningTaskID: winningTaskID, LosingTaskID: losingTaskID},
	})
}

// InsertFixup appends a FixupTask with a dependency edge to the task
// it fixes, rejecting it outright if that would create a cycle
// (spec.md §4.8 "Fixup insertion").
func (q *Queue) InsertFixup(fixup *swarmtypes.FixupTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[fixup.ID]; exists {
		return fmt.Errorf("queue: fixup task id %s collides with an existing task", fixup.ID)
	}
	if _, ok := q.tasks[fixup.FixesTaskID]; !ok {
		return fmt.Errorf("queue: fixup references unknown task %s", fixup.FixesTaskID)
	}

	cp := fixup.SwarmTask.Clone()
	deps := append([]string(nil), cp.Dependencies...)
	hasEdge := false
	for _, d := range deps {
		if d == fixup.FixesTaskID {
			hasEdge = true
			break
		}
	}
	if !hasEdge {
		deps = append(deps, fixup.FixesTaskID)
	}
	cp.Dependencies = deps
	if cp.Status == "" {
		cp.Status = swarmtypes.StatusPending
	}

	staged := make(map[string]*swarmtypes.SwarmTask, len(q.tasks)+1)
	for id, t := range q.tasks {
		staged[id] = t
	}
	staged[cp.ID] = cp
	if cycle := findCycle(staged); cycle != "" {
		return fmt.Errorf("queue: fixup %s would create a circular dependency", cp.ID)
	}

	q.tasks[cp.ID] = cp
	q.order = append(q.order, cp.ID)
	q.recomputeReadinessLocked()
	return nil
}

// Get returns a copy of the task with the given ID.
func (q *Queue) Get(taskID string) (*swarmtypes.SwarmTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Stats summarizes task counts by status (spec.md §3.1 SwarmStatus).
func (q *Queue) Stats() swarmtypes.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s swarmtypes.QueueStats
	for _, t := range q.tasks {
		switch t.Status {
		case swarmtypes.StatusPending:
			s.Pending++
		case swarmtypes.StatusReady:
			s.Ready++
		case swarmtypes.StatusDispatched:
			s.Running++
		case swarmtypes.StatusCompleted:
			s.Completed++
		case swarmtypes.StatusFailed:
			s.Failed++
		case swarmtypes.StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// IsTerminal reports whether every task has reached a terminal status
// (completed, failed, skipped, or decomposed).
func (q *Queue) IsTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		switch t.Status {
		case swarmtypes.StatusCompleted, swarmtypes.StatusFailed, swarmtypes.StatusSkipped, swarmtypes.StatusDecomposed:
			continue
		default:
			return false
		}
	}
	return true
}

// AllTasks returns a copy of every task currently tracked, in
// insertion order.
func (q *Queue) AllTasks() []swarmtypes.SwarmTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]swarmtypes.SwarmTask, 0, len(q.tasks))
	for _, id := range q.order {
		if t, ok := q.tasks[id]; ok {
			out = append(out, *t.Clone())
		}
	}
	return out
}

// RestoreTasks replaces the queue's task set from a checkpoint,
// demoting any `dispatched` task back to `ready` while preserving
// attempt counters (spec.md §6.4 "On restore...").
func (q *Queue) RestoreTasks(tasks []swarmtypes.SwarmTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = make(map[string]*swarmtypes.SwarmTask, len(tasks))
	q.order = nil
	for i := range tasks {
		cp := tasks[i].Clone()
		if cp.Status == swarmtypes.StatusDispatched {
			cp.Status = swarmtypes.StatusReady
		}
		q.tasks[cp.ID] = cp
		q.order = append(q.order, cp.ID)
	}
}

// DependencyGraph exposes the current DAG for visualization (spec.md
// §3.1).
func (q *Queue) DependencyGraph() swarmtypes.DependencyGraph {
	q.mu.Lock()
	defer q.mu.Unlock()

	g := swarmtypes.DependencyGraph{
		Forward: make(map[string][]string, len(q.tasks)),
		Reverse: make(map[string][]string, len(q.tasks)),
	}
	for id, t := range q.tasks {
		g.Forward[id] = append([]string(nil), t.Dependencies...)
		for _, dep := range t.Dependencies {
			g.Reverse[dep] = append(g.Reverse[dep], id)
			g.Edges = append(g.Edges, [2]string{dep, id})
		}
	}
	return g
}
