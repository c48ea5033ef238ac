// checkpoint.go persists the run artifacts spec.md §6.3 names
// (swarm.state.json, tasks/task-<id>.json, manifest.json) and
// implements snapshot()/restore() (spec.md §6.4).
//
// Every write goes through pkg/fileutil.WriteFileAtomic, the same
// write-temp+fsync+rename-plus-parent-dir-fsync primitive pkg/ledger
// uses for its OCC-guarded writes.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wavecode/wavecode/pkg/fileutil"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

const checkpointSchemaVersion = 1

// Manifest is the run-metadata artifact (spec.md §6.3).
type Manifest struct {
	SchemaVersion int                          `json:"schemaVersion"`
	Goal          string                       `json:"goal"`
	Roles         []string                     `json:"roles"`
	TaskIDs       []string                     `json:"taskIds"`
	Budget        swarmtypes.BudgetPoolStats    `json:"budget"`
	MergePolicy   string                        `json:"mergePolicy"`
}

// TaskCheckpoint is the per-task artifact (spec.md §6.3).
type TaskCheckpoint struct {
	Status          swarmtypes.TaskStatus `json:"status"`
	Attempts        int                   `json:"attempts"`
	LastFailureMode string                `json:"lastFailureMode"`
}

// Persister writes run artifacts under a run-root directory.
type Persister struct {
	runRoot string
}

// NewPersister constructs a Persister rooted at runRoot. An empty
// runRoot disables persistence; every write becomes a no-op, matching
// spec.md's "caller-provided path" contract for callers that only want
// the in-memory checkpoint.
func NewPersister(runRoot string) *Persister {
	return &Persister{runRoot: runRoot}
}

func (p *Persister) writeJSONAtomic(relPath string, v any) error {
	if p.runRoot == "" {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	full := filepath.Join(p.runRoot, relPath)
	return fileutil.WriteFileAtomic(full, data, 0o644)
}

// WriteManifest persists manifest.json.
func (p *Persister) WriteManifest(m Manifest) error {
	m.SchemaVersion = checkpointSchemaVersion
	return p.writeJSONAtomic("manifest.json", m)
}

// WriteState persists swarm.state.json — the full checkpoint.
func (p *Persister) WriteState(cp swarmtypes.SwarmCheckpoint) error {
	return p.writeJSONAtomic("swarm.state.json", cp)
}

// WriteTask persists tasks/task-<id>.json.
func (p *Persister) WriteTask(task swarmtypes.SwarmTask) error {
	tc := TaskCheckpoint{Status: task.Status, Attempts: task.Attempts, LastFailureMode: task.LastFailureMode}
	return p.writeJSONAtomic(filepath.Join("tasks", fmt.Sprintf("task-%s.json", task.ID)), tc)
}

// ReadState loads a persisted swarm.state.json for restore.
func (p *Persister) ReadState() (swarmtypes.SwarmCheckpoint, error) {
	var cp swarmtypes.SwarmCheckpoint
	if p.runRoot == "" {
		return cp, fmt.Errorf("orchestrator: no run root configured, nothing to restore")
	}
	data, err := os.ReadFile(filepath.Join(p.runRoot, "swarm.state.json"))
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, err
	}
	return cp, nil
}
