// Package ledger implements the file ledger (spec.md §4.5): per-file
// exclusive claims plus version-hash optimistic concurrency control on
// content. The two concerns are orthogonal and guarded by separate
// locks (spec.md §5): a top-level mutex for the claim map, and a
// per-path mutex for the snapshot/write sequence on that path.
//
// The atomic write (write-temp + rename + fsync, including the parent
// directory) is delegated to pkg/fileutil.WriteFileAtomic rather than
// reimplemented here. The claim-map shape
// (path -> owner, released on completion) follows pkg/tools/
// task_ledger.go's map-of-entries-plus-mutex texture, generalized from
// "one JSON-on-disk ledger of task records" to "one in-memory claim
// registry plus per-path OCC", since the ledger's subject here is file
// content, not task status records.
package ledger

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wavecode/wavecode/pkg/events"
	"github.com/wavecode/wavecode/pkg/fileutil"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// Claim is one active exclusive intent on a path.
type Claim struct {
	Path      string
	AgentID   string
	TaskID    string
	ClaimedAt time.Time
}

// Ledger is the file ledger. Zero value is not usable; construct with
// New.
type Ledger struct {
	claimsMu sync.Mutex
	claims   map[string]*Claim

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex

	bus *events.Bus // optional; nil means no write events are emitted
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

// WithEventBus wires an events.Bus so attemptWrite can emit a `write`
// event on success (spec.md §4.5 step 3). The bus is never called
// while holding either of the ledger's own locks.
func WithEventBus(bus *events.Bus) Option {
	return func(l *Ledger) { l.bus = bus }
}

// New constructs a Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		claims:    make(map[string]*Claim),
		pathLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) pathLock(path string) *sync.Mutex {
	l.pathLocksMu.Lock()
	defer l.pathLocksMu.Unlock()
	m, ok := l.pathLocks[path]
	if !ok {
		m = &sync.Mutex{}
		l.pathLocks[path] = m
	}
	return m
}

// Claim returns true iff no conflicting active claim exists on path.
// Idempotent: a repeat claim by the same (agentID) succeeds without
// creating a second entry (spec.md §8).
func (l *Ledger) Claim(path, agentID, taskID string) bool {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()

	if existing, ok := l.claims[path]; ok {
		return existing.AgentID == agentID
	}
	l.claims[path] = &Claim{Path: path, AgentID: agentID, TaskID: taskID, ClaimedAt: time.Now()}
	return true
}

// Release releases agentID's claim on path, if held. Idempotent: a
// release on a path with no matching claim is a no-op.
func (l *Ledger) Release(path, agentID string) {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()
	if existing, ok := l.claims[path]; ok && existing.AgentID == agentID {
		delete(l.claims, path)
	}
}

// ReleaseAll releases every claim held by agentID, used on task
// completion/cancellation.
func (l *Ledger) ReleaseAll(agentID string) {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()
	for path, c := range l.claims {
		if c.AgentID == agentID {
			delete(l.claims, path)
		}
	}
}

// GetActiveClaims returns a snapshot copy of the active claim map.
func (l *Ledger) GetActiveClaims() map[string]Claim {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()
	out := make(map[string]Claim, len(l.claims))
	for path, c := range l.claims {
		out[path] = *c
	}
	return out
}

// hashContent returns the stable content hash used as a version token.
func hashContent(content []byte) string {
	h := sha256.Sum256(content)
	return fmt.Sprintf("%x", h)
}

// Snapshot reads path's current bytes (empty string if absent),
// computes a stable content hash, and records readerAgentID. Multiple
// concurrent readers are allowed; Snapshot takes the path's mutex only
// for the duration of the read.
func (l *Ledger) Snapshot(path, agentID string) (swarmtypes.FileVersion, error) {
	mu := l.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	content, err := readOrEmpty(path)
	if err != nil {
		return swarmtypes.FileVersion{}, err
	}
	return swarmtypes.FileVersion{
		Path:            path,
		ContentSnapshot: string(content),
		VersionHash:     hashContent(content),
		ReaderAgentID:   agentID,
	}, nil
}

func readOrEmpty(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return content, nil
}

// AttemptWriteRequest is the input to AttemptWrite (spec.md §4.5).
type AttemptWriteRequest struct {
	Path       string
	AgentID    string
	TaskID     string
	NewContent string
	BaseHash   string
}

// AttemptWrite performs the OCC write protocol under path's mutex:
// re-read the current on-disk hash (never trust a cached value), and
// if it differs from BaseHash, fail with Conflict without mutating
// anything. Otherwise write atomically (temp file + fsync + rename)
// and emit a `write` event on success.
func (l *Ledger) AttemptWrite(req AttemptWriteRequest) (swarmtypes.WriteResult, error) {
	mu := l.pathLock(req.Path)
	mu.Lock()

	current, err := readOrEmpty(req.Path)
	if err != nil {
		mu.Unlock()
		return swarmtypes.WriteResult{}, err
	}
	currentHash := hashContent(current)

	if currentHash != req.BaseHash {
		mu.Unlock()
		return swarmtypes.WriteResult{
			Success:     false,
			Conflict:    true,
			BaseHash:    req.BaseHash,
			CurrentHash: currentHash,
			Reason:      "base hash does not match current on-disk hash",
		}, nil
	}

	if err := fileutil.WriteFileAtomic(req.Path, []byte(req.NewContent), 0o644); err != nil {
		mu.Unlock()
		return swarmtypes.WriteResult{}, err
	}
	newHash := hashContent([]byte(req.NewContent))
	mu.Unlock()

	if l.bus != nil {
		l.bus.Emit(swarmtypes.SwarmEvent{
			Type:      swarmtypes.EventWrite,
			Timestamp: time.Now(),
			TaskID:    req.TaskID,
			AgentID:   req.AgentID,
			Data: swarmtypes.WriteEventData{
				Path:        req.Path,
				BaseHash:    req.BaseHash,
				CurrentHash: newHash,
			},
		})
	}

	return swarmtypes.WriteResult{
		Success:     true,
		Conflict:    false,
		BaseHash:    req.BaseHash,
		CurrentHash: newHash,
	}, nil
}
