package orchestrator

import (
	"sync"
	"time"

	"github.com/wavecode/wavecode/pkg/events"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// PhaseEntry records one phase's entry/exit timestamps.
// SPEC_FULL.md §12: promoted from an implicit status field (the
// distillation's bare `Phase` string) into first-class timing detail,
// grounded on original_source/attocode's phase_tracker.py.
type PhaseEntry struct {
	Phase    swarmtypes.Phase
	EnteredAt time.Time
	ExitedAt  time.Time // zero while the phase is still current
}

// PhaseTracker records the sequence of phases a run passes through.
type PhaseTracker struct {
	mu      sync.Mutex
	current swarmtypes.Phase
	history []PhaseEntry
	bus     *events.Bus
}

// NewPhaseTracker constructs a tracker starting at PhaseIdle.
func NewPhaseTracker(bus *events.Bus) *PhaseTracker {
	return &PhaseTracker{
		current: swarmtypes.PhaseIdle,
		history: []PhaseEntry{{Phase: swarmtypes.PhaseIdle, EnteredAt: time.Now()}},
		bus:     bus,
	}
}

// Transition closes out the current phase entry and opens a new one,
// publishing a `phase` event.
func (pt *PhaseTracker) Transition(to swarmtypes.Phase) {
	pt.mu.Lock()
	now := time.Now()
	from := pt.current
	if n := len(pt.history); n > 0 {
		pt.history[n-1].ExitedAt = now
	}
	pt.current = to
	pt.history = append(pt.history, PhaseEntry{Phase: to, EnteredAt: now})
	pt.mu.Unlock()

	if pt.bus != nil {
		pt.bus.Emit(swarmtypes.SwarmEvent{
			Type: swarmtypes.EventPhase,
			Data: swarmtypes.PhaseEventData{From: from, To: to},
		})
	}
}

// Current returns the active phase.
func (pt *PhaseTracker) Current() swarmtypes.Phase {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.current
}

// History returns a copy of every phase entry recorded so far.
func (pt *PhaseTracker) History() []PhaseEntry {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]PhaseEntry, len(pt.history))
	copy(out, pt.history)
	return out
}

// DurationIn returns the total time spent in the given phase across
// every entry/exit (a phase may be revisited, e.g. executing after a
// replan).
func (pt *PhaseTracker) DurationIn(phase swarmtypes.Phase) time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	var total time.Duration
	for _, e := range pt.history {
		if e.Phase != phase {
			continue
		}
		end := e.ExitedAt
		if end.IsZero() {
			end = time.Now()
		}
		total += end.Sub(e.EnteredAt)
	}
	return total
}
