// Package budget implements the shared budget pool (spec.md §4.4): a
// parent-reserved token total split into a child pool, drawn down by
// per-child allocations with priority multipliers and a sequential
// spawn cap, and returned to the pool on completion for rebalancing.
//
// The teacher has no direct equivalent to a token-budget pool (its
// rate limiting in pkg/agent/ratelimit.go governs calls-per-window, not
// a shared numeric budget), so this package's mutex-guarded-struct
// shape follows the teacher's general concurrency idiom (a single
// sync.Mutex around a small struct of counters, exactly like
// pkg/agent/ratelimit.go's rateLimiter) rather than any one teacher
// file being a line-level source. The rebalance-on-release behavior
// is grounded in _examples/original_source/attocode's
// integrations/budget/dynamic_budget.py (see SPEC_FULL.md §12).
package budget

import (
	"sync"

	"github.com/google/uuid"
	"github.com/wavecode/wavecode/pkg/swarmtypes"
)

// DefaultReservePercent is the fraction of parentTotal held back from
// the child pool (spec.md §4.4).
const DefaultReservePercent = 0.25

// DefaultMinAllocation is the floor below which allocate() refuses to
// hand out an allocation (spec.md §4.4 "Failure modes").
const DefaultMinAllocation = 1000

// DefaultSequentialCapFraction is the "never more than 60% of the pool
// remaining at the moment of allocation" sequential spawn cap.
const DefaultSequentialCapFraction = 0.60

// PriorityMultipliers maps spec.md priority levels to their cap
// multiplier.
type PriorityMultipliers struct {
	Critical float64
	High     float64
	Normal   float64
	Low      float64
}

// DefaultPriorityMultipliers matches spec.md §4.4's example values.
func DefaultPriorityMultipliers() PriorityMultipliers {
	return PriorityMultipliers{Critical: 1.5, High: 1.25, Normal: 1.0, Low: 0.75}
}

func (m PriorityMultipliers) forPriority(priority int) float64 {
	switch priority {
	case int(swarmtypes.PriorityCritical):
		return m.Critical
	case int(swarmtypes.PriorityHigh):
		return m.High
	case int(swarmtypes.PriorityLow):
		return m.Low
	default:
		return m.Normal
	}
}

// Config configures a Pool at construction time.
type Config struct {
	ParentTotal         int
	ReservePercent      float64 // default DefaultReservePercent
	MaxPerChild         int
	PriorityMultipliers PriorityMultipliers
	MinAllocation       int // default DefaultMinAllocation
}

// Pool is the shared budget pool (spec.md §4.4). A single mutex guards
// every operation; no nested locks (spec.md §5).
type Pool struct {
	mu sync.Mutex

	parentTotal    int
	reserved       int
	childPool      int
	expectedChildren int
	minAllocation  int
	maxPerChild    int
	multipliers    PriorityMultipliers

	allocations map[string]*swarmtypes.BudgetAllocation
}

// New constructs a Pool from Config, computing the reserved/childPool
// split up front.
func New(cfg Config) *Pool {
	reservePercent := cfg.ReservePercent
	if reservePercent <= 0 {
		reservePercent = DefaultReservePercent
	}
	minAlloc := cfg.MinAllocation
	if minAlloc <= 0 {
		minAlloc = DefaultMinAllocation
	}
	multipliers := cfg.PriorityMultipliers
	if multipliers == (PriorityMultipliers{}) {
		multipliers = DefaultPriorityMultipliers()
	}

	reserved := int(float64(cfg.ParentTotal) * reservePercent)
	return &Pool{
		parentTotal:   cfg.ParentTotal,
		reserved:      reserved,
		childPool:     cfg.ParentTotal - reserved,
		maxPerChild:   cfg.MaxPerChild,
		minAllocation: minAlloc,
		multipliers:   multipliers,
		allocations:   make(map[string]*swarmtypes.BudgetAllocation),
	}
}

// SetExpectedChildren informs the pool how many children are expected,
// used to compute per-child caps before any allocation happens
// (spec.md §4.4).
func (p *Pool) SetExpectedChildren(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedChildren = n
}

// available returns tokens not yet committed to a live allocation.
// Caller must hold p.mu.
func (p *Pool) available() int {
	used := 0
	for _, a := range p.allocations {
		used += a.AllocatedTokens
	}
	return p.childPool - used
}

// capFor computes the per-child cap for priority given the pool's
// current remaining capacity, honoring maxPerChild and the 60%
// sequential spawn cap. Caller must hold p.mu.
func (p *Pool) capFor(priority int) int {
	remaining := p.available()
	if remaining <= 0 {
		return 0
	}

	base := remaining
	if p.expectedChildren > 0 {
		base = p.childPool / p.expectedChildren
	}
	limit := int(float64(base) * p.multipliers.forPriority(priority))

	if p.maxPerChild > 0 && limit > p.maxPerChild {
		limit = p.maxPerChild
	}
	sequentialCap := int(float64(remaining) * DefaultSequentialCapFraction)
	if limit > sequentialCap {
		limit = sequentialCap
	}
	if limit > remaining {
		limit = remaining
	}
	return limit
}

// Allocate reserves a per-child cap against the pool for (workerID,
// taskID, priority). Returns nil if the projected cap falls below
// minAllocation (spec.md §4.4 "Failure modes").
func (p *Pool) Allocate(workerID, taskID string, priority int) *swarmtypes.BudgetAllocation {
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := p.capFor(priority)
	if limit < p.minAllocation {
		return nil
	}

	alloc := &swarmtypes.BudgetAllocation{
		ID:              uuid.NewString(),
		WorkerID:        workerID,
		TaskID:          taskID,
		AllocatedTokens: limit,
	}
	p.allocations[alloc.ID] = alloc
	cp := *alloc
	return &cp
}

// ReportUsage updates allocation's used-token counter. Lookup is by
// allocation ID; an unknown ID is a no-op (the allocation may already
// have been released).
func (p *Pool) ReportUsage(allocationID string, used int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.allocations[allocationID]; ok {
		a.UsedTokens = used
	}
}

// Release returns (allocatedTokens - usedTokens) to the pool and
// removes the allocation, making room for subsequent children to
// receive larger caps (rebalance). Idempotent: releasing an unknown
// or already-released allocation ID is a no-op, never a double
// refund (spec.md §8).
func (p *Pool) Release(allocationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocations, allocationID)
}

// Rebalance releases allocationID (if present) and returns the
// recomputed cap a still-running child at the given priority could
// now receive, given the freed capacity. This is the
// integrations/budget/dynamic_budget.py-derived convenience named in
// SPEC_FULL.md §12: a plain release() only returns tokens; Rebalance
// additionally reports what the next allocation would look like
// without performing it.
func (p *Pool) Rebalance(allocationID string, nextPriority int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocations, allocationID)
	return p.capFor(nextPriority)
}

// Stats returns a point-in-time snapshot of pool usage (spec.md §4.4).
func (p *Pool) Stats() swarmtypes.BudgetPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := 0
	for _, a := range p.allocations {
		used += a.UsedTokens
	}
	return swarmtypes.BudgetPoolStats{
		ParentTotal: p.parentTotal,
		Reserved:    p.reserved,
		ChildPool:   p.childPool,
		Used:        used,
		Available:   p.available(),
		Allocations: len(p.allocations),
	}
}
