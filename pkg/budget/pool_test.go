package budget

import "testing"

func TestAllocateReservesCapacityAtomically(t *testing.T) {
	p := New(Config{ParentTotal: 100000, MaxPerChild: 40000})
	stats := p.Stats()
	if stats.ParentTotal != 100000 || stats.Reserved != 25000 || stats.Available != 75000 {
		t.Fatalf("unexpected initial stats: %+v", stats)
	}

	alloc := p.Allocate("w1", "t1", int(2))
	if alloc == nil {
		t.Fatal("expected non-nil allocation")
	}
	if p.Stats().Available != stats.Available-alloc.AllocatedTokens {
		t.Fatalf("available did not decrease by allocated cap")
	}
}

func TestAllocateNilBelowMinimum(t *testing.T) {
	p := New(Config{ParentTotal: 1000, MinAllocation: 50000})
	alloc := p.Allocate("w1", "t1", 3)
	if alloc != nil {
		t.Fatal("expected nil allocation below minimum")
	}
}

func TestReleaseIdempotentNoDoubleRefund(t *testing.T) {
	p := New(Config{ParentTotal: 100000, MaxPerChild: 40000})
	alloc := p.Allocate("w1", "t1", 3)
	before := p.Stats().Available

	p.Release(alloc.ID)
	afterFirst := p.Stats().Available
	if afterFirst <= before {
		t.Fatal("expected available to increase after release")
	}

	p.Release(alloc.ID)
	afterSecond := p.Stats().Available
	if afterSecond != afterFirst {
		t.Fatal("second release must not refund again")
	}
}

func TestConservationInvariantAtSnapshot(t *testing.T) {
	p := New(Config{ParentTotal: 100000, MaxPerChild: 40000})
	a1 := p.Allocate("w1", "t1", 3)
	a2 := p.Allocate("w2", "t2", 3)

	p.ReportUsage(a1.ID, a1.AllocatedTokens)
	p.ReportUsage(a2.ID, a2.AllocatedTokens)

	stats := p.Stats()
	// With both allocations fully used, the literal conservation
	// check (used + available + reserved == parentTotal) holds
	// exactly: available already excludes committed-but-unreleased
	// capacity, so once usedTokens == allocatedTokens for every live
	// allocation the two accounting views coincide.
	if stats.Used+stats.Available+stats.Reserved != p.parentTotal {
		t.Fatalf("conservation invariant violated: %+v (parentTotal=%d)", stats, p.parentTotal)
	}
}

func TestCriticalPrioritySingleChildAllocation(t *testing.T) {
	// Boundary behavior (spec.md §8): budget pool with 1 expected
	// child and priority critical allocates min(maxPerChild, 1.5 *
	// childPool).
	p := New(Config{ParentTotal: 100000, MaxPerChild: 1000000})
	p.SetExpectedChildren(1)
	alloc := p.Allocate("w1", "t1", int(1)) // PriorityCritical == 1

	childPool := 75000
	want := int(1.5 * float64(childPool))
	// The 60% sequential cap also applies: available at allocation
	// time is the full childPool, so sequentialCap = 0.6*75000=45000,
	// which is the binding constraint here (< 1.5*childPool and <
	// maxPerChild).
	sequentialCap := int(0.60 * float64(childPool))
	if sequentialCap < want {
		want = sequentialCap
	}
	if alloc.AllocatedTokens != want {
		t.Fatalf("expected allocated %d, got %d", want, alloc.AllocatedTokens)
	}
}

func TestRebalanceReturnsRecomputedCap(t *testing.T) {
	p := New(Config{ParentTotal: 100000, MaxPerChild: 40000})
	a1 := p.Allocate("w1", "t1", 3)
	next := p.Rebalance(a1.ID, 3)
	if next <= 0 {
		t.Fatal("expected a positive recomputed cap after rebalance")
	}
	if _, ok := p.allocations[a1.ID]; ok {
		t.Fatal("rebalance must release the given allocation")
	}
}
