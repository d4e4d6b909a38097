package crdt

import (
	"testing"
)

// Functions

// TestContextInsertContains executes a white-box unit
// test on implemented Insert() and Contains() functions.
func TestContextInsertContains(t *testing.T) {

	cc := NewContext()

	d := Dot{Replica: 3, Counter: 1}

	if cc.Contains(d) {
		t.Fatalf("[crdt.TestContextInsertContains] Expected empty context not to contain %v.", d)
	}

	cc.Insert(d)

	if !cc.Contains(d) {
		t.Fatalf("[crdt.TestContextInsertContains] Expected context to contain %v after insertion.", d)
	}

	// Duplicate insertion has to be a no-op.
	cc.Insert(d)

	if len(cc.Dots()) != 1 {
		t.Fatalf("[crdt.TestContextInsertContains] Expected exactly one observed dot after duplicate insertion, found %d.", len(cc.Dots()))
	}
}

// TestContextGapRetention verifies that dots received
// before their causal predecessors are retained as
// exceptions and folded into the frontier once the gap
// closes.
func TestContextGapRetention(t *testing.T) {

	cc := NewContext()

	// Deliver counters 1, 3 and 5 of replica 7, leaving
	// gaps at 2 and 4.
	cc.Insert(Dot{Replica: 7, Counter: 1})
	cc.Insert(Dot{Replica: 7, Counter: 3})
	cc.Insert(Dot{Replica: 7, Counter: 5})

	if cc.frontier[7] != 1 {
		t.Fatalf("[crdt.TestContextGapRetention] Expected frontier 1 with gaps open, found %d.", cc.frontier[7])
	}

	if !cc.Contains(Dot{Replica: 7, Counter: 3}) || !cc.Contains(Dot{Replica: 7, Counter: 5}) {
		t.Fatalf("[crdt.TestContextGapRetention] Expected out-of-order dots to be retained as exceptions.")
	}

	if cc.Contains(Dot{Replica: 7, Counter: 2}) || cc.Contains(Dot{Replica: 7, Counter: 4}) {
		t.Fatalf("[crdt.TestContextGapRetention] Expected gap dots not to be observed.")
	}

	// Closing the first gap folds the frontier forward up
	// to the next gap only.
	cc.Insert(Dot{Replica: 7, Counter: 2})

	if cc.frontier[7] != 3 {
		t.Fatalf("[crdt.TestContextGapRetention] Expected frontier 3 after closing first gap, found %d.", cc.frontier[7])
	}

	// Closing the second gap compacts everything.
	cc.Insert(Dot{Replica: 7, Counter: 4})

	if cc.frontier[7] != 5 {
		t.Fatalf("[crdt.TestContextGapRetention] Expected frontier 5 after closing all gaps, found %d.", cc.frontier[7])
	}

	if len(cc.cloud) != 0 {
		t.Fatalf("[crdt.TestContextGapRetention] Expected empty exception cloud after full compaction, found %d replica entries.", len(cc.cloud))
	}
}

// TestContextUnion verifies per-replica max frontier,
// exception union and idempotence of Union().
func TestContextUnion(t *testing.T) {

	a := NewContext()
	a.Insert(Dot{Replica: 1, Counter: 1})
	a.Insert(Dot{Replica: 1, Counter: 2})
	a.Insert(Dot{Replica: 2, Counter: 4})

	b := NewContext()
	b.Insert(Dot{Replica: 1, Counter: 1})
	b.Insert(Dot{Replica: 2, Counter: 1})
	b.Insert(Dot{Replica: 2, Counter: 2})
	b.Insert(Dot{Replica: 2, Counter: 3})

	a.Union(b)

	for _, d := range []Dot{
		{Replica: 1, Counter: 2},
		{Replica: 2, Counter: 4},
	} {
		if !a.Contains(d) {
			t.Fatalf("[crdt.TestContextUnion] Expected union to contain %v.", d)
		}
	}

	// Replica 2 is now contiguous up to 4, the former
	// exception has to be absorbed.
	if a.frontier[2] != 4 {
		t.Fatalf("[crdt.TestContextUnion] Expected exception absorbed into frontier 4, found %d.", a.frontier[2])
	}

	// Duplicate union has to be a no-op.
	before := len(a.Dots())
	a.Union(b)

	if len(a.Dots()) != before {
		t.Fatalf("[crdt.TestContextUnion] Expected duplicate union to be a no-op.")
	}
}

// TestContextNext verifies monotonically increasing dot
// minting, also in the presence of stray exceptions.
func TestContextNext(t *testing.T) {

	cc := NewContext()

	d1 := cc.NextDot(9)
	d2 := cc.NextDot(9)

	if d1.Counter != 1 || d2.Counter != 2 {
		t.Fatalf("[crdt.TestContextNext] Expected counters 1 and 2, found %d and %d.", d1.Counter, d2.Counter)
	}

	// A stray exception under our own id (id collision on
	// the broadcast domain) must never cause dot reuse.
	cc.Insert(Dot{Replica: 9, Counter: 10})

	d3 := cc.NextDot(9)
	if d3.Counter != 11 {
		t.Fatalf("[crdt.TestContextNext] Expected counter 11 beyond stray exception, found %d.", d3.Counter)
	}
}

// TestContextSubtract verifies the set difference that
// drives anti-entropy.
func TestContextSubtract(t *testing.T) {

	a := NewContext()
	a.Insert(Dot{Replica: 1, Counter: 1})
	a.Insert(Dot{Replica: 1, Counter: 2})
	a.Insert(Dot{Replica: 2, Counter: 1})

	b := NewContext()
	b.Insert(Dot{Replica: 1, Counter: 1})

	missing := a.Subtract(b)

	if len(missing) != 2 {
		t.Fatalf("[crdt.TestContextSubtract] Expected 2 missing dots, found %d.", len(missing))
	}

	if len(b.Subtract(a)) != 0 {
		t.Fatalf("[crdt.TestContextSubtract] Expected no dots missing in the other direction.")
	}
}
