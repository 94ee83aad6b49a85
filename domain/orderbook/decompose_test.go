package orderbook

import (
	"math/rand"
	"sort"
	"testing"
)

func TestDecomposeGrowthEmitsLimit(t *testing.T) {
	h := NewHalfBook(Ask)
	ids := &counter{}
	h.ReplaceLevels([]LevelSnapshot{{Price: 100, Qty: 5}}, ids)

	events := h.DecomposedOrdersWithUpdate([]LevelSnapshot{
		{Price: 100, Qty: 8},
		{Price: 101, Qty: 3},
	}, ids)

	if len(events) != 2 {
		t.Fatalf("events = %v, want one Limit per grown level", events)
	}
	for _, ev := range events {
		if ev.Kind != EventLimit {
			t.Errorf("event %v: kind = %v, want Limit", ev, ev.Kind)
		}
	}
	if events[0].Qty != 3 || events[0].Price != 100 {
		t.Errorf("growth at 100 should add 3, got %v", events[0])
	}
	if events[1].Qty != 3 || events[1].Price != 101 || events[1].Rank != 1 {
		t.Errorf("new level 101 should add 3 at rank 1, got %v", events[1])
	}
	if !h.EqSnapshot([]LevelSnapshot{{Price: 100, Qty: 8}, {Price: 101, Qty: 3}}) {
		t.Error("side should match the snapshot after applying events")
	}
}

func TestDecomposeShrinkRemovesOldestFirst(t *testing.T) {
	h := NewHalfBook(Ask)
	ids := &counter{}
	// Three residents: 3, 3, 4 (oldest first).
	h.ReplaceLevels([]LevelSnapshot{{Price: 100, Qty: 10, OrderCount: 3}}, ids)

	events := h.DecomposedOrdersWithUpdate([]LevelSnapshot{{Price: 100, Qty: 5}}, ids)

	// Delta 5 = full removal of the oldest (3) plus a partial (3 -> 1).
	if len(events) != 2 {
		t.Fatalf("events = %v, want a RemoveAny and a Modify", events)
	}
	if events[0].Kind != EventRemoveAny || events[0].Qty != 3 {
		t.Errorf("first event = %v, want full removal of the oldest resident", events[0])
	}
	if events[1].Kind != EventModify || events[1].Qty != 1 {
		t.Errorf("second event = %v, want reduction to 1", events[1])
	}
	if lvl := h.levels.FindLevel(100); lvl.TotalQty != 5 {
		t.Errorf("level qty = %d, want 5", lvl.TotalQty)
	}
}

func TestDecomposeVanishedLevel(t *testing.T) {
	h := NewHalfBook(Bid)
	ids := &counter{}
	h.ReplaceLevels([]LevelSnapshot{
		{Price: 99, Qty: 5},
		{Price: 98, Qty: 3},
	}, ids)

	events := h.DecomposedOrdersWithUpdate([]LevelSnapshot{{Price: 99, Qty: 5}}, ids)

	if len(events) != 1 || events[0].Kind != EventRemoveAny || events[0].Rank != -1 {
		t.Fatalf("events = %v, want one rank -1 removal covering level 98", events)
	}
	if h.Depth() != 1 {
		t.Errorf("depth = %d, want 1", h.Depth())
	}
}

func TestDecomposeUnchangedIsSilent(t *testing.T) {
	h := NewHalfBook(Ask)
	ids := &counter{}
	snap := []LevelSnapshot{{Price: 100, Qty: 5}, {Price: 101, Qty: 2}}
	h.ReplaceLevels(snap, ids)
	if events := h.DecomposedOrdersWithUpdate(snap, ids); len(events) != 0 {
		t.Fatalf("identical snapshot should produce no events, got %v", events)
	}
}

// randSide emits a rank-ordered snapshot for one side: asks ascending,
// bids descending, zero to five levels.
func randSide(rng *rand.Rand, side Side) []LevelSnapshot {
	n := rng.Intn(6)
	prices := rng.Perm(20)[:n]
	sort.Ints(prices)
	if side == Bid {
		sort.Sort(sort.Reverse(sort.IntSlice(prices)))
	}
	out := make([]LevelSnapshot, n)
	for i, p := range prices {
		out[i] = LevelSnapshot{Price: int64(100 + p), Qty: int64(1 + rng.Intn(50))}
	}
	return out
}

// The decomposition guarantee: replaying the inferred events against a
// clone of the prior state lands level-equal on the new snapshot.
func TestDecomposeRoundTrip(t *testing.T) {
	for _, side := range []Side{Ask, Bid} {
		rng := rand.New(rand.NewSource(7))
		h := NewHalfBook(side)
		ids := &counter{}
		for step := 0; step < 500; step++ {
			next := randSide(rng, side)
			prior := h.Clone()

			events := h.DecomposedOrdersWithUpdate(next, ids)

			if !h.EqSnapshot(next) {
				t.Fatalf("%v step %d: side diverged from snapshot %v", side, step, next)
			}
			for _, ev := range events {
				prior.Apply(ev)
			}
			if !prior.EqLevel(h) {
				t.Fatalf("%v step %d: replay of %d events diverged", side, step, len(events))
			}
			if !h.CheckValidityQuantity() {
				t.Fatalf("%v step %d: invariants broken", side, step)
			}
		}
	}
}

// Same feed, same id source: byte-identical event streams.
func TestDecomposeDeterminism(t *testing.T) {
	run := func() [][]OrderEvent {
		rng := rand.New(rand.NewSource(11))
		h := NewHalfBook(Ask)
		ids := &counter{}
		var all [][]OrderEvent
		for step := 0; step < 100; step++ {
			all = append(all, h.DecomposedOrdersWithUpdate(randSide(rng, Ask), ids))
		}
		return all
	}
	a, b := run(), run()
	for i := range a {
		if len(a[i]) != len(b[i]) {
			t.Fatalf("step %d: %d vs %d events", i, len(a[i]), len(b[i]))
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("step %d event %d: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}
