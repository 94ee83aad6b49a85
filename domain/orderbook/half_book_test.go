package orderbook

import "testing"

// counter is the deterministic id source used across the tests.
type counter struct{ n uint64 }

func (c *counter) Next() uint64 {
	c.n++
	return c.n
}

func seedAsks(qtys map[int64]int64) *HalfBook {
	h := NewHalfBook(Ask)
	ids := &counter{}
	for price, qty := range qtys {
		h.AddLimitOrder(LimitOrder{ID: ids.Next() + 1000, Price: price, Qty: qty, Side: Ask})
	}
	return h
}

func TestBestPriceTracking(t *testing.T) {
	h := NewHalfBook(Ask)
	if h.BestPrice() != NoPrice {
		t.Fatal("empty side should report the no-price sentinel")
	}
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 102, Qty: 1, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 2, Price: 100, Qty: 1, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 3, Price: 101, Qty: 1, Side: Ask})
	if h.BestPrice() != 100 {
		t.Errorf("ask best = %d, want 100", h.BestPrice())
	}

	b := NewHalfBook(Bid)
	b.AddLimitOrder(LimitOrder{ID: 1, Price: 97, Qty: 1, Side: Bid})
	b.AddLimitOrder(LimitOrder{ID: 2, Price: 99, Qty: 1, Side: Bid})
	if b.BestPrice() != 99 {
		t.Errorf("bid best = %d, want 99", b.BestPrice())
	}
}

func TestCancelRescansBest(t *testing.T) {
	h := seedAsks(map[int64]int64{100: 1, 101: 2})
	id := h.levels.FindLevel(100).Head().ID
	if _, ok := h.CancelOrder(id); !ok {
		t.Fatal("cancel of resting order should succeed")
	}
	if h.BestPrice() != 101 {
		t.Errorf("best after cancel = %d, want 101", h.BestPrice())
	}
	if h.Depth() != 1 || h.OrderCount() != 1 {
		t.Errorf("depth=%d orders=%d, want 1/1", h.Depth(), h.OrderCount())
	}
	if _, ok := h.CancelOrder(9999); ok {
		t.Error("cancel of unknown id should report false")
	}
}

func TestChangePriceLosesTimePriority(t *testing.T) {
	h := NewHalfBook(Ask)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 100, Qty: 1, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 2, Price: 100, Qty: 1, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 3, Price: 101, Qty: 1, Side: Ask})

	if !h.ChangePrice(3, 100) {
		t.Fatal("change price of resting order should succeed")
	}
	lvl := h.levels.FindLevel(100)
	want := []uint64{1, 2, 3}
	i := 0
	for o := lvl.Head(); o != nil; o = o.Next() {
		if o.ID != want[i] {
			t.Fatalf("position %d holds id %d, want %d", i, o.ID, want[i])
		}
		i++
	}
	if h.levels.FindLevel(101) != nil {
		t.Error("emptied source level should be deleted")
	}
	if price, _ := h.RestingPrice(3); price != 100 {
		t.Errorf("index reports price %d, want 100", price)
	}
}

func TestChangeQuantity(t *testing.T) {
	h := NewHalfBook(Bid)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 99, Qty: 10, Side: Bid})
	h.AddLimitOrder(LimitOrder{ID: 2, Price: 99, Qty: 5, Side: Bid})

	// Decrease keeps the queue position.
	if !h.ChangeQuantity(1, 4) {
		t.Fatal("decrease should succeed")
	}
	lvl := h.levels.FindLevel(99)
	if lvl.Head().ID != 1 || lvl.Head().Qty != 4 {
		t.Error("decrease should reduce in place at the queue head")
	}

	// Increase re-queues at the tail.
	if !h.ChangeQuantity(1, 8) {
		t.Fatal("increase should succeed")
	}
	if lvl.Head().ID != 2 {
		t.Error("increase should move the order behind order 2")
	}
	if lvl.TotalQty != 13 {
		t.Errorf("level total = %d, want 13", lvl.TotalQty)
	}

	// Zero removes.
	if !h.ChangeQuantity(1, 0) {
		t.Fatal("zero quantity should cancel")
	}
	if _, ok := h.RestingPrice(1); ok {
		t.Error("order 1 should be gone")
	}
	if !h.CheckValidityQuantity() {
		t.Error("invariants should hold after amendments")
	}
}

func TestSweepStopsAtLimit(t *testing.T) {
	h := NewHalfBook(Ask)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 100, Qty: 3, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 2, Price: 101, Qty: 2, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 3, Price: 102, Qty: 1, Side: Ask})

	hist, remaining, matched := h.TradeLimitOrder(LimitOrder{ID: 10, Price: 101, Qty: 10, Side: Bid})
	if !matched {
		t.Fatal("incoming bid at 101 should cross")
	}
	if remaining != 5 {
		t.Errorf("remaining = %d, want 5", remaining)
	}
	want := TradeHistory{{Price: 100, Qty: 3, MakerID: 1}, {Price: 101, Qty: 2, MakerID: 2}}
	if len(hist) != len(want) {
		t.Fatalf("fills = %v, want %v", hist, want)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("fill %d = %v, want %v", i, hist[i], want[i])
		}
	}
	if h.BestPrice() != 102 {
		t.Errorf("best after sweep = %d, want 102", h.BestPrice())
	}
}

func TestSweepFIFOWithinLevel(t *testing.T) {
	h := NewHalfBook(Ask)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 100, Qty: 2, Side: Ask})
	h.AddLimitOrder(LimitOrder{ID: 2, Price: 100, Qty: 2, Side: Ask})

	hist, _, _ := h.TradeLimitOrder(LimitOrder{ID: 10, Price: 100, Qty: 3, Side: Bid})
	if len(hist) != 2 || hist[0].MakerID != 1 || hist[1].MakerID != 2 {
		t.Fatalf("fills = %v, want makers 1 then 2", hist)
	}
	if hist[1].Qty != 1 {
		t.Errorf("second fill qty = %d, want 1", hist[1].Qty)
	}
	lvl := h.levels.FindLevel(100)
	if lvl.Head().ID != 2 || lvl.Head().Qty != 1 {
		t.Error("partially consumed maker should remain at the head")
	}
}

func TestMarketSweepRunsDry(t *testing.T) {
	h := NewHalfBook(Bid)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 99, Qty: 2, Side: Bid})

	hist, remaining, matched := h.TradeMarketOrder(MarketOrder{ID: 10, Qty: 5, Side: Ask})
	if !matched || remaining != 3 {
		t.Fatalf("matched=%v remaining=%d, want true/3", matched, remaining)
	}
	if hist.TotalQty() != 2 {
		t.Errorf("filled = %d, want 2", hist.TotalQty())
	}
	if h.BestPrice() != NoPrice {
		t.Error("drained side should report the sentinel")
	}

	_, remaining, matched = h.TradeMarketOrder(MarketOrder{ID: 11, Qty: 1, Side: Ask})
	if matched || remaining != 1 {
		t.Error("market order against an empty side should not match")
	}
}

func TestReplaceLevelsSplitsByOrderCount(t *testing.T) {
	h := NewHalfBook(Ask)
	ids := &counter{}
	h.ReplaceLevels([]LevelSnapshot{
		{Price: 100, Qty: 10, OrderCount: 3},
		{Price: 101, Qty: 5},
		{Price: 0, Qty: 0}, // padding rank
	}, ids)

	lvl := h.levels.FindLevel(100)
	if lvl.OrderCount != 3 || lvl.TotalQty != 10 {
		t.Fatalf("level 100 = %dx%d, want 3 residents of 10", lvl.OrderCount, lvl.TotalQty)
	}
	qtys := []int64{}
	for o := lvl.Head(); o != nil; o = o.Next() {
		if !o.Synthetic {
			t.Error("rebuilt residents should be synthetic")
		}
		qtys = append(qtys, o.Qty)
	}
	if qtys[0] != 3 || qtys[1] != 3 || qtys[2] != 4 {
		t.Errorf("split = %v, want [3 3 4]", qtys)
	}
	if h.Depth() != 2 {
		t.Errorf("depth = %d, want 2 (padding skipped)", h.Depth())
	}
	if !h.CheckValidityQuantity() {
		t.Error("invariants should hold after rebuild")
	}
}

func TestCloneSharesNothing(t *testing.T) {
	h := NewHalfBook(Bid)
	h.AddLimitOrder(LimitOrder{ID: 1, Price: 99, Qty: 5, Side: Bid})
	c := h.Clone()
	if !c.EqLevel(h) {
		t.Fatal("clone should be level-equal")
	}
	c.ChangeQuantity(1, 1)
	if lvl := h.levels.FindLevel(99); lvl.TotalQty != 5 {
		t.Error("mutating the clone must not touch the original")
	}
}
