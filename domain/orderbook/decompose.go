package orderbook

// DecomposedOrdersWithUpdate infers a self-consistent sequence of
// order-level events that transforms this side's current state into the
// newly observed vendor snapshot, then applies it. The vendor publishes
// only aggregates, so the events are synthetic: replaying them against
// a clone of the prior state is guaranteed level-equal to the new
// snapshot, never order-identity equal.
//
// Per price in the union of tracked levels and snapshot entries:
//   - aggregate unchanged: nothing.
//   - aggregate grew or level is new: one synthetic LimitOrder sized to
//     the delta, id drawn from ids.
//   - aggregate shrank or level vanished: RemoveAny events against the
//     oldest synthetic residents, plus at most one quantity-reduction
//     Modify, together covering the delta exactly.
func (h *HalfBook) DecomposedOrdersWithUpdate(next []LevelSnapshot, ids IDSource) []OrderEvent {
	events := make([]OrderEvent, 0, len(next))
	seen := make(map[int64]struct{}, len(next))

	for rank, ls := range next {
		if ls.Qty <= 0 {
			continue // padding rank
		}
		seen[ls.Price] = struct{}{}
		var cur int64
		if lvl := h.levels.FindLevel(ls.Price); lvl != nil {
			cur = lvl.TotalQty
		}
		switch {
		case ls.Qty > cur:
			events = append(events, OrderEvent{
				Kind:       EventLimit,
				ID:         ids.Next(),
				Price:      ls.Price,
				Qty:        ls.Qty - cur,
				Side:       h.side,
				Rank:       rank,
				LevelPrice: ls.Price,
			})
		case ls.Qty < cur:
			events = h.appendReduceEvents(events, ls.Price, cur-ls.Qty, rank)
		}
	}

	// Tracked prices that left the published window are fully removed;
	// the book only ever mirrors the vendor's truncated view.
	var gone []*PriceLevel
	h.ForEachBestFirst(func(lvl *PriceLevel) bool {
		if _, ok := seen[lvl.Price]; !ok {
			gone = append(gone, lvl)
		}
		return true
	})
	for _, lvl := range gone {
		events = h.appendReduceEvents(events, lvl.Price, lvl.TotalQty, -1)
	}

	for _, ev := range events {
		h.Apply(ev)
	}
	return events
}

// appendReduceEvents covers delta at price with full removals of the
// oldest residents and, when the delta lands inside a resident, one
// in-place reduction. Below-aggregate granularity is unknowable, so the
// delta collapses into as few events as the walk allows.
func (h *HalfBook) appendReduceEvents(events []OrderEvent, price, delta int64, rank int) []OrderEvent {
	lvl := h.levels.FindLevel(price)
	if lvl == nil {
		return events
	}
	for o := lvl.Head(); o != nil && delta > 0; o = o.Next() {
		if o.Qty <= delta {
			events = append(events, OrderEvent{
				Kind:       EventRemoveAny,
				ID:         o.ID,
				Price:      price,
				Qty:        o.Qty,
				Side:       h.side,
				Rank:       rank,
				LevelPrice: price,
			})
			delta -= o.Qty
		} else {
			events = append(events, OrderEvent{
				Kind:       EventModify,
				ID:         o.ID,
				Price:      price,
				Qty:        o.Qty - delta,
				Side:       h.side,
				Rank:       rank,
				LevelPrice: price,
			})
			delta = 0
		}
	}
	return events
}
