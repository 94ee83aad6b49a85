package orderbook

// NoPrice is the cached-best sentinel for an empty side.
const NoPrice int64 = -1

// HalfBook is one side of a book: price levels ordered by priority
// (asks lowest-first, bids highest-first), an order-id index for O(1)
// location, and a cached best price.
//
// HalfBook is single-writer. It never locks and it never panics on
// missing state; unknown ids are reported to the caller instead.
type HalfBook struct {
	side   Side
	levels *RBTree
	index  map[uint64]int64 // order id -> resting price
	best   int64

	alloc  func() *Order
	retire func(*Order)
}

func NewHalfBook(side Side) *HalfBook {
	return &HalfBook{
		side:   side,
		levels: NewRBTree(),
		index:  make(map[uint64]int64, 1024),
		best:   NoPrice,
		alloc:  func() *Order { return new(Order) },
		retire: func(*Order) {},
	}
}

func (h *HalfBook) Side() Side       { return h.side }
func (h *HalfBook) BestPrice() int64 { return h.best }
func (h *HalfBook) Depth() int       { return h.levels.Size() }
func (h *HalfBook) OrderCount() int  { return len(h.index) }

// RestingPrice reports where id currently rests.
func (h *HalfBook) RestingPrice(id uint64) (int64, bool) {
	price, ok := h.index[id]
	return price, ok
}

// SetRecycler installs the record allocator and retire hook. Retired
// records must stay readable until every reader has left the epoch they
// were retired in.
func (h *HalfBook) SetRecycler(alloc func() *Order, retire func(*Order)) {
	if alloc != nil {
		h.alloc = alloc
	}
	if retire != nil {
		h.retire = retire
	}
}

// ForEachBestFirst walks levels in priority order.
func (h *HalfBook) ForEachBestFirst(fn func(*PriceLevel) bool) {
	if h.side == Ask {
		h.levels.ForEachAscending(fn)
	} else {
		h.levels.ForEachDescending(fn)
	}
}

// AddLimitOrder rests a new order at the tail of its level's FIFO,
// creating the level if absent. Returns the resident record.
func (h *HalfBook) AddLimitOrder(cmd LimitOrder) *Order {
	o := h.alloc()
	*o = Order{ID: cmd.ID, Price: cmd.Price, Qty: cmd.Qty, Side: h.side, Status: Active}
	h.addResident(o)
	return o
}

func (h *HalfBook) addResident(o *Order) {
	h.levels.UpsertLevel(o.Price).Enqueue(o)
	h.index[o.ID] = o.Price
	if h.best == NoPrice || h.improves(o.Price) {
		h.best = o.Price
	}
}

func (h *HalfBook) improves(price int64) bool {
	if h.side == Ask {
		return price < h.best
	}
	return price > h.best
}

// CancelOrder removes id from its level. The removed record is retired
// and returned; ok is false when the id is unknown, and the caller
// decides whether that is worth a warning.
func (h *HalfBook) CancelOrder(id uint64) (*Order, bool) {
	price, ok := h.index[id]
	if !ok {
		return nil, false
	}
	lvl := h.levels.FindLevel(price)
	if lvl == nil {
		return nil, false
	}
	o := lvl.Find(id)
	if o == nil {
		return nil, false
	}
	lvl.Unlink(o)
	delete(h.index, id)
	if lvl.Empty() {
		h.levels.DeleteLevel(lvl.Price)
		h.rescanBest()
	}
	o.Status = Inactive
	h.retire(o)
	return o, true
}

// ChangePrice moves id to newPrice with unchanged quantity. The order
// re-queues at the tail of the new level, losing time priority, which
// is standard price-time-priority treatment of a price amendment.
func (h *HalfBook) ChangePrice(id uint64, newPrice int64) bool {
	price, ok := h.index[id]
	if !ok {
		return false
	}
	lvl := h.levels.FindLevel(price)
	if lvl == nil {
		return false
	}
	o := lvl.Find(id)
	if o == nil {
		return false
	}
	lvl.Unlink(o)
	if lvl.Empty() && lvl.Price != newPrice {
		h.levels.DeleteLevel(lvl.Price)
	}
	o.Price = newPrice
	h.levels.UpsertLevel(newPrice).Enqueue(o)
	h.index[id] = newPrice
	h.rescanBest()
	return true
}

// ChangeQuantity amends id's quantity. A decrease keeps time priority
// (in-place reduce); an increase re-queues at the tail of the level.
// newQty <= 0 removes the order outright.
func (h *HalfBook) ChangeQuantity(id uint64, newQty int64) bool {
	price, ok := h.index[id]
	if !ok {
		return false
	}
	lvl := h.levels.FindLevel(price)
	if lvl == nil {
		return false
	}
	o := lvl.Find(id)
	if o == nil {
		return false
	}
	switch {
	case newQty <= 0:
		_, ok := h.CancelOrder(id)
		return ok
	case newQty < o.Qty:
		lvl.Reduce(o, o.Qty-newQty)
	case newQty > o.Qty:
		lvl.Unlink(o)
		o.Qty = newQty
		lvl.Enqueue(o)
	}
	return true
}

// TradeLimitOrder sweeps this side with an incoming order from the
// opposite side, best level first, FIFO within each level, while the
// incoming price still crosses. One Fill is emitted per consumed or
// partially consumed resident. ok is false when no level crossed at
// all; the caller must then rest the order unmodified.
func (h *HalfBook) TradeLimitOrder(in LimitOrder) (TradeHistory, int64, bool) {
	if h.best == NoPrice || !h.crossesAt(in.Price, h.best) {
		return nil, in.Qty, false
	}
	hist, remaining := h.sweep(in.Price, in.Qty, true)
	return hist, remaining, true
}

// TradeMarketOrder is the unbounded sweep. remaining > 0 means the side
// ran dry; market orders never rest.
func (h *HalfBook) TradeMarketOrder(in MarketOrder) (TradeHistory, int64, bool) {
	if h.best == NoPrice {
		return nil, in.Qty, false
	}
	hist, remaining := h.sweep(0, in.Qty, false)
	return hist, remaining, true
}

func (h *HalfBook) crossesAt(incoming, level int64) bool {
	if h.side == Ask {
		return incoming >= level
	}
	return incoming <= level
}

func (h *HalfBook) sweep(limit, qty int64, bounded bool) (TradeHistory, int64) {
	hist := make(TradeHistory, 0, 4)
	remaining := qty
	for remaining > 0 {
		lvl := h.bestLevel()
		if lvl == nil {
			break
		}
		if bounded && !h.crossesAt(limit, lvl.Price) {
			break
		}
		for remaining > 0 && !lvl.Empty() {
			maker := lvl.Head()
			traded := min(remaining, maker.Qty)
			remaining -= traded
			hist = append(hist, Fill{Price: lvl.Price, Qty: traded, MakerID: maker.ID})
			if traded == maker.Qty {
				lvl.PopHead()
				delete(h.index, maker.ID)
				maker.Status = Inactive
				h.retire(maker)
			} else {
				lvl.Reduce(maker, traded)
			}
		}
		if lvl.Empty() {
			h.levels.DeleteLevel(lvl.Price)
			h.rescanBest()
		}
	}
	return hist, remaining
}

func (h *HalfBook) bestLevel() *PriceLevel {
	if h.side == Ask {
		return h.levels.MinLevel()
	}
	return h.levels.MaxLevel()
}

func (h *HalfBook) rescanBest() {
	lvl := h.bestLevel()
	if lvl == nil {
		h.best = NoPrice
	} else {
		h.best = lvl.Price
	}
}

// ToLevelSnapshot emits the aggregate view, best rank first. Used for
// vendor reconciliation and as decomposition input.
func (h *HalfBook) ToLevelSnapshot() []LevelSnapshot {
	out := make([]LevelSnapshot, 0, h.levels.Size())
	h.ForEachBestFirst(func(lvl *PriceLevel) bool {
		out = append(out, LevelSnapshot{
			Price:      lvl.Price,
			Qty:        lvl.TotalQty,
			OrderCount: lvl.OrderCount,
		})
		return true
	})
	return out
}

// ReplaceLevels drops every resident and rebuilds the side from a
// rank-ordered vendor snapshot. When a level publishes an order count
// its quantity is split across that many synthetic residents (remainder
// on the last), otherwise one resident carries the whole level.
func (h *HalfBook) ReplaceLevels(levels []LevelSnapshot, ids IDSource) {
	h.clear()
	for _, ls := range levels {
		if ls.Qty <= 0 {
			continue // padding rank
		}
		n := ls.OrderCount
		if n <= 0 {
			n = 1
		}
		per := ls.Qty / int64(n)
		if per <= 0 {
			n = 1
			per = ls.Qty
		}
		rest := ls.Qty
		for i := 0; i < n; i++ {
			q := per
			if i == n-1 {
				q = rest
			}
			o := h.alloc()
			*o = Order{ID: ids.Next(), Price: ls.Price, Qty: q, Side: h.side, Status: Active, Synthetic: true}
			h.addResident(o)
			rest -= q
		}
	}
}

func (h *HalfBook) clear() {
	h.levels.ForEachAscending(func(lvl *PriceLevel) bool {
		for {
			o := lvl.PopHead()
			if o == nil {
				break
			}
			o.Status = Inactive
			h.retire(o)
		}
		return true
	})
	h.levels = NewRBTree()
	h.index = make(map[uint64]int64, 1024)
	h.best = NoPrice
}

// Apply replays one synthetic event against this side. Used by
// decomposition itself and by replay harnesses on cloned books.
func (h *HalfBook) Apply(ev OrderEvent) {
	switch ev.Kind {
	case EventLimit:
		o := h.alloc()
		*o = Order{ID: ev.ID, Price: ev.Price, Qty: ev.Qty, Side: h.side, Status: Active, Synthetic: true}
		h.addResident(o)
	case EventModify:
		if price, ok := h.index[ev.ID]; ok && price != ev.Price {
			h.ChangePrice(ev.ID, ev.Price)
		}
		h.ChangeQuantity(ev.ID, ev.Qty)
	case EventRemoveAny:
		h.CancelOrder(ev.ID)
	}
}

// Clone deep-copies the side with fresh, unpooled records. FIFO order
// and ids are preserved; the clone shares nothing with the original.
func (h *HalfBook) Clone() *HalfBook {
	c := NewHalfBook(h.side)
	h.ForEachBestFirst(func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			n := new(Order)
			*n = Order{ID: o.ID, Price: o.Price, Qty: o.Qty, Side: o.Side, Status: o.Status, Synthetic: o.Synthetic}
			c.addResident(n)
		}
		return true
	})
	return c
}

// EqLevel reports level-equality: the same set of (price, aggregate
// quantity) pairs. It deliberately ignores order identity, which is all
// snapshot decomposition can promise.
func (h *HalfBook) EqLevel(other *HalfBook) bool {
	a := h.ToLevelSnapshot()
	b := other.ToLevelSnapshot()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Price != b[i].Price || a[i].Qty != b[i].Qty {
			return false
		}
	}
	return true
}

// EqSnapshot is EqLevel against a vendor snapshot array (padding ranks
// with zero quantity are skipped).
func (h *HalfBook) EqSnapshot(levels []LevelSnapshot) bool {
	own := h.ToLevelSnapshot()
	i := 0
	for _, ls := range levels {
		if ls.Qty <= 0 {
			continue
		}
		if i >= len(own) || own[i].Price != ls.Price || own[i].Qty != ls.Qty {
			return false
		}
		i++
	}
	return i == len(own)
}

// CheckValidityQuantity is the debug invariant check: cached aggregates
// match resident sums, no dangling index entries, no empty residual
// levels, cached best equals the first priority level. Production paths
// never call this; test and replay harnesses do.
func (h *HalfBook) CheckValidityQuantity() bool {
	ok := true
	residents := 0
	h.levels.ForEachAscending(func(lvl *PriceLevel) bool {
		if lvl.Empty() {
			ok = false
			return false
		}
		var sum int64
		count := 0
		for o := lvl.Head(); o != nil; o = o.Next() {
			sum += o.Qty
			count++
			if p, found := h.index[o.ID]; !found || p != lvl.Price {
				ok = false
			}
		}
		if sum != lvl.TotalQty || count != lvl.OrderCount {
			ok = false
		}
		residents += count
		return ok
	})
	if residents != len(h.index) {
		ok = false
	}
	if lvl := h.bestLevel(); lvl == nil {
		if h.best != NoPrice {
			ok = false
		}
	} else if h.best != lvl.Price {
		ok = false
	}
	return ok
}
