package orderbook

import (
	"fmt"
	"strings"

	"tachyon/infra/memory"
)

// OrderBook pairs the two sides of one (isin, venue) instrument.
// It is single-writer and deterministic: created once at session start,
// mutated by exactly one owning goroutine for the whole session.
type OrderBook struct {
	Isin  string
	Venue string

	Asks *HalfBook
	Bids *HalfBook

	LastUpdate     int64 // timestamp of the last applied snapshot
	LastTradePrice int64
	LastTradeQty   int64

	levelCut int

	pool *memory.Pool[Order]
	ring *memory.RetireRing
}

func NewOrderBook(isin, venue string) *OrderBook {
	return &OrderBook{
		Isin:  isin,
		Venue: venue,
		Asks:  NewHalfBook(Ask),
		Bids:  NewHalfBook(Bid),
	}
}

// UseRecycler routes record allocation through the pool and retirement
// through the ring, so the epoch reclaimer can recycle filled and
// canceled orders once every reader has drained.
func (b *OrderBook) UseRecycler(pool *memory.Pool[Order], ring *memory.RetireRing) {
	b.pool = pool
	b.ring = ring
	alloc := func() *Order {
		return pool.Get()
	}
	retire := func(o *Order) {
		o.RetireEpoch = memory.GlobalEpoch.Load()
		// Ring full: let the GC take it, never stall the hot path.
		_ = ring.Enqueue(o)
	}
	b.Asks.SetRecycler(alloc, retire)
	b.Bids.SetRecycler(alloc, retire)
}

func (b *OrderBook) LevelCut() int { return b.levelCut }

func (b *OrderBook) half(side Side) *HalfBook {
	if side == Bid {
		return b.Bids
	}
	return b.Asks
}

func (b *OrderBook) BestBid() int64 { return b.Bids.BestPrice() }
func (b *OrderBook) BestAsk() int64 { return b.Asks.BestPrice() }

// --- Order-by-order feed dispatch ---

// AddLimitOrder rests an order without matching (pure book-building
// feed variant).
func (b *OrderBook) AddLimitOrder(cmd LimitOrder) *Order {
	return b.half(cmd.Side).AddLimitOrder(cmd)
}

// CancelOrder tries the ask side first, then the bid side: the feed
// does not say which side an id rests on. ok is false for unknown ids;
// callers warn, never panic.
func (b *OrderBook) CancelOrder(cmd CancelOrder) (*Order, bool) {
	if o, ok := b.Asks.CancelOrder(cmd.ID); ok {
		return o, true
	}
	return b.Bids.CancelOrder(cmd.ID)
}

// ChangePrice re-queues id at newPrice, ask side tried first.
func (b *OrderBook) ChangePrice(id uint64, newPrice int64) bool {
	if b.Asks.ChangePrice(id, newPrice) {
		return true
	}
	return b.Bids.ChangePrice(id, newPrice)
}

func (b *OrderBook) ChangeQuantity(id uint64, newQty int64) bool {
	if b.Asks.ChangeQuantity(id, newQty) {
		return true
	}
	return b.Bids.ChangeQuantity(id, newQty)
}

// Modify applies a full amendment: price move (if any) then quantity.
func (b *OrderBook) Modify(cmd ModifyOrder) bool {
	h := b.Asks
	if _, ok := h.RestingPrice(cmd.ID); !ok {
		h = b.Bids
		if _, ok := h.RestingPrice(cmd.ID); !ok {
			return false
		}
	}
	if price, _ := h.RestingPrice(cmd.ID); price != cmd.NewPrice {
		h.ChangePrice(cmd.ID, cmd.NewPrice)
	}
	return h.ChangeQuantity(cmd.ID, cmd.NewQty)
}

// --- Matching ---

// ProcessLimitOrder matches the incoming order against the opposite
// side while its price crosses, then rests any remainder on its own
// side at its own price. matched is false when no level crossed at all
// (the order rested whole).
func (b *OrderBook) ProcessLimitOrder(cmd LimitOrder) (TradeHistory, int64, bool) {
	opp := b.half(cmd.Side.Opposite())
	hist, remaining, matched := opp.TradeLimitOrder(cmd)
	if !matched {
		b.half(cmd.Side).AddLimitOrder(cmd)
		return nil, cmd.Qty, false
	}
	if remaining > 0 {
		rest := cmd
		rest.Qty = remaining
		b.half(cmd.Side).AddLimitOrder(rest)
	}
	return hist, remaining, true
}

// ProcessMarketOrder matches against the opposite side only; the
// unmatched remainder goes back to the caller and never rests.
func (b *OrderBook) ProcessMarketOrder(cmd MarketOrder) (TradeHistory, int64, bool) {
	return b.half(cmd.Side.Opposite()).TradeMarketOrder(cmd)
}

// --- Snapshot ingestion ---

func (b *OrderBook) validate(s *QuoteSnapshot) error {
	if s.Isin != b.Isin || s.Venue != b.Venue {
		return fmt.Errorf("%w: snapshot (%s, %s), book (%s, %s)",
			ErrBookMismatch, s.Isin, s.Venue, b.Isin, b.Venue)
	}
	return nil
}

func snapshotCut(s *QuoteSnapshot) int {
	if s.LevelCut > 0 {
		return s.LevelCut
	}
	return max(len(s.AskLevels), len(s.BidLevels))
}

// UpdateFromQuoteSnapshot bulk-replaces both sides from the vendor's
// rank-ordered arrays (index 0 = best). Synthetic resident ids come
// from ids.
func (b *OrderBook) UpdateFromQuoteSnapshot(s *QuoteSnapshot, ids IDSource) error {
	if err := b.validate(s); err != nil {
		return err
	}
	b.Asks.ReplaceLevels(s.AskLevels, ids)
	b.Bids.ReplaceLevels(s.BidLevels, ids)
	b.levelCut = snapshotCut(s)
	b.LastUpdate = s.Timestamp
	return nil
}

func (b *OrderBook) UpdateFromTradeQuoteSnapshot(s *TradeQuoteSnapshot, ids IDSource) error {
	if err := b.UpdateFromQuoteSnapshot(&s.QuoteSnapshot, ids); err != nil {
		return err
	}
	b.LastTradePrice = s.TradePrice
	b.LastTradeQty = s.TradeQty
	return nil
}

// DecomposedUpdate is the per-side synthetic event stream produced by
// one snapshot ingestion.
type DecomposedUpdate struct {
	AskEvents []OrderEvent
	BidEvents []OrderEvent
}

// DecomposeFromQuoteSnapshot infers the synthetic order-level events
// that carry the book from its current state to s, applies them, and
// returns them. An input narrower than the cut this book has been
// tracking is a structural fault and changes nothing.
func (b *OrderBook) DecomposeFromQuoteSnapshot(s *QuoteSnapshot, ids IDSource) (DecomposedUpdate, error) {
	if err := b.validate(s); err != nil {
		return DecomposedUpdate{}, err
	}
	cut := snapshotCut(s)
	if b.levelCut > 0 && cut < b.levelCut {
		return DecomposedUpdate{}, fmt.Errorf("%w: snapshot cut %d, tracking %d",
			ErrLevelCutTooNarrow, cut, b.levelCut)
	}
	upd := DecomposedUpdate{
		AskEvents: b.Asks.DecomposedOrdersWithUpdate(s.AskLevels, ids),
		BidEvents: b.Bids.DecomposedOrdersWithUpdate(s.BidLevels, ids),
	}
	b.levelCut = cut
	b.LastUpdate = s.Timestamp
	return upd, nil
}

// --- Debug helpers ---

// CheckValidity is the cross-side debug invariant check. Production
// paths stay fail-open and never call it.
func (b *OrderBook) CheckValidity() bool {
	if !b.Asks.CheckValidityQuantity() || !b.Bids.CheckValidityQuantity() {
		return false
	}
	dup := false
	b.Asks.ForEachBestFirst(func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if _, ok := b.Bids.RestingPrice(o.ID); ok {
				dup = true
				return false
			}
		}
		return true
	})
	if dup {
		return false
	}
	bb, ba := b.BestBid(), b.BestAsk()
	if bb != NoPrice && ba != NoPrice && bb >= ba {
		return false
	}
	return true
}

// String renders a human-readable table. Debug only; the format is not
// stable and not machine-parseable.
func (b *OrderBook) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "OrderBook %s@%s (cut=%d)\n", b.Isin, b.Venue, b.levelCut)
	asks := b.Asks.ToLevelSnapshot()
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "  ASK %8d x %-8d (%d)\n", asks[i].Price, asks[i].Qty, asks[i].OrderCount)
	}
	sb.WriteString("  --------\n")
	for _, ls := range b.Bids.ToLevelSnapshot() {
		fmt.Fprintf(&sb, "  BID %8d x %-8d (%d)\n", ls.Price, ls.Qty, ls.OrderCount)
	}
	return sb.String()
}
