package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tachyon/domain/orderbook"
	"tachyon/infra/bookstore"
	"tachyon/infra/fanout"
	"tachyon/infra/feedlog"
	"tachyon/infra/kafka"
	"tachyon/infra/memory"
	"tachyon/infra/outbox"
	"tachyon/infra/sequence"
)

// Update is the per-snapshot digest published to subscribers after a
// feed record has been applied to a book.
type Update struct {
	Isin      string                    `json:"isin"`
	Venue     string                    `json:"venue"`
	Seq       uint64                    `json:"seq"`
	Timestamp int64                     `json:"timestamp"`
	BestBid   int64                     `json:"best_bid"`
	BestAsk   int64                     `json:"best_ask"`
	AskLevels []orderbook.LevelSnapshot `json:"ask_levels"`
	BidLevels []orderbook.LevelSnapshot `json:"bid_levels"`
	AskEvents []orderbook.OrderEvent    `json:"ask_events,omitempty"`
	BidEvents []orderbook.OrderEvent    `json:"bid_events,omitempty"`
	Trades    orderbook.TradeHistory    `json:"trades,omitempty"`
}

// RenderTable formats the digest as a human-readable table, asks on
// top. Debug only; the format is not stable.
func (u *Update) RenderTable() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "OrderBook %s@%s (seq=%d)\n", u.Isin, u.Venue, u.Seq)
	for i := len(u.AskLevels) - 1; i >= 0; i-- {
		ls := u.AskLevels[i]
		fmt.Fprintf(&sb, "  ASK %8d x %-8d (%d)\n", ls.Price, ls.Qty, ls.OrderCount)
	}
	sb.WriteString("  --------\n")
	for _, ls := range u.BidLevels {
		fmt.Fprintf(&sb, "  BID %8d x %-8d (%d)\n", ls.Price, ls.Qty, ls.OrderCount)
	}
	return sb.String()
}

// Deps carries the optional infrastructure a BookService can run with.
// Every field may be nil; the service degrades to an in-memory engine.
type Deps struct {
	FeedLog *feedlog.Log
	Store   *bookstore.Store
	Trades  *kafka.Producer
	Outbox  *outbox.Outbox
}

// BookService owns every order book for a venue. All mutations go
// through it on a single writer goroutine; readers attach through
// reader epochs and the fanout slot.
type BookService struct {
	log   *zap.Logger
	venue string

	mu    sync.Mutex
	books map[string]*orderbook.OrderBook

	pool    *memory.Pool[orderbook.Order]
	ring    *memory.RetireRing
	reclaim *memory.Reclaimer

	rmu     sync.Mutex
	readers []*memory.ReaderEpoch

	ids  *sequence.Sequencer
	slot *fanout.Slot[Update]

	deps   Deps
	latest sync.Map // isin -> *Update
}

func New(venue string, ringSize uint64, deps Deps, log *zap.Logger) *BookService {
	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })
	ring := memory.NewRetireRing(ringSize)
	return &BookService{
		log:     log,
		venue:   venue,
		books:   make(map[string]*orderbook.OrderBook),
		pool:    pool,
		ring:    ring,
		reclaim: memory.NewReclaimer(ring, pool),
		ids:     sequence.New(1),
		slot:    fanout.NewSlot[Update](),
		deps:    deps,
	}
}

// Book returns the live book for isin, creating it on first use.
func (s *BookService) Book(isin string) *orderbook.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[isin]
	if !ok {
		b = orderbook.NewOrderBook(isin, s.venue)
		b.UseRecycler(s.pool, s.ring)
		s.books[isin] = b
	}
	return b
}

// Isins lists every instrument the service has seen.
func (s *BookService) Isins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.books))
	for isin := range s.books {
		out = append(out, isin)
	}
	return out
}

// IngestQuote applies one vendor quote snapshot: decompose it against
// the tracked book, journal the raw record, and publish the digest.
func (s *BookService) IngestQuote(ctx context.Context, q *orderbook.QuoteSnapshot) (*Update, error) {
	return s.ingestQuote(ctx, q, true)
}

// IngestTradeQuote applies a trade-bearing snapshot. The quote part is
// decomposed like any other; the trade leg is recorded on the book and
// forwarded to the trade stream.
func (s *BookService) IngestTradeQuote(ctx context.Context, tq *orderbook.TradeQuoteSnapshot) (*Update, error) {
	return s.ingestTradeQuote(ctx, tq, true)
}

func (s *BookService) ingestQuote(ctx context.Context, q *orderbook.QuoteSnapshot, live bool) (*Update, error) {
	book := s.Book(q.Isin)
	du, err := book.DecomposeFromQuoteSnapshot(q, s.ids)
	if err != nil {
		s.log.Warn("quote rejected",
			zap.String("isin", q.Isin),
			zap.Error(err))
		return nil, err
	}
	if live && s.deps.FeedLog != nil {
		data, err := feedlog.EncodeQuote(q)
		if err != nil {
			return nil, fmt.Errorf("encode quote: %w", err)
		}
		if err := s.deps.FeedLog.Append(&feedlog.Record{
			Type: feedlog.RecordQuote,
			Time: q.Timestamp,
			Data: data,
		}); err != nil {
			return nil, fmt.Errorf("journal quote: %w", err)
		}
	}
	return s.publish(ctx, book, &du, nil, live), nil
}

func (s *BookService) ingestTradeQuote(ctx context.Context, tq *orderbook.TradeQuoteSnapshot, live bool) (*Update, error) {
	book := s.Book(tq.Isin)
	du, err := book.DecomposeFromQuoteSnapshot(&tq.QuoteSnapshot, s.ids)
	if err != nil {
		s.log.Warn("trade quote rejected",
			zap.String("isin", tq.Isin),
			zap.Error(err))
		return nil, err
	}
	book.LastTradePrice = tq.TradePrice
	book.LastTradeQty = tq.TradeQty
	if live && s.deps.FeedLog != nil {
		data, err := feedlog.EncodeTradeQuote(tq)
		if err != nil {
			return nil, fmt.Errorf("encode trade quote: %w", err)
		}
		if err := s.deps.FeedLog.Append(&feedlog.Record{
			Type: feedlog.RecordTradeQuote,
			Time: tq.Timestamp,
			Data: data,
		}); err != nil {
			return nil, fmt.Errorf("journal trade quote: %w", err)
		}
	}
	trades := orderbook.TradeHistory{{Price: tq.TradePrice, Qty: tq.TradeQty}}
	return s.publish(ctx, book, &du, trades, live), nil
}

func (s *BookService) publish(ctx context.Context, book *orderbook.OrderBook, du *orderbook.DecomposedUpdate, trades orderbook.TradeHistory, live bool) *Update {
	u := &Update{
		Isin:      book.Isin,
		Venue:     book.Venue,
		Timestamp: book.LastUpdate,
		BestBid:   book.BestBid(),
		BestAsk:   book.BestAsk(),
		AskLevels: book.Asks.ToLevelSnapshot(),
		BidLevels: book.Bids.ToLevelSnapshot(),
		Trades:    trades,
	}
	if du != nil {
		u.AskEvents = du.AskEvents
		u.BidEvents = du.BidEvents
	}
	if !live {
		s.latest.Store(u.Isin, u)
		return u
	}
	u.Seq = s.slot.Seq() + 1
	s.latest.Store(u.Isin, u)
	s.slot.Publish(u)

	if s.deps.Outbox != nil {
		if payload, err := json.Marshal(u); err == nil {
			s.deps.Outbox.Put(u.Seq, u.Isin, payload)
		}
	}
	if s.deps.Trades != nil && len(trades) > 0 {
		payload, err := json.Marshal(struct {
			Isin      string                 `json:"isin"`
			Venue     string                 `json:"venue"`
			Timestamp int64                  `json:"timestamp"`
			Trades    orderbook.TradeHistory `json:"trades"`
		}{u.Isin, u.Venue, u.Timestamp, trades})
		if err == nil {
			if err := s.deps.Trades.Send(ctx, []byte(u.Isin), payload); err != nil {
				s.log.Warn("trade publish failed",
					zap.String("isin", u.Isin),
					zap.Error(err))
			}
		}
	}
	return u
}

// PlaceLimit runs a limit order from the order feed against the book.
// Crossing quantity fills immediately, the remainder rests.
func (s *BookService) PlaceLimit(ctx context.Context, isin string, cmd orderbook.LimitOrder) (orderbook.TradeHistory, int64, bool) {
	book := s.Book(isin)
	trades, remaining, ok := book.ProcessLimitOrder(cmd)
	s.afterOrder(ctx, book, trades)
	return trades, remaining, ok
}

// PlaceMarket runs a market order. Unfilled quantity is discarded.
func (s *BookService) PlaceMarket(ctx context.Context, isin string, cmd orderbook.MarketOrder) (orderbook.TradeHistory, int64, bool) {
	book := s.Book(isin)
	trades, remaining, ok := book.ProcessMarketOrder(cmd)
	s.afterOrder(ctx, book, trades)
	return trades, remaining, ok
}

// Cancel removes a resting order. Unknown ids are a no-op.
func (s *BookService) Cancel(ctx context.Context, isin string, cmd orderbook.CancelOrder) bool {
	book := s.Book(isin)
	_, ok := book.CancelOrder(cmd)
	if !ok {
		s.log.Warn("cancel for unknown order",
			zap.String("isin", isin),
			zap.Uint64("id", cmd.ID))
		return false
	}
	s.afterOrder(ctx, book, nil)
	return true
}

// Modify reprices or resizes a resting order. Unknown ids are a no-op.
func (s *BookService) Modify(ctx context.Context, isin string, cmd orderbook.ModifyOrder) bool {
	book := s.Book(isin)
	ok := book.Modify(cmd)
	if !ok {
		s.log.Warn("modify for unknown order",
			zap.String("isin", isin),
			zap.Uint64("id", cmd.ID))
		return false
	}
	s.afterOrder(ctx, book, nil)
	return true
}

func (s *BookService) afterOrder(ctx context.Context, book *orderbook.OrderBook, trades orderbook.TradeHistory) {
	s.publish(ctx, book, nil, trades, true)
}

// SubscribeUpdates attaches an acknowledged fanout reader. Must be
// called before the first publish.
func (s *BookService) SubscribeUpdates() *fanout.Reader[Update] {
	return s.slot.Subscribe()
}

// ObserveUpdates attaches a best-effort reader that may join at any
// time. Its progress does not gate the writer.
func (s *BookService) ObserveUpdates() *fanout.Reader[Update] {
	return s.slot.Observe()
}

// Latest returns the most recent digest for isin.
func (s *BookService) Latest(isin string) (*Update, bool) {
	v, ok := s.latest.Load(isin)
	if !ok {
		return nil, false
	}
	return v.(*Update), true
}

// NewReaderEpoch registers a reader with the reclaimer. Concurrent
// walkers pin the epoch around each traversal.
func (s *BookService) NewReaderEpoch() *memory.ReaderEpoch {
	r := memory.NewReaderEpoch()
	s.rmu.Lock()
	s.readers = append(s.readers, r)
	s.rmu.Unlock()
	return r
}

// AdvanceEpoch bumps the global epoch and recycles retired orders no
// reader can still observe.
func (s *BookService) AdvanceEpoch() {
	s.rmu.Lock()
	readers := make([]*memory.ReaderEpoch, len(s.readers))
	copy(readers, s.readers)
	s.rmu.Unlock()
	s.reclaim.Advance(readers...)
}

// Replay rebuilds every book from the journal in dir. Replayed records
// are not re-journaled or re-published.
func (s *BookService) Replay(ctx context.Context, dir string) error {
	if s.deps.FeedLog == nil {
		return nil
	}
	start := time.Now()
	var n int
	last, err := feedlog.Replay(dir, feedlog.BinarySerializer{}, func(rec *feedlog.Record) error {
		n++
		switch rec.Type {
		case feedlog.RecordQuote:
			q, err := feedlog.DecodeQuote(rec.Data)
			if err != nil {
				return err
			}
			_, err = s.ingestQuote(ctx, q, false)
			return err
		case feedlog.RecordTradeQuote:
			tq, err := feedlog.DecodeTradeQuote(rec.Data)
			if err != nil {
				return err
			}
			_, err = s.ingestTradeQuote(ctx, tq, false)
			return err
		default:
			return fmt.Errorf("replay: unknown record type %d", rec.Type)
		}
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	s.log.Info("feed log replayed",
		zap.Int("records", n),
		zap.Uint64("last_seq", last),
		zap.Duration("took", time.Since(start)))
	return nil
}

// SnapshotBooks persists the level state of every book to the store.
func (s *BookService) SnapshotBooks() error {
	if s.deps.Store == nil {
		return nil
	}
	var firstErr error
	s.latest.Range(func(_, v any) bool {
		u := v.(*Update)
		bl := &bookstore.BookLevels{
			Isin:  u.Isin,
			Venue: u.Venue,
			Seq:   u.Seq,
			Taken: time.Now(),
			Asks:  u.AskLevels,
			Bids:  u.BidLevels,
		}
		if err := s.deps.Store.Save(bl); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
