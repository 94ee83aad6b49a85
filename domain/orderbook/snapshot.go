package orderbook

// LevelSnapshot is the vendor's lossy view of one price level: the
// published aggregate, never the individual residents. OrderCount and
// LPQty are zero when the venue omits them.
type LevelSnapshot struct {
	Price      int64
	Qty        int64
	OrderCount int
	LPQty      int64
}

// QuoteSnapshot is a discretized top-N view of one book, as produced by
// the wire-protocol decoders. Index 0 is the best rank on each side.
type QuoteSnapshot struct {
	Isin      string
	Venue     string
	Timestamp int64
	AskLevels []LevelSnapshot
	BidLevels []LevelSnapshot
	LevelCut  int
}

// TradeQuoteSnapshot is a QuoteSnapshot carrying the trade that
// triggered the quote update.
type TradeQuoteSnapshot struct {
	QuoteSnapshot
	TradePrice int64
	TradeQty   int64
	TradeSide  Side // aggressor side
}
