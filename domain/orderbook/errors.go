package orderbook

import "errors"

var (
	// ErrBookMismatch: snapshot (isin, venue) does not identify this book.
	ErrBookMismatch = errors.New("orderbook: snapshot does not belong to this book")
	// ErrLevelCutTooNarrow: decomposition input publishes fewer levels
	// than the cut this book has been tracking.
	ErrLevelCutTooNarrow = errors.New("orderbook: snapshot narrower than tracked level cut")
)
