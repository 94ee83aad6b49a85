// Package orderbook is the limit order book core: price levels, half
// books with price-time-priority matching, the paired book, and the
// snapshot decomposition algorithm that reconstructs synthetic
// order-level events from vendor-truncated level snapshots.
//
// Everything here is single-writer and lock-free by construction:
// one goroutine owns a book for the whole session, and concurrency
// lives outside, in infra/fanout and infra/memory.
package orderbook
