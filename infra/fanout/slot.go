package fanout

import (
	"runtime"
	"sync/atomic"
)

// Slot is a single-writer/multi-reader latest-value cell, not a FIFO
// queue. The writer publishes the newest book update and overwrites
// freely; each reader busy-polls for a version change and acknowledges
// what it consumed, so the writer can tell when the slowest reader has
// drained. Intermediate values a slow reader never saw are dropped:
// freshness wins over completeness.
type Slot[T any] struct {
	cur     atomic.Pointer[versioned[T]]
	readers []*Reader[T]
}

type versioned[T any] struct {
	seq uint64
	v   *T
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Subscribe registers a reader. Call before readers start polling;
// registration is not synchronized against Publish.
func (s *Slot[T]) Subscribe() *Reader[T] {
	r := &Reader[T]{slot: s}
	r.acked.Store(0)
	s.readers = append(s.readers, r)
	return r
}

// Observe returns an unregistered reader. It may attach at any time,
// but its acknowledgements are invisible to Drained.
func (s *Slot[T]) Observe() *Reader[T] {
	return &Reader[T]{slot: s}
}

// Publish installs v as the latest value and returns its version.
func (s *Slot[T]) Publish(v *T) uint64 {
	var seq uint64 = 1
	if old := s.cur.Load(); old != nil {
		seq = old.seq + 1
	}
	s.cur.Store(&versioned[T]{seq: seq, v: v})
	return seq
}

// Seq is the version of the latest published value (0 before any).
func (s *Slot[T]) Seq() uint64 {
	if p := s.cur.Load(); p != nil {
		return p.seq
	}
	return 0
}

// Drained reports whether every reader has acknowledged seq.
func (s *Slot[T]) Drained(seq uint64) bool {
	for _, r := range s.readers {
		if r.acked.Load() < seq {
			return false
		}
	}
	return true
}

// WaitDrained spins until Drained(seq). Only the writer calls this, and
// only when it must not overwrite an unconsumed value.
func (s *Slot[T]) WaitDrained(seq uint64) {
	for i := 0; !s.Drained(seq); i++ {
		if i&1023 == 1023 {
			runtime.Gosched()
		}
	}
}

// Reader is one consumer of the slot. Not goroutine-safe; each worker
// owns exactly one.
type Reader[T any] struct {
	slot  *Slot[T]
	seen  uint64
	acked atomic.Uint64
}

// Poll returns the latest value if it is newer than what this reader
// has already seen. Non-blocking.
func (r *Reader[T]) Poll() (*T, uint64, bool) {
	p := r.slot.cur.Load()
	if p == nil || p.seq <= r.seen {
		return nil, 0, false
	}
	r.seen = p.seq
	return p.v, p.seq, true
}

// Spin busy-polls until a newer value appears. Callers typically pin
// their goroutine to a core; Gosched keeps the spin polite when they
// don't.
func (r *Reader[T]) Spin() (*T, uint64) {
	for i := 0; ; i++ {
		if v, seq, ok := r.Poll(); ok {
			return v, seq
		}
		if i&1023 == 1023 {
			runtime.Gosched()
		}
	}
}

// Ack marks seq as fully processed by this reader.
func (r *Reader[T]) Ack(seq uint64) {
	r.acked.Store(seq)
}
