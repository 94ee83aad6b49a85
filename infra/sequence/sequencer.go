package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic ids. Decomposition draws its
// synthetic order ids from one of these, always passed explicitly
// rather than through a hidden global, so reconstruction is
// deterministic and independently testable.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer starting from a given value: 0 on a fresh
// session, the last replayed value after feed replay.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset rewinds the sequencer. Only used right after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
