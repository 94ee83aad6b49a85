package memory

import "sync/atomic"

// GlobalEpoch tracks reclamation epochs across the process. Records
// retired in epoch E may be recycled once every reader has entered an
// epoch later than E (or gone idle).
var GlobalEpoch atomic.Uint64

const idleEpoch = ^uint64(0)

// ReaderEpoch is the read-side half of the epoch protocol. A reader
// enters before walking book state and exits when done; while entered,
// records retired at or after its epoch stay readable.
type ReaderEpoch struct {
	value atomic.Uint64
}

func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.value.Store(idleEpoch)
	return r
}

func (r *ReaderEpoch) Enter() {
	r.value.Store(GlobalEpoch.Load())
}

func (r *ReaderEpoch) Exit() {
	r.value.Store(idleEpoch)
}

// Retired is implemented by records that remember their retire epoch.
type Retired interface {
	RetiredAt() uint64
}

// ReclaimablePool receives records whose epoch has drained.
type ReclaimablePool interface {
	PutAny(any)
}

// Reclaimer is the consumer side of the retire ring. Records still
// pinned by a reader are parked in a local pending list and retried on
// the next pass; the reclaimer never enqueues onto the ring, which
// stays single-producer for the book writer.
type Reclaimer struct {
	ring    *RetireRing
	pool    ReclaimablePool
	pending []any
}

func NewReclaimer(ring *RetireRing, pool ReclaimablePool) *Reclaimer {
	return &Reclaimer{ring: ring, pool: pool}
}

// Advance bumps the global epoch and recycles retired records no
// reader can still observe. Retirement order is FIFO across the
// pending list and the ring, so the first pinned record stops the scan.
func (c *Reclaimer) Advance(readers ...*ReaderEpoch) {
	GlobalEpoch.Add(1)
	min := minReaderEpoch(readers...)

	for len(c.pending) > 0 {
		if !reclaimable(c.pending[0], min) {
			return
		}
		c.pool.PutAny(c.pending[0])
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	for {
		v := c.ring.Dequeue()
		if v == nil {
			return
		}
		if !reclaimable(v, min) {
			c.pending = append(c.pending, v)
			return
		}
		c.pool.PutAny(v)
	}
}

// Pending reports how many records await a reader drain.
func (c *Reclaimer) Pending() int { return len(c.pending) }

func reclaimable(v any, min uint64) bool {
	r, ok := v.(Retired)
	return !ok || min == idleEpoch || r.RetiredAt() < min
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := uint64(idleEpoch)
	for _, r := range rs {
		if v := r.value.Load(); v < min {
			min = v
		}
	}
	return min
}
