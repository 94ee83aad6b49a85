package outbox

import (
	"sort"
	"sync"
	"time"
)

type State uint8

const (
	Pending State = iota
	Sent
	Acked
)

// Entry is one undelivered downstream message.
type Entry struct {
	Seq     uint64
	Key     string
	Payload []byte
	State   State
	Added   time.Time
}

// Outbox tracks decomposed-event batches awaiting broadcast. The book
// writer appends; the broadcaster job walks pending entries, marks them
// sent, and acks them once the broker confirms. Delivery state lives
// here, never in the book.
type Outbox struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
}

func New() *Outbox {
	return &Outbox{entries: make(map[uint64]*Entry)}
}

func (o *Outbox) Put(seq uint64, key string, payload []byte) {
	o.mu.Lock()
	o.entries[seq] = &Entry{
		Seq:     seq,
		Key:     key,
		Payload: payload,
		State:   Pending,
		Added:   time.Now(),
	}
	o.mu.Unlock()
}

// ScanPending visits unacked entries in sequence order. fn errors stop
// the scan; the entry stays pending for the next pass.
func (o *Outbox) ScanPending(fn func(*Entry) error) error {
	o.mu.RLock()
	seqs := make([]uint64, 0, len(o.entries))
	for seq, e := range o.entries {
		if e.State != Acked {
			seqs = append(seqs, seq)
		}
	}
	o.mu.RUnlock()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for _, seq := range seqs {
		o.mu.RLock()
		e, ok := o.entries[seq]
		o.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outbox) MarkSent(seq uint64) {
	o.setState(seq, Sent)
}

func (o *Outbox) MarkAcked(seq uint64) {
	o.setState(seq, Acked)
}

func (o *Outbox) setState(seq uint64, st State) {
	o.mu.Lock()
	if e, ok := o.entries[seq]; ok {
		e.State = st
	}
	o.mu.Unlock()
}

// TrimAcked drops acked entries at or below upTo.
func (o *Outbox) TrimAcked(upTo uint64) {
	o.mu.Lock()
	for seq, e := range o.entries {
		if e.State == Acked && seq <= upTo {
			delete(o.entries, seq)
		}
	}
	o.mu.Unlock()
}

func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}
