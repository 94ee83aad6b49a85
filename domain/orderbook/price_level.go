package orderbook

import "fmt"

// PriceLevel is a FIFO queue of resident orders at a single price.
// Arrival order is time priority. TotalQty and OrderCount are cached
// aggregates and must always equal the sum/count of residents.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

// Enqueue appends o at the tail (loses against every resident already queued).
func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
		o.prev = nil
		o.next = nil
	} else {
		p.tail.next = o
		o.prev = p.tail
		o.next = nil
		p.tail = o
	}
	p.TotalQty += o.Qty
	p.OrderCount++
}

// PopHead removes and returns the oldest resident, or nil.
func (p *PriceLevel) PopHead() *Order {
	o := p.head
	if o == nil {
		return nil
	}
	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}
	o.next = nil
	o.prev = nil
	p.TotalQty -= o.Qty
	p.OrderCount--
	return o
}

// Unlink removes o from anywhere in the queue. o must be resident here.
func (p *PriceLevel) Unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	p.TotalQty -= o.Qty
	p.OrderCount--
}

// Find scans the queue for id. O(depth); venues cap published depth,
// so the scan stays short in practice.
func (p *PriceLevel) Find(id uint64) *Order {
	for o := p.head; o != nil; o = o.next {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Reduce shrinks o's quantity in place, keeping its queue position.
func (p *PriceLevel) Reduce(o *Order, amount int64) {
	if amount > o.Qty {
		amount = o.Qty
	}
	o.Qty -= amount
	p.TotalQty -= amount
}

func (p *PriceLevel) Empty() bool { return p.head == nil }

// Head allows read-only traversal from the oldest resident.
func (p *PriceLevel) Head() *Order { return p.head }

func (p *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%d, Orders=%d, TotalQty=%d}",
		p.Price, p.OrderCount, p.TotalQty)
}
