package orderbook

type Side uint8
type Status uint8

const (
	Bid Side = iota
	Ask
)

const (
	Active Status = iota
	Inactive
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Order is a resident order record inside a price level.
// Records are pooled and recycled through the retire ring, so holders
// outside a read epoch must not retain pointers after the epoch ends.
type Order struct {
	ID    uint64
	Price int64
	Qty   int64
	Side  Side

	Status    Status
	Synthetic bool // created by bulk snapshot load or decomposition

	RetireEpoch uint64

	next *Order // FIFO queue inside a price level
	prev *Order
}

// Next allows read-only FIFO traversal.
func (o *Order) Next() *Order { return o.next }

// RetiredAt satisfies memory.Retired for epoch reclamation.
func (o *Order) RetiredAt() uint64 { return o.RetireEpoch }

// --- Feed commands (order-by-order variant) ---

// LimitOrder is a new priced order that may rest.
type LimitOrder struct {
	ID    uint64
	Price int64
	Qty   int64
	Side  Side
}

// MarketOrder has no price and never rests.
type MarketOrder struct {
	ID   uint64
	Qty  int64
	Side Side
}

// ModifyOrder amends price and/or quantity of a resting order.
type ModifyOrder struct {
	ID       uint64
	NewPrice int64
	NewQty   int64
}

type CancelOrder struct {
	ID uint64
}

// --- Trade output ---

// Fill is one maker consumption during a sweep.
type Fill struct {
	Price   int64
	Qty     int64
	MakerID uint64
}

// TradeHistory is the ordered fill sequence of a single incoming order.
type TradeHistory []Fill

func (h TradeHistory) TotalQty() int64 {
	var sum int64
	for _, f := range h {
		sum += f.Qty
	}
	return sum
}

// IDSource hands out fresh synthetic order ids. It is always passed
// explicitly so reconstruction stays deterministic and testable.
type IDSource interface {
	Next() uint64
}
