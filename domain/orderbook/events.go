package orderbook

import "fmt"

// EventKind tags the synthetic order-level events inferred by snapshot
// decomposition. The zero value is Null: nothing happened.
type EventKind uint8

const (
	EventNull EventKind = iota
	EventLimit
	EventModify
	EventRemoveAny
)

func (k EventKind) String() string {
	switch k {
	case EventLimit:
		return "limit"
	case EventModify:
		return "modify"
	case EventRemoveAny:
		return "remove_any"
	default:
		return "null"
	}
}

// OrderEvent is one synthetic order-level event. Rank and LevelPrice
// record which snapshot entry triggered it (Rank is -1 for a tracked
// level that vanished from the published window).
//
// Field meaning per kind:
//   - EventLimit: new synthetic order {ID, Price, Qty, Side}.
//   - EventModify: resting order ID now has quantity Qty at Price.
//   - EventRemoveAny: resting order ID (carrying Qty) is removed.
//   - EventNull: no fields are meaningful.
type OrderEvent struct {
	Kind  EventKind
	ID    uint64
	Price int64
	Qty   int64
	Side  Side

	Rank       int
	LevelPrice int64
}

func (e OrderEvent) String() string {
	return fmt.Sprintf("OrderEvent{%s id=%d price=%d qty=%d side=%s rank=%d}",
		e.Kind, e.ID, e.Price, e.Qty, e.Side, e.Rank)
}
