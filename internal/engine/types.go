package engine

import (
	"time"

	"skoll/internal/book"
	"skoll/internal/common"
)

// SubmitRequest is a new order intent. Price is ignored only in the sense
// that it must be zero for market orders.
type SubmitRequest struct {
	Side      common.Side
	OrderType common.OrderType
	Price     common.Price
	Quantity  common.Quantity
	Owner     string
	Timestamp time.Time
}

type SubmitResult struct {
	OrderID common.OrderID
	Status  common.OrderStatus
	Trades  []common.Trade
	Order   common.Order // Final state of the order after the request
}

// ModifyRequest changes a resting order. Nil fields are left unchanged.
// Quantity is the new open quantity.
type ModifyRequest struct {
	ID       common.OrderID
	Price    *common.Price
	Quantity *common.Quantity
}

type ModifyResult struct {
	Order        common.Order
	Status       common.OrderStatus
	Trades       []common.Trade
	PriorityKept bool
}

// Sequences are the last order id, arrival sequence and trade sequence
// issued. A matcher seeded with them continues numbering after them.
type Sequences struct {
	OrderID uint64
	Arrival uint64
	Trade   uint64
}

type requestKind int

const (
	requestSubmit requestKind = iota
	requestCancel
	requestModify
	requestSnapshot
)

type request struct {
	kind   requestKind
	submit SubmitRequest
	modify ModifyRequest
	id     common.OrderID
	depth  int
	reply  chan reply
}

type reply struct {
	submit   SubmitResult
	modify   ModifyResult
	order    common.Order
	snapshot book.Snapshot
	err      error
}
