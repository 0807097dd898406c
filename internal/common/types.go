package common

import "math"

// Price is a fixed-point price expressed in ticks. Floating point never
// reaches the book.
type Price int64

// Quantity is an order size expressed in lots. It is signed so that
// malformed input can be represented and rejected.
type Quantity int64

const (
	// MaxPrice and MaxQuantity bound a single order. A side holds at most
	// MaxVolume lots, so no level, side or order total can overflow.
	MaxPrice    Price    = 1 << 53
	MaxQuantity Quantity = 1 << 53
	MaxVolume   Quantity = math.MaxInt64
)

// OrderID is issued by the engine, strictly increasing. Zero is never
// issued.
type OrderID uint64

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

type OrderType int

const (
	// Limit orders are an order to buy or sell a secuirty at a specified
	// price or better. Limit orders may rest on the order book until
	// filled or cancelled.
	LimitOrder OrderType = iota
	// Market orders are instructions to buy or sell immediately.
	// This order guarantees that the order will be executed without
	// guarantees on the execution price. Market orders never rest.
	MarketOrder
	// ImmediateOrCancel orders trade what they can at their limit and
	// drop the rest.
	ImmediateOrCancel
	// FillOrKill orders trade their whole quantity at their limit or
	// nothing at all.
	FillOrKill
	// PostOnly orders only ever add liquidity. They are rejected if they
	// would take any on arrival.
	PostOnly
)

func (t OrderType) Valid() bool {
	return t >= LimitOrder && t <= PostOnly
}

// Rests reports whether an unfilled residual of this type is placed on
// the book.
func (t OrderType) Rests() bool {
	return t == LimitOrder || t == PostOnly
}

// HasLimit reports whether the type carries a limit price.
func (t OrderType) HasLimit() bool {
	return t != MarketOrder
}

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "limit"
	case MarketOrder:
		return "market"
	case ImmediateOrCancel:
		return "ioc"
	case FillOrKill:
		return "fok"
	case PostOnly:
		return "post_only"
	}
	return "unknown"
}

// OrderStatus is the outcome of a request as seen by the submitter.
type OrderStatus int

const (
	Resting OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Resting:
		return "resting"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}
