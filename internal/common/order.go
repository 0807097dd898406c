package common

import (
	"fmt"
	"time"
)

type Order struct {
	ID            OrderID   `json:"id"`              // Engine issued identifier
	Side          Side      `json:"side"`            // Order side
	OrderType     OrderType `json:"order_type"`      //
	Price         Price     `json:"price"`           // Limit price in ticks, zero for market orders
	Quantity      Quantity  `json:"quantity"`        // Total volume requested
	Remaining     Quantity  `json:"remaining"`       // Open quantity
	Filled        Quantity  `json:"filled"`          // Executed quantity
	Cancelled     Quantity  `json:"cancelled"`       // Quantity withdrawn by cancel or modify
	Sequence      uint64    `json:"sequence"`        // Arrival sequence, decides time priority
	Owner         string    `json:"owner,omitempty"` // Who ownes this order
	Timestamp     time.Time `json:"timestamp"`       // Time the producer created the order
	ExchTimestamp time.Time `json:"exch_timestamp"`  // Time of arrival of order into the book
}

// Validate checks an order intent before anything touches the book.
func Validate(side Side, orderType OrderType, price Price, quantity Quantity) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if !orderType.Valid() {
		return ErrInvalidOrderType
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if quantity > MaxQuantity {
		return fmt.Errorf("%w: got %d", ErrQuantityLimit, quantity)
	}
	if !orderType.HasLimit() {
		if price != 0 {
			return ErrMarketPrice
		}
		return nil
	}
	if price <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPrice, price)
	}
	if price > MaxPrice {
		return fmt.Errorf("%w: got %d", ErrPriceLimit, price)
	}
	return nil
}

// Crosses reports whether this order may trade against a resting order
// at price. Market orders cross any price.
func (order *Order) Crosses(price Price) bool {
	if !order.OrderType.HasLimit() {
		return true
	}
	if order.Side == Buy {
		return order.Price >= price
	}
	return order.Price <= price
}

// Balanced reports whether the quantity accounting of the order adds up.
func (order *Order) Balanced() bool {
	return order.Remaining >= 0 &&
		order.Remaining <= order.Quantity &&
		order.Filled+order.Cancelled+order.Remaining == order.Quantity
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:            %d
OrderType:     %v
Side:          %v
Price:         %d
Quantity:      %d (Remaining: %d, Filled: %d, Cancelled: %d)
Sequence:      %d
Timestamp:     %v
ExchTimestamp: %v
Owner:         %s`,
		order.ID,
		order.OrderType,
		order.Side,
		order.Price,
		order.Quantity,
		order.Remaining,
		order.Filled,
		order.Cancelled,
		order.Sequence,
		order.Timestamp.Format(time.RFC3339), // Formatted for readability
		order.ExchTimestamp.Format(time.RFC3339),
		order.Owner,
	)
}
