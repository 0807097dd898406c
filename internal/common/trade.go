package common

import (
	"fmt"
	"time"
)

// Trade accounts for the two parties who matched. The taker is the
// incoming order, the maker the resting one whose price the trade prints
// at.
type Trade struct {
	Sequence   uint64    `json:"sequence"`
	Price      Price     `json:"price"`
	Quantity   Quantity  `json:"quantity"`
	TakerID    OrderID   `json:"taker_id"`
	MakerID    OrderID   `json:"maker_id"`
	TakerSide  Side      `json:"taker_side"`
	TakerOwner string    `json:"taker_owner,omitempty"`
	MakerOwner string    `json:"maker_owner,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// BuyID returns the buying order of the trade.
func (t Trade) BuyID() OrderID {
	if t.TakerSide == Buy {
		return t.TakerID
	}
	return t.MakerID
}

// SellID returns the selling order of the trade.
func (t Trade) SellID() OrderID {
	if t.TakerSide == Sell {
		return t.TakerID
	}
	return t.MakerID
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`Sequence:       %d
Taker:          %d (%s, %s)
Maker:          %d (%s)
Timestamp:      %v
Quantity:       %d
Price:          %d`,
		t.Sequence,
		t.TakerID,
		t.TakerSide,
		t.TakerOwner,
		t.MakerID,
		t.MakerOwner,
		t.Timestamp.Format(time.RFC3339),
		t.Quantity,
		t.Price,
	)
}
