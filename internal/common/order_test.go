package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		side      Side
		orderType OrderType
		price     Price
		quantity  Quantity
		err       error
	}{
		{"limit buy", Buy, LimitOrder, 100, 5, nil},
		{"market sell", Sell, MarketOrder, 0, 5, nil},
		{"zero price", Sell, LimitOrder, 0, 5, ErrInvalidPrice},
		{"negative quantity", Sell, LimitOrder, 100, -5, ErrInvalidQuantity},
		{"zero quantity", Buy, ImmediateOrCancel, 100, 0, ErrInvalidQuantity},
		{"market with price", Buy, MarketOrder, 10, 5, ErrMarketPrice},
		{"bad side", Side(7), LimitOrder, 10, 5, ErrInvalidSide},
		{"bad type", Buy, OrderType(42), 10, 5, ErrInvalidOrderType},
		{"limits", Sell, FillOrKill, MaxPrice, MaxQuantity, nil},
		{"quantity over limit", Buy, LimitOrder, 100, MaxQuantity + 1, ErrQuantityLimit},
		{"market quantity over limit", Buy, MarketOrder, 0, MaxQuantity + 1, ErrQuantityLimit},
		{"price over limit", Buy, PostOnly, MaxPrice + 1, 5, ErrPriceLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.side, tt.orderType, tt.price, tt.quantity)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestOrder_Crosses(t *testing.T) {
	buy := Order{Side: Buy, OrderType: LimitOrder, Price: 100}
	assert.True(t, buy.Crosses(99))
	assert.True(t, buy.Crosses(100))
	assert.False(t, buy.Crosses(101))

	sell := Order{Side: Sell, OrderType: LimitOrder, Price: 100}
	assert.True(t, sell.Crosses(101))
	assert.True(t, sell.Crosses(100))
	assert.False(t, sell.Crosses(99))

	market := Order{Side: Buy, OrderType: MarketOrder}
	assert.True(t, market.Crosses(1_000_000))
}

func TestOrder_Balanced(t *testing.T) {
	order := Order{Quantity: 10, Remaining: 3, Filled: 5, Cancelled: 2}
	assert.True(t, order.Balanced())

	order.Filled = 6
	assert.False(t, order.Balanced())
}

func TestTrade_Sides(t *testing.T) {
	trade := Trade{TakerID: 2, MakerID: 1, TakerSide: Sell}
	assert.Equal(t, OrderID(1), trade.BuyID())
	assert.Equal(t, OrderID(2), trade.SellID())
}
