package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
)

// --- Setup & Helpers --------------------------------------------------------

type bookBuilder struct {
	book *Book
	next uint64
}

func newBookBuilder() *bookBuilder {
	return &bookBuilder{book: New()}
}

// rest places limit orders straight onto the book, one per quantity, and
// returns their ids.
func (bb *bookBuilder) rest(t *testing.T, side common.Side, price common.Price, quantities ...common.Quantity) []common.OrderID {
	t.Helper()
	ids := make([]common.OrderID, 0, len(quantities))
	for _, qty := range quantities {
		bb.next++
		order := common.Order{
			ID:        common.OrderID(bb.next),
			Side:      side,
			OrderType: common.LimitOrder,
			Price:     price,
			Quantity:  qty,
			Remaining: qty,
			Sequence:  bb.next,
		}
		require.NoError(t, bb.book.InsertResting(order))
		ids = append(ids, order.ID)
	}
	require.NoError(t, bb.book.CheckInvariants())
	return ids
}

func remaining(levels []FlatLevel) map[common.Price][]common.Quantity {
	out := make(map[common.Price][]common.Quantity, len(levels))
	for _, level := range levels {
		for _, o := range level.Orders {
			out[level.Price] = append(out[level.Price], o.Remaining)
		}
	}
	return out
}

func prices(levels []FlatLevel) []common.Price {
	out := make([]common.Price, 0, len(levels))
	for _, level := range levels {
		out = append(out, level.Price)
	}
	return out
}

// --- Tests ------------------------------------------------------------------

func TestInsertResting_SortsSides(t *testing.T) {
	bb := newBookBuilder()

	bb.rest(t, common.Buy, 98, 50)
	bb.rest(t, common.Buy, 99, 100, 90, 80)
	bb.rest(t, common.Sell, 101, 20)
	bb.rest(t, common.Sell, 100, 100, 90)

	assert.Equal(t, []common.Price{99, 98}, prices(bb.book.Levels(common.Buy)), "Bids should be sorted High -> Low")
	assert.Equal(t, []common.Price{100, 101}, prices(bb.book.Levels(common.Sell)), "Asks should be sorted Low -> High")
	assert.Equal(t, []common.Quantity{100, 90, 80}, remaining(bb.book.Levels(common.Buy))[99])

	bid, ok := bb.book.BestBid()
	require.True(t, ok)
	assert.Equal(t, common.Price(99), bid)
	ask, ok := bb.book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, common.Price(100), ask)

	assert.Equal(t, 4, bb.book.Bids().Orders())
	assert.Equal(t, common.Quantity(320), bb.book.Bids().Volume())
	assert.Equal(t, 6, bb.book.Len())
}

func TestInsertResting_Rejects(t *testing.T) {
	bb := newBookBuilder()
	bb.rest(t, common.Sell, 100, 10)

	base := common.Order{ID: 50, Side: common.Buy, Price: 90, Quantity: 5, Remaining: 5, Sequence: 50}

	zeroQty := base
	zeroQty.Remaining = 0
	assert.ErrorIs(t, bb.book.InsertResting(zeroQty), common.ErrInvalidOrder)

	negPrice := base
	negPrice.Price = -1
	assert.ErrorIs(t, bb.book.InsertResting(negPrice), common.ErrInvalidPrice)

	crossing := base
	crossing.Price = 100
	assert.ErrorIs(t, bb.book.InsertResting(crossing), common.ErrWouldCross)

	require.NoError(t, bb.book.InsertResting(base))
	assert.ErrorIs(t, bb.book.InsertResting(base), common.ErrDuplicateOrder)

	assert.Equal(t, 2, bb.book.Len())
	assert.NoError(t, bb.book.CheckInvariants())
}

func TestInsertResting_VolumeLimit(t *testing.T) {
	bb := newBookBuilder()
	bb.rest(t, common.Sell, 100, common.MaxVolume-5)

	assert.True(t, bb.book.Asks().Fits(5))
	assert.False(t, bb.book.Asks().Fits(6))
	assert.True(t, bb.book.Bids().Fits(common.MaxVolume))

	bb.rest(t, common.Sell, 101, 5)
	over := common.Order{ID: 99, Side: common.Sell, Price: 102, Quantity: 1, Remaining: 1, Sequence: 99}
	assert.ErrorIs(t, bb.book.InsertResting(over), common.ErrVolumeLimit)

	assert.Equal(t, common.MaxVolume, bb.book.Asks().Volume())
	assert.NoError(t, bb.book.CheckInvariants())
}

func TestBestPrices_EmptyBook(t *testing.T) {
	book := New()
	_, ok := book.BestBid()
	assert.False(t, ok)
	_, ok = book.BestAsk()
	assert.False(t, ok)
	assert.Empty(t, book.Snapshot(5).Bids)
	assert.Empty(t, book.Snapshot(5).Asks)
}

func TestRemove(t *testing.T) {
	bb := newBookBuilder()
	ids := bb.rest(t, common.Sell, 100, 10, 20)
	lone := bb.rest(t, common.Sell, 105, 7)

	order, ok := bb.book.Remove(ids[0])
	require.True(t, ok)
	assert.Equal(t, common.Quantity(10), order.Remaining)
	assert.Equal(t, []common.Quantity{20}, remaining(bb.book.Levels(common.Sell))[100])

	// Removing the last order of a level removes the level.
	_, ok = bb.book.Remove(lone[0])
	require.True(t, ok)
	assert.Equal(t, []common.Price{100}, prices(bb.book.Levels(common.Sell)))

	// A second removal is simply not found.
	_, ok = bb.book.Remove(ids[0])
	assert.False(t, ok)
	assert.False(t, bb.book.Contains(ids[0]))
	assert.NoError(t, bb.book.CheckInvariants())
}

func TestReduce_KeepsQueuePosition(t *testing.T) {
	bb := newBookBuilder()
	ids := bb.rest(t, common.Buy, 50, 10, 10, 10)

	order, err := bb.book.Reduce(ids[0], 4)
	require.NoError(t, err)
	assert.Equal(t, common.Quantity(4), order.Remaining)
	assert.Equal(t, common.Quantity(6), order.Cancelled)

	level, ok := bb.book.Bids().Best()
	require.True(t, ok)
	front, ok := level.Front()
	require.True(t, ok)
	assert.Equal(t, ids[0], front.ID)
	assert.Equal(t, common.Quantity(24), level.Volume())
	assert.Equal(t, common.Quantity(24), bb.book.Bids().Volume())

	_, err = bb.book.Reduce(ids[1], 10)
	assert.ErrorIs(t, err, common.ErrInvalidOrder)
	_, err = bb.book.Reduce(ids[1], 0)
	assert.ErrorIs(t, err, common.ErrInvalidOrder)
	_, err = bb.book.Reduce(999, 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, bb.book.CheckInvariants())
}

func TestFillFront(t *testing.T) {
	bb := newBookBuilder()
	ids := bb.rest(t, common.Sell, 100, 10, 5)

	level, ok := bb.book.Asks().Best()
	require.True(t, ok)

	maker := bb.book.FillFront(level, 10)
	assert.Equal(t, ids[0], maker.ID)
	assert.Equal(t, common.Quantity(0), maker.Remaining)
	assert.Equal(t, common.Quantity(10), maker.Filled)
	assert.False(t, bb.book.Contains(ids[0]))

	maker = bb.book.FillFront(level, 2)
	assert.Equal(t, ids[1], maker.ID)
	assert.Equal(t, common.Quantity(3), maker.Remaining)
	assert.NoError(t, bb.book.CheckInvariants())

	bb.book.FillFront(level, 3)
	assert.True(t, bb.book.Asks().Empty())
	assert.Equal(t, 0, bb.book.Len())
	assert.NoError(t, bb.book.CheckInvariants())

	assert.Panics(t, func() { bb.book.FillFront(level, 1) })
}

func TestSnapshot_Depth(t *testing.T) {
	bb := newBookBuilder()
	bb.rest(t, common.Buy, 99, 100, 90)
	bb.rest(t, common.Buy, 98, 50)
	bb.rest(t, common.Buy, 97, 1)
	bb.rest(t, common.Sell, 101, 20)

	snap := bb.book.Snapshot(2)
	assert.Equal(t, []LevelView{
		{Price: 99, Quantity: 190, Orders: 2},
		{Price: 98, Quantity: 50, Orders: 1},
	}, snap.Bids)
	assert.Equal(t, []LevelView{{Price: 101, Quantity: 20, Orders: 1}}, snap.Asks)

	assert.Len(t, bb.book.Snapshot(0).Bids, 3)
}

func TestCheckInvariants_DetectsCorruption(t *testing.T) {
	bb := newBookBuilder()
	ids := bb.rest(t, common.Buy, 99, 10)

	// Tamper with the index so it no longer matches the levels.
	delete(bb.book.index, ids[0])
	assert.ErrorIs(t, bb.book.CheckInvariants(), ErrCorrupted)
}
