package book

import (
	"errors"
	"fmt"

	"skoll/internal/common"
)

// ErrCorrupted marks an invariant violation. It is always a defect.
var ErrCorrupted = errors.New("order book corrupted")

// LevelView is the aggregate of one price level.
type LevelView struct {
	Price    common.Price    `json:"price"`
	Quantity common.Quantity `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Snapshot is the depth of both sides, best first.
type Snapshot struct {
	Sequence uint64      `json:"sequence"`
	Bids     []LevelView `json:"bids"`
	Asks     []LevelView `json:"asks"`
}

// FlatLevel is a level with every resting order spelled out.
type FlatLevel struct {
	Price  common.Price
	Orders []common.Order
}

// Book is the pair of sides for one instrument. It exclusively owns every
// resting order; the index is a non-owning lookup by identity, updated in
// the same call as the owning structure.
//
// A Book is not safe for concurrent use. The engine serialises access.
type Book struct {
	bids  *Side
	asks  *Side
	index map[common.OrderID]*entry
}

func New() *Book {
	return &Book{
		bids:  newSide(common.Buy),
		asks:  newSide(common.Sell),
		index: make(map[common.OrderID]*entry),
	}
}

func (b *Book) Bids() *Side { return b.bids }
func (b *Book) Asks() *Side { return b.asks }

// Side returns the side orders of side s rest on.
func (b *Book) Side(s common.Side) *Side {
	if s == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) BestBid() (common.Price, bool) { return b.bids.BestPrice() }
func (b *Book) BestAsk() (common.Price, bool) { return b.asks.BestPrice() }

// Len returns the number of resting orders.
func (b *Book) Len() int { return len(b.index) }

// Contains reports whether the order is resting.
func (b *Book) Contains(id common.OrderID) bool {
	_, ok := b.index[id]
	return ok
}

// Get returns a copy of a resting order.
func (b *Book) Get(id common.OrderID) (common.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return common.Order{}, false
	}
	return e.order, true
}

// InsertResting appends the order at the back of its price level,
// creating the level if needed. Orders that would cross the opposite side
// are refused: matching must happen first.
func (b *Book) InsertResting(order common.Order) error {
	if !order.Side.Valid() {
		return common.ErrInvalidSide
	}
	if order.Remaining <= 0 {
		return fmt.Errorf("%w: got %d", common.ErrInvalidQuantity, order.Remaining)
	}
	if order.Price <= 0 {
		return fmt.Errorf("%w: got %d", common.ErrInvalidPrice, order.Price)
	}
	if !b.Side(order.Side).Fits(order.Remaining) {
		return fmt.Errorf("%w: %d more on %v", common.ErrVolumeLimit, order.Remaining, order.Side)
	}
	if _, ok := b.index[order.ID]; ok {
		return fmt.Errorf("%w: %d", common.ErrDuplicateOrder, order.ID)
	}
	if best, ok := b.Side(order.Side.Opposite()).BestPrice(); ok && order.Crosses(best) {
		return fmt.Errorf("%w: %d against %d", common.ErrWouldCross, order.Price, best)
	}

	e := &entry{order: order}
	b.Side(order.Side).push(e)
	b.index[order.ID] = e
	return nil
}

// Remove takes an order out of the book by identity and returns it.
func (b *Book) Remove(id common.OrderID) (common.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return common.Order{}, false
	}
	b.Side(e.order.Side).unlink(e)
	delete(b.index, id)
	return e.order, true
}

// Reduce lowers the open quantity of a resting order without touching its
// place in the queue. The difference is accounted as cancelled.
func (b *Book) Reduce(id common.OrderID, remaining common.Quantity) (common.Order, error) {
	e, ok := b.index[id]
	if !ok {
		return common.Order{}, common.ErrNotFound
	}
	if remaining <= 0 || remaining >= e.order.Remaining {
		return e.order, fmt.Errorf("%w: reduce %d to %d", common.ErrInvalidQuantity, e.order.Remaining, remaining)
	}

	delta := e.order.Remaining - remaining
	e.order.Remaining = remaining
	e.order.Cancelled += delta
	e.level.volume -= delta
	b.Side(e.order.Side).volume -= delta
	return e.order, nil
}

// FillFront executes qty against the oldest order of level, removing the
// order and, if it was the last one, the level. It returns the resting
// order after the fill.
func (b *Book) FillFront(level *Level, qty common.Quantity) common.Order {
	e := level.head
	if e == nil || qty <= 0 || qty > e.order.Remaining {
		panic(fmt.Sprintf("%v: fill of %d at level %d", ErrCorrupted, qty, level.price))
	}

	side := b.Side(level.side)
	e.order.Remaining -= qty
	e.order.Filled += qty
	level.volume -= qty
	side.volume -= qty

	if e.order.Remaining == 0 {
		side.unlink(e)
		delete(b.index, e.order.ID)
	}
	return e.order
}

// Snapshot aggregates depth levels of each side, best first. depth <= 0
// returns the full book.
func (b *Book) Snapshot(depth int) Snapshot {
	return Snapshot{
		Bids: b.bids.Depth(depth),
		Asks: b.asks.Depth(depth),
	}
}

// Levels flattens one side into its levels and orders, best first.
func (b *Book) Levels(s common.Side) []FlatLevel {
	var levels []FlatLevel
	b.Side(s).Scan(func(level *Level) bool {
		levels = append(levels, FlatLevel{
			Price:  level.price,
			Orders: level.Orders(),
		})
		return true
	})
	return levels
}

// CheckInvariants walks the whole book. It is meant for tests and the
// engine's paranoid mode, not for the hot path.
func (b *Book) CheckInvariants() error {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if bidOk && askOk && bid >= ask {
		return fmt.Errorf("%w: crossed book, bid %d >= ask %d", ErrCorrupted, bid, ask)
	}

	seen := 0
	for _, side := range []*Side{b.bids, b.asks} {
		var (
			err    error
			orders int
			volume common.Quantity
			prev   *Level
		)
		side.Scan(func(level *Level) bool {
			if prev != nil && !side.less(prev, level) {
				err = fmt.Errorf("%w: level %d out of order after %d", ErrCorrupted, level.price, prev.price)
				return false
			}
			prev = level
			err = b.checkLevel(side, level)
			orders += level.count
			volume += level.volume
			return err == nil
		})
		if err != nil {
			return err
		}
		if side.volume < 0 {
			return fmt.Errorf("%w: %s side volume overflowed to %d", ErrCorrupted, side.side, side.volume)
		}
		if orders != side.orders || volume != side.volume {
			return fmt.Errorf("%w: %s side counts %d/%d, stored %d/%d",
				ErrCorrupted, side.side, orders, volume, side.orders, side.volume)
		}
		seen += orders
	}

	if seen != len(b.index) {
		return fmt.Errorf("%w: %d orders resting, %d indexed", ErrCorrupted, seen, len(b.index))
	}
	return nil
}

func (b *Book) checkLevel(side *Side, level *Level) error {
	if level.head == nil {
		return fmt.Errorf("%w: empty level %d left on %s side", ErrCorrupted, level.price, side.side)
	}

	var (
		count  int
		volume common.Quantity
		seq    uint64
	)
	for e := level.head; e != nil; e = e.next {
		o := e.order
		switch {
		case e.level != level:
			return fmt.Errorf("%w: order %d linked to wrong level", ErrCorrupted, o.ID)
		case o.Price != level.price || o.Side != side.side:
			return fmt.Errorf("%w: order %d (%s %d) at level %s %d", ErrCorrupted, o.ID, o.Side, o.Price, side.side, level.price)
		case o.Remaining <= 0 || !o.Balanced():
			return fmt.Errorf("%w: order %d quantities %d/%d/%d/%d", ErrCorrupted, o.ID, o.Quantity, o.Remaining, o.Filled, o.Cancelled)
		case o.Sequence <= seq && count > 0:
			return fmt.Errorf("%w: order %d out of time priority", ErrCorrupted, o.ID)
		case b.index[o.ID] != e:
			return fmt.Errorf("%w: order %d missing from index", ErrCorrupted, o.ID)
		}
		seq = o.Sequence
		count++
		volume += o.Remaining
	}
	if count != level.count || volume != level.volume {
		return fmt.Errorf("%w: level %d counts %d/%d, stored %d/%d",
			ErrCorrupted, level.price, count, volume, level.count, level.volume)
	}
	return nil
}
