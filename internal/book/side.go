package book

import (
	"github.com/tidwall/btree"

	"skoll/internal/common"
)

type PriceLevels = btree.BTreeG[*Level]

// Side is one half of the book: price levels sorted best first. Bids are
// sorted greatest first and asks least first, so the best level is always
// the tree minimum.
type Side struct {
	side   common.Side
	less   func(a, b *Level) bool
	levels *PriceLevels

	// Some book keeping
	orders int             // Track the number of orders on the side.
	volume common.Quantity // Track the liquidity of the side.
}

func newSide(side common.Side) *Side {
	less := func(a, b *Level) bool { return a.price < b.price }
	if side == common.Buy {
		less = func(a, b *Level) bool { return a.price > b.price }
	}
	// Only the matching goroutine touches the tree, so skip its locks.
	return &Side{
		side:   side,
		less:   less,
		levels: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

func (s *Side) Side() common.Side { return s.side }
func (s *Side) Len() int { return s.levels.Len() }
func (s *Side) Orders() int { return s.orders }
func (s *Side) Volume() common.Quantity { return s.volume }
func (s *Side) Empty() bool { return s.levels.Len() == 0 }

// Fits reports whether qty more lots can rest on the side without its
// volume passing common.MaxVolume.
func (s *Side) Fits(qty common.Quantity) bool {
	return qty <= common.MaxVolume-s.volume
}

// Best returns the top of book level of the side.
func (s *Side) Best() (*Level, bool) {
	return s.levels.Min()
}

// BestPrice returns the top of book price of the side.
func (s *Side) BestPrice() (common.Price, bool) {
	level, ok := s.levels.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// Level returns the level at price, if any orders rest there.
func (s *Side) Level(price common.Price) (*Level, bool) {
	// Levels comparator only accounts for price levels, so we create a
	// dummy price level for the search.
	return s.levels.Get(&Level{price: price})
}

// Scan walks levels best first until fn returns false.
func (s *Side) Scan(fn func(level *Level) bool) {
	s.levels.Scan(fn)
}

// Depth aggregates the first n levels, best first. n <= 0 means all.
func (s *Side) Depth(n int) []LevelView {
	size := s.levels.Len()
	if n > 0 && n < size {
		size = n
	}
	views := make([]LevelView, 0, size)
	s.levels.Scan(func(level *Level) bool {
		if len(views) == size {
			return false
		}
		views = append(views, LevelView{
			Price:    level.price,
			Quantity: level.volume,
			Orders:   level.count,
		})
		return true
	})
	return views
}

func (s *Side) upsert(price common.Price) *Level {
	if level, ok := s.Level(price); ok {
		return level
	}
	level := newLevel(s.side, price)
	s.levels.Set(level)
	return level
}

func (s *Side) push(e *entry) {
	s.upsert(e.order.Price).pushBack(e)
	s.orders++
	s.volume += e.order.Remaining
}

// unlink takes the entry out of its level and drops the level once it
// holds nothing.
func (s *Side) unlink(e *entry) {
	level := e.level
	s.orders--
	s.volume -= e.order.Remaining
	level.unlink(e)
	if level.Empty() {
		s.levels.Delete(level)
	}
}
