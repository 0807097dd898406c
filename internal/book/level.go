package book

import "skoll/internal/common"

// entry is a resting order linked into its price level. The book owns it;
// callers only ever see copies of the order.
type entry struct {
	order common.Order
	level *Level
	prev  *entry
	next  *entry
}

// Level holds the orders resting at one price, oldest first.
type Level struct {
	price  common.Price
	side   common.Side
	head   *entry
	tail   *entry
	volume common.Quantity
	count  int
}

func newLevel(side common.Side, price common.Price) *Level {
	return &Level{price: price, side: side}
}

func (l *Level) Price() common.Price { return l.price }
func (l *Level) Side() common.Side { return l.side }
func (l *Level) Volume() common.Quantity { return l.volume }
func (l *Level) Len() int { return l.count }
func (l *Level) Empty() bool { return l.head == nil }

// Front returns the oldest order at the level.
func (l *Level) Front() (common.Order, bool) {
	if l.head == nil {
		return common.Order{}, false
	}
	return l.head.order, true
}

// Orders returns the orders at the level in time priority.
func (l *Level) Orders() []common.Order {
	orders := make([]common.Order, 0, l.count)
	for e := l.head; e != nil; e = e.next {
		orders = append(orders, e.order)
	}
	return orders
}

func (l *Level) pushBack(e *entry) {
	e.level = l
	e.next = nil
	e.prev = l.tail
	if l.tail == nil {
		l.head = e
	} else {
		l.tail.next = e
	}
	l.tail = e
	l.volume += e.order.Remaining
	l.count++
}

func (l *Level) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	l.volume -= e.order.Remaining
	l.count--
	e.prev, e.next, e.level = nil, nil, nil
}
