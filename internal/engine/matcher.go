package engine

import (
	"fmt"
	"time"

	"skoll/internal/book"
	"skoll/internal/common"
	"skoll/internal/sequence"
)

// Matcher applies requests to a book under price-time priority. It is
// strictly single threaded: the Engine is its only caller in production,
// tests drive it directly.
type Matcher struct {
	book *book.Book

	orderIDs *sequence.Sequencer // Identifiers handed back to submitters
	arrivals *sequence.Sequencer // Time priority, reissued on priority loss
	trades   *sequence.Sequencer // Trade sequence numbers

	now      func() time.Time
	emit     func(Event)
	paranoid bool
}

type MatcherOption func(*Matcher)

// WithClock replaces time.Now for exchange timestamps.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) {
		m.now = now
	}
}

// WithEmitter receives every event the matcher produces, synchronously.
func WithEmitter(emit func(Event)) MatcherOption {
	return func(m *Matcher) {
		m.emit = emit
	}
}

// WithParanoid walks the whole book after every request and panics on the
// first broken invariant.
func WithParanoid(paranoid bool) MatcherOption {
	return func(m *Matcher) {
		m.paranoid = paranoid
	}
}

// WithSequences continues numbering after seq instead of from zero.
func WithSequences(seq Sequences) MatcherOption {
	return func(m *Matcher) {
		m.orderIDs.Reset(seq.OrderID)
		m.arrivals.Reset(seq.Arrival)
		m.trades.Reset(seq.Trade)
	}
}

func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		book:     book.New(),
		orderIDs: sequence.New(0),
		arrivals: sequence.New(0),
		trades:   sequence.New(0),
		now:      time.Now,
		emit:     func(Event) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sequences returns the last values issued so far.
func (m *Matcher) Sequences() Sequences {
	return Sequences{
		OrderID: m.orderIDs.Current(),
		Arrival: m.arrivals.Current(),
		Trade:   m.trades.Current(),
	}
}

// Book exposes the underlying book for reads. Callers must not mutate it.
func (m *Matcher) Book() *book.Book {
	return m.book
}

// Submit places a new order, which can either (fully or partially):
// 1. Execute immediately against resting liquidity
// 2. Rest in the book
// 3. Be cancelled, for types that never rest
// Every check happens before the first mutation.
func (m *Matcher) Submit(req SubmitRequest) (SubmitResult, error) {
	order := common.Order{
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		Owner:     req.Owner,
		Timestamp: req.Timestamp,
	}

	if err := m.admit(&order); err != nil {
		m.emit(Event{Type: EventRejected, Order: order, Reason: err.Error()})
		return SubmitResult{Status: common.Rejected, Order: order}, err
	}

	order.ID = common.OrderID(m.orderIDs.Next())
	order.Sequence = m.arrivals.Next()
	order.ExchTimestamp = m.now()
	m.emit(Event{Type: EventAccepted, Order: order})

	if order.OrderType == common.FillOrKill && !m.fillable(&order) {
		status := m.kill(&order)
		m.verify()
		return SubmitResult{OrderID: order.ID, Status: status, Order: order}, nil
	}

	trades := m.match(&order)
	status := m.settle(&order, len(trades) > 0)
	m.verify()

	return SubmitResult{
		OrderID: order.ID,
		Status:  status,
		Trades:  trades,
		Order:   order,
	}, nil
}

// Cancel removes a resting order. Unknown and already removed ids are
// both reported as not found.
func (m *Matcher) Cancel(id common.OrderID) (common.Order, error) {
	order, ok := m.book.Remove(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %d", common.ErrNotFound, id)
	}
	order.Cancelled += order.Remaining
	order.Remaining = 0
	m.emit(Event{Type: EventCancelled, Order: order})
	m.verify()
	return order, nil
}

// Modify changes price and/or open quantity of a resting order. A pure
// decrease keeps the order's place in its queue; any other change sends it
// to the back of its (possibly new) level with a fresh arrival sequence.
// A re-priced order that now crosses trades first, as an aggressor.
func (m *Matcher) Modify(req ModifyRequest) (ModifyResult, error) {
	if req.Price == nil && req.Quantity == nil {
		return ModifyResult{Status: common.Rejected}, common.ErrEmptyModify
	}
	if req.Price != nil && *req.Price <= 0 {
		return ModifyResult{Status: common.Rejected}, fmt.Errorf("%w: got %d", common.ErrInvalidPrice, *req.Price)
	}
	if req.Price != nil && *req.Price > common.MaxPrice {
		return ModifyResult{Status: common.Rejected}, fmt.Errorf("%w: got %d", common.ErrPriceLimit, *req.Price)
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return ModifyResult{Status: common.Rejected}, fmt.Errorf("%w: got %d", common.ErrInvalidQuantity, *req.Quantity)
	}

	current, ok := m.book.Get(req.ID)
	if !ok {
		return ModifyResult{Status: common.Rejected}, fmt.Errorf("%w: %d", common.ErrNotFound, req.ID)
	}

	price, qty := current.Price, current.Remaining
	if req.Price != nil {
		price = *req.Price
	}
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	switch {
	case price == current.Price && qty == current.Remaining:
		return ModifyResult{Order: current, Status: common.Resting, PriorityKept: true}, nil

	case price == current.Price && qty < current.Remaining:
		order, err := m.book.Reduce(req.ID, qty)
		if err != nil {
			return ModifyResult{Status: common.Rejected, Order: current}, err
		}
		m.emit(Event{Type: EventModified, Order: order})
		m.verify()
		return ModifyResult{Order: order, Status: common.Resting, PriorityKept: true}, nil
	}

	if qty > current.Remaining {
		// An increase grows the order's total, which stays within MaxQuantity.
		increase := qty - current.Remaining
		if increase > common.MaxQuantity-current.Quantity {
			return ModifyResult{Status: common.Rejected, Order: current}, fmt.Errorf("%w: %d more on %d", common.ErrQuantityLimit, increase, current.Quantity)
		}
		if !m.book.Side(current.Side).Fits(increase) {
			return ModifyResult{Status: common.Rejected, Order: current}, fmt.Errorf("%w: %d more on %v", common.ErrVolumeLimit, increase, current.Side)
		}
	}

	if current.OrderType == common.PostOnly {
		if best, ok := m.book.Side(current.Side.Opposite()).BestPrice(); ok {
			moved := current
			moved.Price = price
			if moved.Crosses(best) {
				return ModifyResult{Status: common.Rejected, Order: current}, fmt.Errorf("%w: %w", common.ErrInvalidOrder, common.ErrWouldCross)
			}
		}
	}

	order, _ := m.book.Remove(req.ID)
	if qty > order.Remaining {
		order.Quantity += qty - order.Remaining
	} else {
		order.Cancelled += order.Remaining - qty
	}
	order.Price = price
	order.Remaining = qty
	order.Sequence = m.arrivals.Next()
	order.ExchTimestamp = m.now()
	m.emit(Event{Type: EventModified, Order: order})

	trades := m.match(&order)
	status := m.settle(&order, len(trades) > 0)
	m.verify()

	return ModifyResult{Order: order, Status: status, Trades: trades}, nil
}

// Snapshot aggregates the top depth levels of each side.
func (m *Matcher) Snapshot(depth int) book.Snapshot {
	snap := m.book.Snapshot(depth)
	snap.Sequence = m.arrivals.Current()
	return snap
}

// admit runs the checks that reject an order without it ever touching the
// book.
func (m *Matcher) admit(order *common.Order) error {
	if err := common.Validate(order.Side, order.OrderType, order.Price, order.Quantity); err != nil {
		return err
	}

	if order.OrderType.Rests() && !m.book.Side(order.Side).Fits(order.Quantity) {
		return fmt.Errorf("%w: %d more on %v", common.ErrVolumeLimit, order.Quantity, order.Side)
	}

	opposite := m.book.Side(order.Side.Opposite())
	switch order.OrderType {
	case common.MarketOrder:
		if opposite.Empty() {
			return common.ErrNoLiquidity
		}
	case common.PostOnly:
		if best, ok := opposite.BestPrice(); ok && order.Crosses(best) {
			return fmt.Errorf("%w: %d against %d", common.ErrWouldCross, order.Price, best)
		}
	}
	return nil
}

// match consumes the top of the opposite side while it crosses the
// incoming order. Within a level the oldest order is always hit first;
// each execution prints at the resting order's price.
func (m *Matcher) match(order *common.Order) []common.Trade {
	opposite := m.book.Side(order.Side.Opposite())

	var trades []common.Trade
	for order.Remaining > 0 {
		level, ok := opposite.Best()
		if !ok || !order.Crosses(level.Price()) {
			break
		}

		resting, _ := level.Front()
		qty := min(order.Remaining, resting.Remaining)
		order.Remaining -= qty
		order.Filled += qty
		maker := m.book.FillFront(level, qty)

		trade := common.Trade{
			Sequence:   m.trades.Next(),
			Price:      maker.Price,
			Quantity:   qty,
			TakerID:    order.ID,
			MakerID:    maker.ID,
			TakerSide:  order.Side,
			TakerOwner: order.Owner,
			MakerOwner: maker.Owner,
			Timestamp:  order.ExchTimestamp,
		}
		trades = append(trades, trade)

		m.emit(Event{Type: EventTrade, Trade: trade})
		if maker.Remaining == 0 {
			m.emit(Event{Type: EventFilled, Order: maker})
		} else {
			m.emit(Event{Type: EventPartiallyFilled, Order: maker})
		}
	}
	return trades
}

// settle decides what happens to whatever is left of the incoming order.
func (m *Matcher) settle(order *common.Order, traded bool) common.OrderStatus {
	if order.Remaining == 0 {
		m.emit(Event{Type: EventFilled, Order: *order})
		return common.Filled
	}

	if !order.OrderType.Rests() {
		// Market orders and the immediate types never rest.
		m.kill(order)
		return common.Cancelled
	}

	if err := m.book.InsertResting(*order); err != nil {
		// Matching stops only once the book no longer crosses, so this is
		// a defect rather than bad input.
		panic(fmt.Sprintf("rest order %d: %v", order.ID, err))
	}
	if traded {
		m.emit(Event{Type: EventPartiallyFilled, Order: *order})
	}
	m.emit(Event{Type: EventRested, Order: *order})
	if traded {
		return common.PartiallyFilled
	}
	return common.Resting
}

func (m *Matcher) kill(order *common.Order) common.OrderStatus {
	order.Cancelled += order.Remaining
	order.Remaining = 0
	m.emit(Event{Type: EventCancelled, Order: *order})
	return common.Cancelled
}

// fillable reports whether the crossing liquidity covers the whole order.
func (m *Matcher) fillable(order *common.Order) bool {
	var available common.Quantity
	m.book.Side(order.Side.Opposite()).Scan(func(level *book.Level) bool {
		if !order.Crosses(level.Price()) {
			return false
		}
		available += level.Volume()
		return available < order.Remaining
	})
	return available >= order.Remaining
}

func (m *Matcher) verify() {
	if !m.paranoid {
		return
	}
	if err := m.book.CheckInvariants(); err != nil {
		panic(err)
	}
}
