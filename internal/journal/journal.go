package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"skoll/internal/common"
	"skoll/internal/engine"
)

var ErrNotFound = errors.New("journal entry not found")

const (
	tradePrefix = "trade/"
	orderPrefix = "order/"
	arrivalKey  = "meta/arrival"
)

// Journal persists the event stream: every trade under its sequence and
// the latest state of every order under its id. It is an engine.Reporter
// and an engine.Flusher: events are staged in a batch and only reach the
// disk, and the read methods, on Flush.
type Journal struct {
	db   *pebble.DB
	sync bool

	batch   *pebble.Batch
	arrival uint64 // highest arrival sequence staged or committed
	stored  uint64 // highest arrival sequence written under arrivalKey
}

type Option func(*Journal)

// WithSync makes every flush wait for the disk.
func WithSync(sync bool) Option {
	return func(j *Journal) {
		j.sync = sync
	}
}

func Open(dir string, opts ...Option) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{db: db, sync: true}
	for _, opt := range opts {
		opt(j)
	}
	j.batch = db.NewBatch()

	if j.stored, err = j.lastArrival(); err != nil {
		return nil, errors.Join(err, j.batch.Close(), db.Close())
	}
	j.arrival = j.stored
	return j, nil
}

// Close flushes whatever is staged and closes the store.
func (j *Journal) Close() error {
	err := j.Flush()
	return errors.Join(err, j.batch.Close(), j.db.Close())
}

func (j *Journal) writeOptions() *pebble.WriteOptions {
	if j.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (j *Journal) ReportTrade(trade common.Trade) error {
	value, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return j.batch.Set(keyFor(tradePrefix, trade.Sequence), value, nil)
}

// ReportOrder records the order's state after the event. Rejected orders
// never got an id and are not kept.
func (j *Journal) ReportOrder(event engine.Event) error {
	if event.Order.ID == 0 {
		return nil
	}
	value, err := json.Marshal(event.Order)
	if err != nil {
		return err
	}
	j.arrival = max(j.arrival, event.Order.Sequence)
	return j.batch.Set(keyFor(orderPrefix, uint64(event.Order.ID)), value, nil)
}

// Flush commits the staged events in one write.
func (j *Journal) Flush() error {
	if j.arrival > j.stored {
		if err := j.batch.Set([]byte(arrivalKey), []byte(strconv.FormatUint(j.arrival, 10)), nil); err != nil {
			return err
		}
	}
	if j.batch.Empty() {
		return nil
	}

	err := j.batch.Commit(j.writeOptions())
	if closeErr := j.batch.Close(); err == nil {
		err = closeErr
	}
	j.batch = j.db.NewBatch()
	if err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	j.stored = j.arrival
	return nil
}

// Sequences returns the last order id, arrival and trade sequence on disk,
// for the engine to continue from after a restart.
func (j *Journal) Sequences() (engine.Sequences, error) {
	orderID, err := j.lastKey(orderPrefix)
	if err != nil {
		return engine.Sequences{}, err
	}
	trade, err := j.LastTradeSequence()
	if err != nil {
		return engine.Sequences{}, err
	}
	arrival, err := j.lastArrival()
	if err != nil {
		return engine.Sequences{}, err
	}
	return engine.Sequences{OrderID: orderID, Arrival: arrival, Trade: trade}, nil
}

// Order returns the last recorded state of an order.
func (j *Journal) Order(id common.OrderID) (common.Order, error) {
	val, closer, err := j.db.Get(keyFor(orderPrefix, uint64(id)))
	if errors.Is(err, pebble.ErrNotFound) {
		return common.Order{}, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	if err != nil {
		return common.Order{}, err
	}
	defer closer.Close()

	var order common.Order
	if err := json.Unmarshal(val, &order); err != nil {
		return common.Order{}, err
	}
	return order, nil
}

// ScanTrades calls fn for every trade with a sequence of at least from,
// in sequence order, until fn returns an error.
func (j *Journal) ScanTrades(from uint64, fn func(trade common.Trade) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(tradePrefix, from),
		UpperBound: upperBound(tradePrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var trade common.Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			return fmt.Errorf("decode %s: %w", bytes.Clone(iter.Key()), err)
		}
		if err := fn(trade); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastTradeSequence is the highest journaled trade sequence, zero when
// there is none.
func (j *Journal) LastTradeSequence() (uint64, error) {
	return j.lastKey(tradePrefix)
}

// LastTrade returns the most recent journaled trade, if any.
func (j *Journal) LastTrade() (common.Trade, bool, error) {
	seq, err := j.LastTradeSequence()
	if err != nil || seq == 0 {
		return common.Trade{}, false, err
	}

	var (
		last  common.Trade
		found bool
	)
	err = j.ScanTrades(seq, func(trade common.Trade) error {
		last, found = trade, true
		return nil
	})
	return last, found, err
}

// lastKey returns the largest number stored under prefix, zero when there
// is none.
func (j *Journal) lastKey(prefix string) (uint64, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	n, err := strconv.ParseUint(string(bytes.TrimPrefix(iter.Key(), []byte(prefix))), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode key %s: %w", bytes.Clone(iter.Key()), err)
	}
	return n, nil
}

func (j *Journal) lastArrival() (uint64, error) {
	val, closer, err := j.db.Get([]byte(arrivalKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return strconv.ParseUint(string(val), 10, 64)
}

func keyFor(prefix string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, n))
}

// upperBound is the first key past every key under prefix. Prefixes end
// in '/', so bumping that byte is enough.
func upperBound(prefix string) []byte {
	bound := []byte(prefix)
	bound[len(bound)-1]++
	return bound
}
