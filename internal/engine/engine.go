package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"skoll/internal/book"
	"skoll/internal/common"
)

// This is the main matching engine front door. Any number of producers
// may call it concurrently; every request is funnelled through one bounded
// queue and applied by a single goroutine, so the book sees a strict total
// order of requests.

type Options struct {
	QueueSize   int  // Inbound request queue capacity
	EventBuffer int  // Outbound event buffer before matching waits on reporters
	BlockOnFull bool // Wait for queue space instead of failing with ErrQueueFull
	Paranoid    bool // Check book invariants after every request

	// Sequences resumes numbering after a previous run.
	Sequences Sequences
}

func DefaultOptions() Options {
	return Options{
		QueueSize:   4096,
		EventBuffer: 16384,
	}
}

type Stats struct {
	Requests   uint64
	Trades     uint64
	Rejected   uint64
	QueueFull  uint64
	QueueDepth int
}

type Engine struct {
	opts    Options
	matcher *Matcher

	requests  chan request
	events    chan Event
	applied   chan struct{} // Closed once the matching goroutine has exited
	reporters []Reporter

	t *tomb.Tomb

	nRequests  atomic.Uint64
	nTrades    atomic.Uint64
	nRejected  atomic.Uint64
	nQueueFull atomic.Uint64
}

func New(opts Options, reporters ...Reporter) *Engine {
	defaults := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaults.EventBuffer
	}

	engine := &Engine{
		opts:      opts,
		requests:  make(chan request, opts.QueueSize),
		events:    make(chan Event, opts.EventBuffer),
		applied:   make(chan struct{}),
		reporters: reporters,
	}
	engine.matcher = NewMatcher(
		WithEmitter(engine.publish),
		WithParanoid(opts.Paranoid),
		WithSequences(opts.Sequences),
	)
	return engine
}

// SetReporter adds a consumer of the event stream. It must be called
// before Start.
func (engine *Engine) SetReporter(reporter Reporter) {
	engine.reporters = append(engine.reporters, reporter)
}

// Start launches the matching goroutine and the event dispatcher. The
// engine stops when ctx is done or Stop is called.
func (engine *Engine) Start(ctx context.Context) {
	engine.t, _ = tomb.WithContext(ctx)
	engine.t.Go(engine.run)
	engine.t.Go(engine.dispatch)
	log.Info().
		Int("queue_size", engine.opts.QueueSize).
		Bool("block_on_full", engine.opts.BlockOnFull).
		Msg("matching engine started")
}

// Stop asks both goroutines to finish. Requests still queued are not
// applied and their callers get ErrEngineStopped.
func (engine *Engine) Stop() {
	if engine.t != nil {
		engine.t.Kill(nil)
	}
}

// Wait blocks until the engine has fully stopped.
func (engine *Engine) Wait() error {
	if engine.t == nil {
		return nil
	}
	return engine.t.Wait()
}

// SubmitOrder places a new order and waits for its outcome.
func (engine *Engine) SubmitOrder(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	r, err := engine.call(ctx, request{kind: requestSubmit, submit: req})
	if err != nil {
		return SubmitResult{Status: common.Rejected}, err
	}
	return r.submit, r.err
}

// CancelOrder removes a resting order.
func (engine *Engine) CancelOrder(ctx context.Context, id common.OrderID) (common.Order, error) {
	r, err := engine.call(ctx, request{kind: requestCancel, id: id})
	if err != nil {
		return common.Order{}, err
	}
	return r.order, r.err
}

// ModifyOrder changes price and/or open quantity of a resting order.
func (engine *Engine) ModifyOrder(ctx context.Context, req ModifyRequest) (ModifyResult, error) {
	r, err := engine.call(ctx, request{kind: requestModify, modify: req})
	if err != nil {
		return ModifyResult{Status: common.Rejected}, err
	}
	return r.modify, r.err
}

// Snapshot returns depth levels per side. It is served by the matching
// goroutine, so it always reflects the book between two requests.
func (engine *Engine) Snapshot(ctx context.Context, depth int) (book.Snapshot, error) {
	r, err := engine.call(ctx, request{kind: requestSnapshot, depth: depth})
	if err != nil {
		return book.Snapshot{}, err
	}
	return r.snapshot, r.err
}

func (engine *Engine) Stats() Stats {
	return Stats{
		Requests:   engine.nRequests.Load(),
		Trades:     engine.nTrades.Load(),
		Rejected:   engine.nRejected.Load(),
		QueueFull:  engine.nQueueFull.Load(),
		QueueDepth: len(engine.requests),
	}
}

// call enqueues a request and waits for the matching goroutine to answer.
// Once dequeued a request always runs to completion, so ctx only bounds
// the wait for queue space.
func (engine *Engine) call(ctx context.Context, req request) (reply, error) {
	if engine.t == nil {
		return reply{}, common.ErrEngineStopped
	}
	req.reply = make(chan reply, 1)
	if err := engine.enqueue(ctx, req); err != nil {
		return reply{}, err
	}

	select {
	case r := <-req.reply:
		return r, nil
	case <-engine.t.Dead():
		// The matcher is gone; it either answered before leaving or never
		// saw the request.
		select {
		case r := <-req.reply:
			return r, nil
		default:
			return reply{}, common.ErrEngineStopped
		}
	}
}

func (engine *Engine) enqueue(ctx context.Context, req request) error {
	select {
	case <-engine.t.Dying():
		return common.ErrEngineStopped
	default:
	}

	select {
	case engine.requests <- req:
		return nil
	default:
	}

	if !engine.opts.BlockOnFull {
		engine.nQueueFull.Add(1)
		return common.ErrQueueFull
	}

	select {
	case engine.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-engine.t.Dying():
		return common.ErrEngineStopped
	}
}

// run is the only goroutine that ever touches the book.
func (engine *Engine) run() error {
	defer close(engine.applied)
	for {
		select {
		case <-engine.t.Dying():
			seq := engine.matcher.Sequences()
			log.Info().
				Int("dropped", len(engine.requests)).
				Uint64("last_order_id", seq.OrderID).
				Uint64("last_trade", seq.Trade).
				Msg("matching engine stopping")
			return nil
		case req := <-engine.requests:
			req.reply <- engine.apply(req)
		}
	}
}

func (engine *Engine) apply(req request) reply {
	engine.nRequests.Add(1)

	var r reply
	switch req.kind {
	case requestSubmit:
		r.submit, r.err = engine.matcher.Submit(req.submit)
		engine.nTrades.Add(uint64(len(r.submit.Trades)))
	case requestCancel:
		r.order, r.err = engine.matcher.Cancel(req.id)
	case requestModify:
		r.modify, r.err = engine.matcher.Modify(req.modify)
		engine.nTrades.Add(uint64(len(r.modify.Trades)))
	case requestSnapshot:
		r.snapshot = engine.matcher.Snapshot(req.depth)
	}

	if r.err != nil {
		engine.nRejected.Add(1)
		level := log.Debug()
		if !errors.Is(r.err, common.ErrNotFound) && !errors.Is(r.err, common.ErrInvalidOrder) {
			level = log.Info()
		}
		level.Err(r.err).Int("kind", int(req.kind)).Msg("request rejected")
	}
	return r
}

// publish hands an event to the dispatcher. Matching waits when reporters
// fall behind by more than the event buffer; events are never dropped.
func (engine *Engine) publish(event Event) {
	engine.events <- event
}

// dispatch fans events out to the reporters until the matching goroutine
// has exited and every buffered event has been delivered.
func (engine *Engine) dispatch() error {
	for {
		select {
		case event := <-engine.events:
			engine.report(event)
			if len(engine.events) == 0 {
				engine.flush()
			}
		case <-engine.applied:
			for {
				select {
				case event := <-engine.events:
					engine.report(event)
				default:
					engine.flush()
					return nil
				}
			}
		}
	}
}

func (engine *Engine) flush() {
	for _, reporter := range engine.reporters {
		flusher, ok := reporter.(Flusher)
		if !ok {
			continue
		}
		if err := flusher.Flush(); err != nil {
			log.Error().Err(err).Msg("reporter flush failed")
		}
	}
}

func (engine *Engine) report(event Event) {
	for _, reporter := range engine.reporters {
		if err := deliver(reporter, event); err != nil {
			log.Error().
				Err(err).
				Str("event", event.Type.String()).
				Uint64("order", uint64(event.Order.ID)).
				Msg("reporter failed")
		}
	}
}
