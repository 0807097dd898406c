package net

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"skoll/internal/book"
	. "skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/utils"
)

const (
	defaultNWorkers     = 10
	defaultMaxSessions  = 1024
	defaultPollInterval = 50 * time.Millisecond
	defaultWriteTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrServerFull         = errors.New("server full")
	ErrServerNotRunning   = errors.New("server not running")
)

// OrderEntry is the part of the engine the gateway drives.
type OrderEntry interface {
	SubmitOrder(ctx context.Context, req engine.SubmitRequest) (engine.SubmitResult, error)
	CancelOrder(ctx context.Context, id OrderID) (Order, error)
	ModifyOrder(ctx context.Context, req engine.ModifyRequest) (engine.ModifyResult, error)
	Snapshot(ctx context.Context, depth int) (book.Snapshot, error)
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session. Its id is the owner of every order it places.
type ClientSession struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	writeLock sync.Mutex
}

func newClientSession(conn net.Conn) *ClientSession {
	return &ClientSession{
		id:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, FrameHeaderLen+MaxFrameSize),
	}
}

func (c *ClientSession) ID() string {
	return c.id
}

// next returns the next complete frame payload. Bytes of a frame that has
// not fully arrived stay buffered, so a read deadline never splits a frame.
func (c *ClientSession) next() ([]byte, error) {
	header, err := c.reader.Peek(FrameHeaderLen)
	if err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(header))
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf, err := c.reader.Peek(FrameHeaderLen + n)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	copy(payload, buf[FrameHeaderLen:])
	_, _ = c.reader.Discard(FrameHeaderLen + n)
	return payload, nil
}

func (c *ClientSession) send(report Report) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(report.Encode())
	return err
}

// Server serves at most maxSessions clients. Each session is a single task
// in the worker pool, whose queue holds maxSessions tasks, so requeueing a
// session never waits.
type Server struct {
	address        string
	port           int
	entry          OrderEntry
	maxSessions    int
	pool           *utils.WorkerPool
	pollInterval   time.Duration
	t              *tomb.Tomb
	listener       net.Listener
	clientSessions map[string]*ClientSession
	sessionsLock   sync.Mutex
}

func New(address string, port int, entry OrderEntry, workers, maxSessions uint) *Server {
	if workers == 0 {
		workers = defaultNWorkers
	}
	if maxSessions == 0 {
		maxSessions = defaultMaxSessions
	}
	return &Server{
		address:        address,
		port:           port,
		entry:          entry,
		maxSessions:    int(maxSessions),
		pool:           utils.NewWorkerPool(workers, maxSessions),
		pollInterval:   defaultPollInterval,
		clientSessions: make(map[string]*ClientSession),
	}
}

// Start opens the listener and begins serving clients in the background.
// The server stops when ctx is done or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.listener = listener
	s.t, _ = tomb.WithContext(ctx)

	// Start the worker pool.
	s.pool.Setup(s.t, s.handleConnection)

	// Tear down the listener and every session once dying.
	s.t.Go(func() error {
		<-s.t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeClientSessions()
		return nil
	})

	s.t.Go(s.acceptLoop)

	log.Info().
		Str("address", listener.Addr().String()).
		Int("workers", s.pool.Size()).
		Int("max_sessions", s.pool.Capacity()).
		Msg("server running")
	return nil
}

// Addr is the bound listener address, useful with port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown() {
	if s.t == nil {
		return
	}
	log.Info().Msg("server shutting down")
	s.t.Kill(nil)
}

func (s *Server) Wait() error {
	if s.t == nil {
		return ErrServerNotRunning
	}
	err := s.t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Pending is the number of sessions waiting for a worker.
func (s *Server) Pending() int {
	return s.pool.Pending()
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	return len(s.clientSessions)
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		// Only this loop adds sessions, so the count cannot grow past the
		// check below.
		if s.Sessions() >= s.maxSessions {
			s.refuse(conn)
			continue
		}

		// We expect to potentially maintain a long TCP session.
		session := newClientSession(conn)
		s.addClientSession(session)
		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Str("session", session.id).
			Msg("new client added")

		// Pass over the connection to be read from.
		if err := s.pool.AddTask(session); err != nil {
			s.dropClientSession(session)
			return nil
		}
	}
}

// refuse tells a client over the session limit why it is being hung up on.
func (s *Server) refuse(conn net.Conn) {
	log.Warn().
		Str("address", conn.RemoteAddr().String()).
		Int("max_sessions", s.maxSessions).
		Msg("refusing client, server full")
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err == nil {
		_, _ = conn.Write(ErrorReport{Err: ErrServerFull.Error()}.Encode())
	}
	_ = conn.Close()
}

// ReportTrade sends an execution report to each party of the trade that
// is still connected.
func (s *Server) ReportTrade(trade Trade) error {
	taker, maker := generateTradeReports(trade)

	var errs []error
	for _, pending := range []struct {
		owner  string
		report ExecutionReport
	}{
		{trade.TakerOwner, taker},
		{trade.MakerOwner, maker},
	} {
		session, ok := s.clientSession(pending.owner)
		if !ok {
			continue
		}
		if err := session.send(pending.report); err != nil {
			// The session's worker notices the closed connection and drops
			// it; dropping here would free its slot while its task is live.
			_ = session.conn.Close()
			errs = append(errs, fmt.Errorf("unable to send report to %s: %w", pending.owner, err))
		}
	}
	return errors.Join(errs...)
}

// ReportOrder is a no-op: clients learn about their orders through acks
// and execution reports.
func (s *Server) ReportOrder(engine.Event) error {
	return nil
}

// handleConnection is a short-lived worker method which reads the next
// message off the session, handles it and pushes the session back to the
// pool. If the connection dies, the client session is cleaned up.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	if err := session.conn.SetReadDeadline(time.Now().Add(s.pollInterval)); err != nil {
		log.Error().
			Str("session", session.id).
			Err(err).
			Msg("failed setting deadline for connection")
		s.dropClientSession(session)
		return nil
	}

	payload, err := session.next()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		// Nothing to read yet.
		return s.requeue(session)
	case errors.Is(err, io.EOF):
		log.Info().Str("session", session.id).Msg("client disconnected")
		s.dropClientSession(session)
		return nil
	default:
		log.Error().
			Err(err).
			Str("session", session.id).
			Msg("error reading from connection")
		s.dropClientSession(session)
		return nil
	}

	message, err := parseMessage(payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("session", session.id).
			Msg("error parsing message")
		if err := session.send(ErrorReport{Err: err.Error()}); err != nil {
			s.dropClientSession(session)
			return nil
		}
		return s.requeue(session)
	}

	if report := s.handleMessage(t.Context(nil), session, message); report != nil {
		if err := session.send(report); err != nil {
			log.Error().Err(err).Str("session", session.id).Msg("unable to send report")
			s.dropClientSession(session)
			return nil
		}
	}
	return s.requeue(session)
}

func (s *Server) requeue(session *ClientSession) error {
	if err := s.pool.AddTask(session); err != nil {
		s.dropClientSession(session)
	}
	return nil
}

// handleMessage turns one client request into an engine call and returns
// the report to send back, if any.
func (s *Server) handleMessage(ctx context.Context, session *ClientSession, message Message) Report {
	log.Debug().
		Str("session", session.id).
		Str("type", message.GetType().String()).
		Msg("new message")

	switch m := message.(type) {
	case NewOrderMessage:
		res, err := s.entry.SubmitOrder(ctx, engine.SubmitRequest{
			Side:      m.Side,
			OrderType: m.OrderType,
			Price:     m.Price,
			Quantity:  m.Quantity,
			Owner:     session.id,
			Timestamp: time.Now(),
		})
		if err != nil {
			return ErrorReport{ClientRef: m.ClientRef, RequestType: NewOrder, Err: err.Error()}
		}
		return ackFromOrder(m.ClientRef, NewOrder, res.Status, res.Order)

	case CancelOrderMessage:
		order, err := s.entry.CancelOrder(ctx, m.OrderID)
		if err != nil {
			return ErrorReport{ClientRef: m.ClientRef, RequestType: CancelOrder, Err: err.Error()}
		}
		return ackFromOrder(m.ClientRef, CancelOrder, Cancelled, order)

	case ModifyOrderMessage:
		req := engine.ModifyRequest{ID: m.OrderID}
		if m.Flags&ModifyPrice != 0 {
			req.Price = &m.Price
		}
		if m.Flags&ModifyQuantity != 0 {
			req.Quantity = &m.Quantity
		}
		res, err := s.entry.ModifyOrder(ctx, req)
		if err != nil {
			return ErrorReport{ClientRef: m.ClientRef, RequestType: ModifyOrder, Err: err.Error()}
		}
		return ackFromOrder(m.ClientRef, ModifyOrder, res.Status, res.Order)

	case SnapshotRequestMessage:
		depth := int(m.Depth)
		if depth == 0 || depth > MaxSnapshotDepth {
			depth = MaxSnapshotDepth
		}
		snap, err := s.entry.Snapshot(ctx, depth)
		if err != nil {
			return ErrorReport{ClientRef: m.ClientRef, RequestType: SnapshotRequest, Err: err.Error()}
		}
		return SnapshotReport{ClientRef: m.ClientRef, Sequence: snap.Sequence, Bids: snap.Bids, Asks: snap.Asks}

	default:
		// Heartbeats need no answer.
		return nil
	}
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(session *ClientSession) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	s.clientSessions[session.id] = session
}

func (s *Server) clientSession(id string) (*ClientSession, bool) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	session, ok := s.clientSessions[id]
	return session, ok
}

// dropClientSession is an atomic map remove that also closes the
// connection. Dropping a session twice is harmless.
func (s *Server) dropClientSession(session *ClientSession) {
	s.sessionsLock.Lock()
	_, ok := s.clientSessions[session.id]
	delete(s.clientSessions, session.id)
	s.sessionsLock.Unlock()

	if !ok {
		return
	}
	if err := session.conn.Close(); err != nil {
		log.Debug().Err(err).Str("session", session.id).Msg("closing connection")
	}
}

func (s *Server) closeClientSessions() {
	s.sessionsLock.Lock()
	sessions := make([]*ClientSession, 0, len(s.clientSessions))
	for _, session := range s.clientSessions {
		sessions = append(sessions, session)
	}
	s.sessionsLock.Unlock()

	for _, session := range sessions {
		s.dropClientSession(session)
	}
}
