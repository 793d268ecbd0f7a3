package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"jormun/internal/book"
	"jormun/internal/common"
	"jormun/internal/own"
	"jormun/internal/utils"
)

const (
	maxLineSize        = 64 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrUnknownQuery       = errors.New("unknown query")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id      uuid.UUID
	conn    net.Conn
	scanner *bufio.Scanner
}

// ClientMessage links a message to the session sending it.
type ClientMessage struct {
	session *ClientSession
	message Message
}

// Server accepts TCP feed connections, decodes their messages and applies
// them to per-instrument order books. All book mutation happens on the
// session handler goroutine so the books themselves need no locking.
type Server struct {
	address            string
	port               int
	bookConfig         book.Config
	acceptedBufferNs   uint64
	pool               utils.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[uuid.UUID]*ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
	books              map[string]*book.OrderBook
	ownBooks           map[string]*own.OrderBook
}

func New(address string, port int, workers int, bookConfig book.Config, acceptedBufferNs uint64) *Server {
	if workers <= 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:          address,
		port:             port,
		bookConfig:       bookConfig,
		acceptedBufferNs: acceptedBufferNs,
		pool:             utils.NewWorkerPool(workers),
		clientSessions:   make(map[uuid.UUID]*ClientSession),
		clientMessages:   make(chan ClientMessage, 1),
		books:            make(map[string]*book.OrderBook),
		ownBooks:         make(map[string]*own.OrderBook),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			session := s.addClientSession(conn)
			log.Info().
				Str("session", session.id.String()).
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")

			// Pass over the session to be read from.
			s.pool.AddTask(session)
		}
	}
}

// Book returns the book for an instrument, if one exists. Only safe to
// call once the server has stopped, or from the session handler.
func (s *Server) Book(instrumentID string) (*book.OrderBook, bool) {
	b, ok := s.books[instrumentID]
	return b, ok
}

// sessionHandler reads off incoming messages from clients and applies them
// to the order books. It is the single writer for all books owned by the
// server. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			s.handleMessage(message)
		}
	}
}

func (s *Server) handleMessage(cm ClientMessage) {
	switch m := cm.message.(type) {
	case CreateMessage:
		if _, ok := s.books[m.InstrumentID]; ok {
			log.Warn().
				Str("instrument", m.InstrumentID).
				Msg("book already exists, ignoring create")
			return
		}
		s.books[m.InstrumentID] = book.NewWithConfig(m.InstrumentID, m.BookType, s.bookConfig)
		log.Info().
			Str("instrument", m.InstrumentID).
			Str("book_type", m.BookType.String()).
			Msg("book created")
	case DeltaMessage:
		b := s.bookFor(m.Delta.InstrumentID)
		if err := b.ApplyDelta(m.Delta); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.Delta.InstrumentID).
				Msg("error applying delta")
		}
	case DeltasMessage:
		b := s.bookFor(m.Deltas.InstrumentID)
		if err := b.ApplyDeltas(m.Deltas); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.Deltas.InstrumentID).
				Msg("error applying deltas")
		}
	case DepthMessage:
		b := s.bookFor(m.Depth.InstrumentID)
		if err := b.ApplyDepth(m.Depth); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.Depth.InstrumentID).
				Msg("error applying depth")
		}
	case QuoteMessage:
		b := s.bookFor(m.Quote.InstrumentID)
		if err := b.UpdateQuoteTick(m.Quote); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.Quote.InstrumentID).
				Msg("error applying quote")
		}
	case TradeMessage:
		b := s.bookFor(m.Trade.InstrumentID)
		if err := b.UpdateTradeTick(m.Trade); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.Trade.InstrumentID).
				Msg("error applying trade")
		}
	case OwnAddMessage:
		b := s.ownBookFor(m.InstrumentID)
		if err := b.Add(m.Order, m.TsEvent); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.InstrumentID).
				Msg("error adding own order")
		}
	case OwnUpdateMessage:
		b := s.ownBookFor(m.InstrumentID)
		if err := b.Update(m.Order, m.TsEvent); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.InstrumentID).
				Msg("error updating own order")
		}
	case OwnDeleteMessage:
		b := s.ownBookFor(m.InstrumentID)
		if err := b.Delete(m.ClientOrderID, m.TsEvent); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.InstrumentID).
				Msg("error deleting own order")
		}
	case OwnStatusMessage:
		b := s.ownBookFor(m.InstrumentID)
		if err := b.SetStatus(m.ClientOrderID, m.Status, m.TsEvent); err != nil {
			log.Error().
				Err(err).
				Str("instrument", m.InstrumentID).
				Msg("error setting own order status")
		}
	case QueryMessage:
		s.reply(cm.session, s.answerQuery(m))
	default:
		log.Warn().Str("kind", cm.message.Kind()).Msg("unhandled message")
	}
}

func (s *Server) answerQuery(q QueryMessage) Reply {
	b, ok := s.books[q.InstrumentID]
	if !ok {
		return Reply{
			Type:         q.Query,
			InstrumentID: q.InstrumentID,
			Error:        ErrUnknownInstrument.Error(),
		}
	}

	depth := q.Depth
	if depth <= 0 {
		depth = 10
	}

	reply := Reply{Type: q.Query, InstrumentID: q.InstrumentID}
	switch q.Query {
	case QueryTop:
		top := &TopOfBook{}
		if price, ok := b.BestBidPrice(); ok {
			top.BidPrice = price.String()
		}
		if size, ok := b.BestBidSize(); ok {
			top.BidSize = size.String()
		}
		if price, ok := b.BestAskPrice(); ok {
			top.AskPrice = price.String()
		}
		if size, ok := b.BestAskSize(); ok {
			top.AskSize = size.String()
		}
		if spread, ok := b.Spread(); ok {
			top.Spread = spread
		}
		if mid, ok := b.Midpoint(); ok {
			top.Midpoint = mid
		}
		reply.Top = top
	case QueryBids:
		levels, err := b.BidsAsMap(depth)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.Levels = levelEntries(levels)
	case QueryAsks:
		levels, err := b.AsksAsMap(depth)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.Levels = levelEntries(levels)
	case QueryBidsFiltered:
		levels, err := b.BidsFilteredAsMap(depth, s.ownBooks[q.InstrumentID], s.ownFilter())
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.Levels = levelEntries(levels)
	case QueryAsksFiltered:
		levels, err := b.AsksFilteredAsMap(depth, s.ownBooks[q.InstrumentID], s.ownFilter())
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.Levels = levelEntries(levels)
	case QueryPprint:
		reply.Text = b.Pprint(depth)
	default:
		reply.Error = fmt.Errorf("%w: %q", ErrUnknownQuery, q.Query).Error()
	}
	return reply
}

func (s *Server) reply(session *ClientSession, reply Reply) {
	out, err := reply.Serialize()
	if err != nil {
		log.Error().Err(err).Msg("error serializing reply")
		return
	}
	if _, err := session.conn.Write(out); err != nil {
		log.Error().
			Err(err).
			Str("session", session.id.String()).
			Msg("error writing reply")
		s.deleteClientSession(session.id)
	}
}

func levelEntries(levels *common.QuantityMap) []LevelEntry {
	entries := make([]LevelEntry, 0, levels.Len())
	levels.Each(func(price common.Price, size common.Quantity) bool {
		entries = append(entries, LevelEntry{Price: price.String(), Size: size.String()})
		return true
	})
	return entries
}

func (s *Server) bookFor(instrumentID string) *book.OrderBook {
	b, ok := s.books[instrumentID]
	if !ok {
		b = book.NewWithConfig(instrumentID, book.DefaultBookType, s.bookConfig)
		s.books[instrumentID] = b
	}
	return b
}

func (s *Server) ownBookFor(instrumentID string) *own.OrderBook {
	b, ok := s.ownBooks[instrumentID]
	if !ok {
		b = own.NewWithBuffer(instrumentID, s.acceptedBufferNs)
		s.ownBooks[instrumentID] = b
	}
	return b
}

// ownFilter is the filter applied to own orders when answering filtered
// queries. The zero buffer defers to the own book's configured default.
func (s *Server) ownFilter() own.Filter {
	return own.Filter{TsNow: uint64(time.Now().UnixNano())}
}

// handleConnection is a short-lived worker method which reads the next line
// off the session, parses and passes it forward to sessionHandler to handle
// it. If the connection dies, the client session is cleaned up. Workers never
// hold a session concurrently: each session is re-queued only after its
// current line has been read.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	// Set max read timeout.
	if err := session.conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("session", session.id.String()).
			Err(err).
			Msg("failed setting deadline for connection")
		s.deleteClientSession(session.id)
		return nil
	}

	select {
	case <-t.Dying():
		return nil
	default:
		if !session.scanner.Scan() {
			if err := session.scanner.Err(); err != nil {
				log.Error().
					Err(err).
					Str("session", session.id.String()).
					Msg("error reading from connection")
			}
			s.deleteClientSession(session.id)
			return nil
		}

		message, err := ParseMessage(session.scanner.Bytes())
		if err != nil {
			log.Error().
				Err(err).
				Str("session", session.id.String()).
				Msg("error parsing message")
			s.deleteClientSession(session.id)
			return nil
		}

		// Pass over to the message handling buffer and exit this worker.
		s.clientMessages <- ClientMessage{
			message: message,
			session: session,
		}

		// Push the session back to handle the next message.
		s.pool.AddTask(session)
	}
	return nil
}

// addClientSession is an atomic map add.
func (s *Server) addClientSession(conn net.Conn) *ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	session := &ClientSession{
		id:      uuid.New(),
		conn:    conn,
		scanner: scanner,
	}
	s.clientSessions[session.id] = session
	return session
}

// deleteClientSession is an atomic map remove.
func (s *Server) deleteClientSession(id uuid.UUID) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	session, ok := s.clientSessions[id]
	if !ok {
		return
	}
	if err := session.conn.Close(); err != nil {
		log.Error().Str("session", id.String()).Err(err).Msg("error closing connection")
	}
	delete(s.clientSessions, id)
}
