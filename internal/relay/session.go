package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"
	"TradeDesk/internal/service/finnhub"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/util"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// event is processed by the session loop. gen ties upstream events to the connection that produced them.
type event interface{}

type (
	evSubscribe struct{ symbols []string }
	evSnapshots struct {
		records []*models.PriceRecord
		symbols []string
	}
	evUpstreamDialed struct {
		gen  int
		conn drepo.UpstreamConn
		err  error
	}
	evUpstreamFrame struct {
		gen  int
		data []byte
	}
	evUpstreamClosed struct {
		gen int
		err error
	}
	evClientClosed struct{}
)

// Session bridges one client connection to one upstream connection.
// Everything below the channels is owned by the loop goroutine.
type Session struct {
	id      string
	relay   *Relay
	cfg     Config
	client  *websocket.Conn
	log     *applogger.Logger
	send    chan []byte
	events  chan event
	closed  chan struct{}
	closeMu sync.Once
	ctx     context.Context
	cancel  context.CancelFunc

	state     State
	prices    map[string]*models.PriceRecord
	symbols   []string
	symbolSet map[string]struct{}
	upstream  drepo.UpstreamConn
	gen       int
	attempts  int
	reconnect *time.Timer
	heartbeat *time.Ticker
}

func newSession(r *Relay, conn *websocket.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		relay:     r,
		cfg:       r.cfg,
		client:    conn,
		log:       r.log.With(applogger.String("session", id)),
		send:      make(chan []byte, r.cfg.SendBuffer),
		events:    make(chan event, 64),
		closed:    make(chan struct{}),
		prices:    make(map[string]*models.PriceRecord),
		symbolSet: make(map[string]struct{}),
	}
}

func (s *Session) run(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	defer s.cancel()

	s.log.Debug("relay session started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	go func() {
		defer wg.Done()
		s.loop()
	}()

	// unblock the read pump when the server shuts down
	go func() {
		select {
		case <-s.ctx.Done():
			_ = s.client.Close()
		case <-s.closed:
		}
	}()

	s.readPump()
	s.post(evClientClosed{})
	wg.Wait()
	_ = s.client.Close()

	s.log.Debug("relay session ended")
}

// readPump parses client frames. Ping and malformed input are answered here, subscribe goes to the loop.
func (s *Session) readPump() {
	for {
		_, b, err := s.client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("client read", applogger.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(b, &msg); err != nil {
			s.sendJSON(ErrorMessage{Type: TypeError, Error: errInvalidMessage})
			continue
		}

		switch msg.Type {
		case TypePing:
			s.sendJSON(Pong{Type: TypePong, Timestamp: util.NowMillis()})
		case TypeSubscribe:
			s.post(evSubscribe{symbols: NormalizeSymbols(msg.Symbols)})
		default:
			s.sendJSON(ErrorMessage{Type: TypeError, Error: errUnknownType})
		}
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.closed:
			_ = s.client.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-s.send:
			select {
			case <-s.closed:
				continue
			default:
			}
			_ = s.client.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.client.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Debug("client write", applogger.Error(err))
				s.shutdown()
				_ = s.client.Close()
				return
			}
		}
	}
}

// sendJSON queues a frame for the client. It is a no-op after the session closed and
// drops the frame when the client is too slow to drain its queue.
func (s *Session) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("relay encode", applogger.Error(err))
		return
	}
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.send <- b:
	case <-s.closed:
	default:
		s.relay.metrics.RecordError("client_send_dropped")
	}
}

// post hands ev to the loop. It reports false when the session is already closed.
func (s *Session) post(ev event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	}
}

func (s *Session) shutdown() {
	s.closeMu.Do(func() { close(s.closed) })
}

func (s *Session) loop() {
	defer s.teardown()

	for {
		var heartbeat, reconnect <-chan time.Time
		if s.heartbeat != nil {
			heartbeat = s.heartbeat.C
		}
		if s.reconnect != nil {
			reconnect = s.reconnect.C
		}

		select {
		case ev := <-s.events:
			if _, done := ev.(evClientClosed); done {
				return
			}
			s.handle(ev)
		case <-heartbeat:
			if s.upstream != nil {
				if err := s.upstream.Ping(); err != nil {
					s.log.Warn("upstream heartbeat", applogger.Error(err))
				}
			}
		case <-reconnect:
			s.reconnect = nil
			s.dial()
		case <-s.closed:
			return
		}
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case evSubscribe:
		s.onSubscribe(e.symbols)
	case evSnapshots:
		s.onSnapshots(e)
	case evUpstreamDialed:
		s.onDialed(e)
	case evUpstreamFrame:
		if e.gen == s.gen {
			s.onFrame(e.data)
		}
	case evUpstreamClosed:
		if e.gen == s.gen {
			s.onUpstreamClosed(e.err)
		}
	}
}

func (s *Session) onSubscribe(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	if s.upstream == nil && (s.state == StateIdle || s.state == StateUpstreamClosed) {
		s.dial()
	}
	go s.fetchSnapshots(symbols)
}

// fetchSnapshots fetches quotes in parallel and reports them to the loop in request order.
func (s *Session) fetchSnapshots(symbols []string) {
	records := make([]*models.PriceRecord, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SnapshotTimeout)
			defer cancel()

			start := time.Now()
			rec, err := s.relay.quotes.Quote(ctx, sym)
			s.relay.metrics.RecordLatency("snapshot", time.Since(start).Seconds())
			if err != nil {
				s.relay.metrics.RecordError("snapshot")
				s.log.Warn("snapshot fetch failed", applogger.String("symbol", sym), applogger.Error(err))
				return
			}
			records[i] = rec
		}(i, sym)
	}
	wg.Wait()
	s.post(evSnapshots{records: records, symbols: symbols})
}

// onSnapshots seeds the cache and emits one update per successful snapshot, then forwards
// the subscription upstream so no live tick for these symbols precedes its snapshot.
func (s *Session) onSnapshots(e evSnapshots) {
	for _, rec := range e.records {
		if rec == nil {
			continue
		}
		s.prices[rec.Symbol] = rec
		s.sendJSON(PriceUpdate{Type: TypePriceUpdate, Symbol: rec.Symbol, Data: rec})
	}

	for _, sym := range e.symbols {
		if _, ok := s.symbolSet[sym]; ok {
			continue
		}
		s.symbolSet[sym] = struct{}{}
		s.symbols = append(s.symbols, sym)
		if s.upstream != nil && s.state == StateUpstreamOpen {
			if err := s.upstream.Subscribe(sym); err != nil {
				s.log.Warn("upstream subscribe", applogger.String("symbol", sym), applogger.Error(err))
			}
		}
	}
}

func (s *Session) dial() {
	s.gen++
	gen := s.gen
	s.state = StateUpstreamConnecting
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
		defer cancel()
		conn, err := s.relay.dialer.Dial(ctx)
		if !s.post(evUpstreamDialed{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close(websocket.CloseNormalClosure)
		}
	}()
}

func (s *Session) onDialed(e evUpstreamDialed) {
	if e.gen != s.gen {
		if e.conn != nil {
			_ = e.conn.Close(websocket.CloseNormalClosure)
		}
		return
	}
	if e.err != nil {
		s.log.Warn("upstream dial failed", applogger.Int("attempt", s.attempts), applogger.Error(e.err))
		s.scheduleReconnect()
		return
	}

	if s.attempts > 0 {
		s.relay.metrics.RecordReconnect("ok")
	}
	s.attempts = 0
	s.upstream = e.conn
	s.state = StateUpstreamOpen
	s.heartbeat = time.NewTicker(s.cfg.PingInterval)
	go s.readUpstream(e.gen, e.conn)

	for _, sym := range s.symbols {
		if err := s.upstream.Subscribe(sym); err != nil {
			s.log.Warn("upstream subscribe", applogger.String("symbol", sym), applogger.Error(err))
		}
	}
	s.log.Info("upstream connected", applogger.Int("symbols", len(s.symbols)))
	s.debug("upstream connected")
}

func (s *Session) readUpstream(gen int, conn drepo.UpstreamConn) {
	for {
		b, err := conn.ReadMessage()
		if err != nil {
			s.post(evUpstreamClosed{gen: gen, err: err})
			return
		}
		s.post(evUpstreamFrame{gen: gen, data: b})
	}
}

func (s *Session) onFrame(b []byte) {
	f, err := finnhub.ParseFrame(b)
	if err != nil {
		s.relay.metrics.RecordError("upstream_parse")
		s.log.Warn("upstream frame", applogger.Error(err))
		return
	}

	switch f.Type {
	case "trade":
		for _, t := range f.Trades {
			s.onTrade(t)
		}
	case "ping":
	case "error":
		s.log.Warn("upstream error frame", applogger.String("msg", f.Error))
	default:
		s.log.Debug("upstream frame ignored", applogger.String("type", f.Type))
	}
}

func (s *Session) onTrade(t models.Trade) {
	now := util.NowMillis()
	rec, ok := s.prices[t.Symbol]
	if !ok {
		rec = models.NewPriceRecordFromTrade(t.Symbol, t.Price, now)
		s.prices[t.Symbol] = rec
	}
	rec.ApplyTrade(t.Price, now)

	s.sendJSON(PriceUpdate{Type: TypePriceUpdate, Symbol: t.Symbol, Data: rec})
	s.relay.metrics.RecordLastPrice(t.Symbol, t.Price)

	cp := *rec
	s.relay.sink.Enqueue(&cp)
}

func (s *Session) onUpstreamClosed(err error) {
	s.stopHeartbeat()
	if s.upstream != nil {
		_ = s.upstream.Close(websocket.CloseNormalClosure)
		s.upstream = nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.state = StateUpstreamClosed
		s.log.Info("upstream closed normally")
		s.debug("upstream closed")
		return
	}

	s.log.Warn("upstream closed", applogger.Error(err))
	s.debug(fmt.Sprintf("upstream closed: %v", err))
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.stopHeartbeat()
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		s.state = StatePermanentlyFailed
		s.relay.metrics.RecordReconnect("exhausted")
		s.log.Error("upstream permanently failed", applogger.Int("attempts", s.cfg.MaxAttempts))
		s.sendJSON(ErrorMessage{
			Type:  TypeError,
			Error: fmt.Sprintf("upstream connection failed after %d attempts", s.cfg.MaxAttempts),
		})
		return
	}

	delay := BackoffDelay(s.attempts, s.cfg.BackoffBase, s.cfg.BackoffMax)
	s.state = StateReconnecting
	s.reconnect = time.NewTimer(delay)
	s.relay.metrics.RecordReconnect("scheduled")
	s.log.Info("upstream reconnect scheduled",
		applogger.Int("attempt", s.attempts),
		applogger.Duration("delay_ms", delay),
	)
}

func (s *Session) stopHeartbeat() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
}

// teardown runs on the loop goroutine when the client went away.
func (s *Session) teardown() {
	s.shutdown()
	s.drainDialed()
	s.stopHeartbeat()
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.upstream != nil {
		for _, sym := range s.symbols {
			if err := s.upstream.Unsubscribe(sym); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.log.Debug("upstream unsubscribe", applogger.String("symbol", sym), applogger.Error(err))
				break
			}
		}
		_ = s.upstream.Close(websocket.CloseNormalClosure)
		s.upstream = nil
	}
	s.cancel()
}

// drainDialed closes connections from dials that completed after the loop stopped reading.
func (s *Session) drainDialed() {
	for {
		select {
		case ev := <-s.events:
			if d, ok := ev.(evUpstreamDialed); ok && d.conn != nil {
				_ = d.conn.Close(websocket.CloseNormalClosure)
			}
		default:
			return
		}
	}
}

func (s *Session) debug(msg string) {
	if !s.cfg.Debug {
		return
	}
	s.sendJSON(DebugMessage{Type: TypeDebug, Message: msg, Timestamp: util.ISOTime(time.Now())})
}
