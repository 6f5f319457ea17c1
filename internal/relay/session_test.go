package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// fakeUpstream is a scripted upstream connection.
type fakeUpstream struct {
	frames    chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	subs      []string
	unsubs    []string
	pings     int
	closeCode int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		frames:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeUpstream) Subscribe(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
	return nil
}

func (f *fakeUpstream) Unsubscribe(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, s)
	return nil
}

func (f *fakeUpstream) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeUpstream) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.frames:
		return b, nil
	case err := <-f.readErr:
		return nil, err
	case <-f.closed:
		return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeUpstream) Close(code int) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeUpstream) snapshot() (subs, unsubs []string, pings, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs...), append([]string(nil), f.unsubs...), f.pings, f.closeCode
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
	conns []*fakeUpstream
}

func (d *fakeDialer) Dial(context.Context) (drepo.UpstreamConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	c := newFakeUpstream()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeUpstream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeQuotes map[string]*models.PriceRecord

func (q fakeQuotes) Quote(_ context.Context, symbol string) (*models.PriceRecord, error) {
	rec, ok := q[symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	cp := *rec
	return &cp, nil
}

type fakeSink struct {
	mu   sync.Mutex
	recs []*models.PriceRecord
}

func (s *fakeSink) Enqueue(r *models.PriceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
}

func (s *fakeSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type harness struct {
	t      *testing.T
	dialer *fakeDialer
	sink   *fakeSink
	relay  *Relay
	client *websocket.Conn
	done   chan struct{}
}

func newHarness(t *testing.T, quotes fakeQuotes, dialer *fakeDialer, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, dialer: dialer, sink: &fakeSink{}, done: make(chan struct{})}
	opts = append([]Option{WithBackoff(time.Millisecond, 4*time.Millisecond)}, opts...)
	h.relay = New(dialer, quotes, h.sink, nil, nil, opts...)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.relay.Serve(context.Background(), conn)
		close(h.done)
	}))
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	h.client = c
	t.Cleanup(func() { _ = c.Close() })
	return h
}

func (h *harness) write(v interface{}) {
	h.t.Helper()
	if err := h.client.WriteJSON(v); err != nil {
		h.t.Fatalf("client write: %v", err)
	}
}

func (h *harness) read() map[string]interface{} {
	h.t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]interface{}
	if err := h.client.ReadJSON(&m); err != nil {
		h.t.Fatalf("client read: %v", err)
	}
	return m
}

// expectSilence asserts nothing arrives within d.
func (h *harness) expectSilence(d time.Duration) {
	h.t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(d))
	var m map[string]interface{}
	if err := h.client.ReadJSON(&m); err == nil {
		h.t.Fatalf("unexpected message %v", m)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func quotesFixture() fakeQuotes {
	return fakeQuotes{
		"AAPL": {Symbol: "AAPL", CurrentPrice: 190, PreviousClose: 188, High: 191, Low: 187, Open: 188, Timestamp: 1},
		"MSFT": {Symbol: "MSFT", CurrentPrice: 410, PreviousClose: 400, High: 412, Low: 399, Open: 401, Timestamp: 1},
	}
}

func TestPingAnsweredWithoutUpstream(t *testing.T) {
	h := newHarness(t, quotesFixture(), &fakeDialer{fail: true})

	h.write(ClientMessage{Type: TypePing})
	m := h.read()
	if m["type"] != TypePong {
		t.Fatalf("expected pong, got %v", m)
	}
	if ts, _ := m["timestamp"].(float64); ts <= 0 {
		t.Fatalf("expected server timestamp, got %v", m["timestamp"])
	}
	h.expectSilence(50 * time.Millisecond)
	if h.dialer.count() != 0 {
		t.Fatalf("ping must not open upstream")
	}
}

func TestInvalidAndUnknownMessages(t *testing.T) {
	h := newHarness(t, quotesFixture(), &fakeDialer{})

	if err := h.client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := h.read(); m["type"] != TypeError || m["error"] != "invalid message" {
		t.Fatalf("expected invalid message error, got %v", m)
	}

	h.write(map[string]string{"type": "teleport"})
	if m := h.read(); m["type"] != TypeError || m["error"] != "unknown message type" {
		t.Fatalf("expected unknown type error, got %v", m)
	}

	// session survives both
	h.write(ClientMessage{Type: TypePing})
	if m := h.read(); m["type"] != TypePong {
		t.Fatalf("expected pong, got %v", m)
	}
}

func TestSubscribeSnapshotsThenLiveTrades(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{" aapl", "MSFT", "bad", "AAPL", ""}})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := h.read()
		if m["type"] != TypePriceUpdate {
			t.Fatalf("expected snapshot price_update, got %v", m)
		}
		got[m["symbol"].(string)] = true
	}
	if !got["AAPL"] || !got["MSFT"] {
		t.Fatalf("expected AAPL and MSFT snapshots, got %v", got)
	}

	eventually(t, func() bool {
		up := d.conn(0)
		if up == nil {
			return false
		}
		subs, _, _, _ := up.snapshot()
		return len(subs) == 3
	}, "upstream subscriptions")

	subs, _, _, _ := d.conn(0).snapshot()
	if strings.Join(subs, ",") != "AAPL,MSFT,BAD" {
		t.Fatalf("unexpected upstream subscriptions %v", subs)
	}

	d.conn(0).frames <- []byte(`{"type":"trade","data":[{"s":"AAPL","p":200,"v":5,"t":1700000000000}]}`)
	m := h.read()
	if m["type"] != TypePriceUpdate || m["symbol"] != "AAPL" {
		t.Fatalf("expected AAPL live update, got %v", m)
	}
	data := m["data"].(map[string]interface{})
	if data["currentPrice"].(float64) != 200 || data["change"].(float64) != 12 || data["high"].(float64) != 200 {
		t.Fatalf("unexpected record %v", data)
	}
	eventually(t, func() bool { return h.sink.len() == 1 }, "persistence enqueue")
}

func TestTradeForUnknownSymbolInitializesRecord(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, fakeQuotes{}, d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"TSLA"}})
	eventually(t, func() bool {
		up := d.conn(0)
		if up == nil {
			return false
		}
		subs, _, _, _ := up.snapshot()
		return len(subs) == 1
	}, "upstream subscription")

	d.conn(0).frames <- []byte(`{"type":"ping"}`)
	d.conn(0).frames <- []byte(`garbage`)
	d.conn(0).frames <- []byte(`{"type":"trade","data":[{"s":"TSLA","p":250,"v":1,"t":1}]}`)

	m := h.read()
	data := m["data"].(map[string]interface{})
	if data["open"].(float64) != 250 || data["previousClose"].(float64) != 250 || data["change"].(float64) != 0 {
		t.Fatalf("expected lazily initialized record, got %v", data)
	}
}

func TestAbnormalCloseReconnectsAndResubscribes(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})
	h.read() // snapshot
	eventually(t, func() bool {
		up := d.conn(0)
		if up == nil {
			return false
		}
		subs, _, _, _ := up.snapshot()
		return len(subs) == 1
	}, "first subscription")

	d.conn(0).readErr <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}

	eventually(t, func() bool {
		up := d.conn(1)
		if up == nil {
			return false
		}
		subs, _, _, _ := up.snapshot()
		return len(subs) == 1 && subs[0] == "AAPL"
	}, "resubscribe after reconnect")
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})
	h.read()
	eventually(t, func() bool { return d.conn(0) != nil }, "upstream dial")

	d.conn(0).readErr <- &websocket.CloseError{Code: websocket.CloseNormalClosure}
	time.Sleep(50 * time.Millisecond)
	if d.count() != 1 {
		t.Fatalf("expected no reconnect after normal close, dials=%d", d.count())
	}
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{fail: true}
	h := newHarness(t, quotesFixture(), d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})

	var sawError bool
	for i := 0; i < 3 && !sawError; i++ {
		m := h.read()
		if m["type"] == TypeError {
			if m["error"] != "upstream connection failed after 5 attempts" {
				t.Fatalf("unexpected error %v", m)
			}
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected permanent failure error")
	}
	if got := d.count(); got != 6 {
		t.Fatalf("expected initial dial + 5 reconnects, got %d", got)
	}

	time.Sleep(30 * time.Millisecond)
	if got := d.count(); got != 6 {
		t.Fatalf("expected no dial after giving up, got %d", got)
	}

	h.write(ClientMessage{Type: TypePing})
	if m := h.read(); m["type"] != TypePong {
		t.Fatalf("expected pong after permanent failure, got %v", m)
	}
}

func TestHeartbeatPingsUpstream(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d, WithPingInterval(5*time.Millisecond))

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})
	eventually(t, func() bool {
		up := d.conn(0)
		if up == nil {
			return false
		}
		_, _, pings, _ := up.snapshot()
		return pings >= 2
	}, "heartbeat pings")
}

func TestClientCloseTearsDownUpstream(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d, WithPingInterval(5*time.Millisecond))

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL", "MSFT"}})
	h.read()
	h.read()
	eventually(t, func() bool {
		up := d.conn(0)
		if up == nil {
			return false
		}
		subs, _, _, _ := up.snapshot()
		return len(subs) == 2
	}, "subscriptions")

	_ = h.client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = h.client.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end")
	}

	up := d.conn(0)
	_, unsubs, pingsAtClose, code := up.snapshot()
	if code != websocket.CloseNormalClosure {
		t.Fatalf("expected upstream close 1000, got %d", code)
	}
	if strings.Join(unsubs, ",") != "AAPL,MSFT" {
		t.Fatalf("expected unsubscribe of all symbols, got %v", unsubs)
	}

	// no timer fires after close
	time.Sleep(30 * time.Millisecond)
	if _, _, pings, _ := up.snapshot(); pings != pingsAtClose {
		t.Fatalf("heartbeat fired after close: %d -> %d", pingsAtClose, pings)
	}
	if n := h.relay.ActiveSessions(); n != 0 {
		t.Fatalf("expected no active sessions, got %d", n)
	}
}

func TestShutdownEndsSessions(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, quotesFixture(), d)

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})
	h.read()
	eventually(t, func() bool { return d.conn(0) != nil }, "upstream dial")

	h.relay.Shutdown()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end on shutdown")
	}
	if _, _, _, code := d.conn(0).snapshot(); code != websocket.CloseNormalClosure {
		t.Fatalf("expected upstream close 1000, got %d", code)
	}
}

func TestDebugMessages(t *testing.T) {
	d := &fakeDialer{}
	h := newHarness(t, fakeQuotes{}, d, WithDebugMessages(true))

	h.write(ClientMessage{Type: TypeSubscribe, Symbols: []string{"AAPL"}})
	m := h.read()
	if m["type"] != TypeDebug || m["message"] != "upstream connected" {
		t.Fatalf("expected debug message, got %v", m)
	}
	if _, err := time.Parse(time.RFC3339, m["timestamp"].(string)); err != nil {
		t.Fatalf("expected ISO timestamp: %v", err)
	}
}

func TestPriceUpdateWireFormat(t *testing.T) {
	b, _ := json.Marshal(PriceUpdate{Type: TypePriceUpdate, Symbol: "AAPL", Data: &models.PriceRecord{Symbol: "AAPL"}})
	for _, key := range []string{`"currentPrice"`, `"changePercent"`, `"previousClose"`, `"timestamp"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("missing %s in %s", key, b)
		}
	}
}
