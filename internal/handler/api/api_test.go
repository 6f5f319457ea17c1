package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"
	"TradeDesk/internal/relay"
	"TradeDesk/internal/service/finnhub"
	"TradeDesk/internal/services/assistant"
	"TradeDesk/internal/usecase"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h xhttp.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

type stubQuotes struct {
	rec *models.PriceRecord
	err error
}

func (q stubQuotes) Quote(context.Context, string) (*models.PriceRecord, error) {
	return q.rec, q.err
}

type refusingDialer struct{}

func (refusingDialer) Dial(context.Context) (drepo.UpstreamConn, error) {
	return nil, errors.New("refused")
}

func TestRelayRequiresAPIKey(t *testing.T) {
	r := relay.New(refusingDialer{}, stubQuotes{}, nil, nil, nil)
	rec, env := serve(t, NewRelayHandler(xlogger.Nop(), r, false, nil), http.MethodGet, "/ws/prices", "")
	if rec.Code != http.StatusInternalServerError || env.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRelayRequiresUpgrade(t *testing.T) {
	r := relay.New(refusingDialer{}, stubQuotes{}, nil, nil, nil)
	rec, _ := serve(t, NewRelayHandler(xlogger.Nop(), r, true, nil), http.MethodGet, "/ws/prices", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRelayUpgradeServesSession(t *testing.T) {
	r := relay.New(refusingDialer{}, stubQuotes{}, nil, nil, nil)
	e := echo.New()
	NewRelayHandler(xlogger.Nop(), r, true, []string{"https://app.example.com"}).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer r.Shutdown()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/prices"
	if _, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}}); err == nil {
		t.Fatalf("expected foreign origin to be rejected")
	}

	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.example.com"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.WriteJSON(relay.ClientMessage{Type: relay.TypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]interface{}
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m["type"] != relay.TypePong {
		t.Fatalf("expected pong, got %v", m)
	}
}

func TestChatHandler(t *testing.T) {
	h := NewChatHandler(nil, assistant.NewResponder(nil, nil), nil)

	rec, env := serve(t, h, http.MethodPost, "/api/chat", `{"userMessage":"What is RSI divergence?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.ChatResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if resp.Mode != models.IntentTrading || resp.Confidence != 0.9 || resp.RiskDisclaimer {
		t.Fatalf("unexpected chat response %+v", resp)
	}

	rec, env = serve(t, h, http.MethodPost, "/api/chat", `{"userMessage":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var verrs []xhttp.ValidationError
	if err := json.Unmarshal(env.Data, &verrs); err != nil || len(verrs) != 1 {
		t.Fatalf("unexpected validation payload %s (%v)", env.Data, err)
	}
	if verrs[0].Field != "userMessage" || verrs[0].Code != "ERR_REQUIRED" {
		t.Fatalf("unexpected validation error %+v", verrs[0])
	}
}

type stubLatest struct {
	recs  map[string]*models.PriceRecord
	asked []string
}

func (s *stubLatest) SetLatest(context.Context, *models.PriceRecord) error { return nil }
func (s *stubLatest) GetLatest(context.Context, string) (*models.PriceRecord, error) {
	return nil, errors.New("unused")
}
func (s *stubLatest) GetLatestMany(_ context.Context, syms []string) (map[string]*models.PriceRecord, error) {
	s.asked = syms
	out := make(map[string]*models.PriceRecord)
	for _, sym := range syms {
		if r, ok := s.recs[sym]; ok {
			out[sym] = r
		}
	}
	return out, nil
}

func TestChatHandlerFillsMarketDataFromLatest(t *testing.T) {
	latest := &stubLatest{recs: map[string]*models.PriceRecord{
		"AAPL": {Symbol: "AAPL", CurrentPrice: 190.5, Change: -1.5, ChangePercent: -0.78},
	}}
	h := NewChatHandler(nil, assistant.NewResponder(nil, nil), latest)

	_, env := serve(t, h, http.MethodPost, "/api/chat", `{"userMessage":"Should I buy AAPL right now?"}`)
	var resp models.ChatResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if len(latest.asked) != 1 || latest.asked[0] != "AAPL" {
		t.Fatalf("expected lookup for AAPL, got %v", latest.asked)
	}
	if !strings.Contains(resp.Content, "**AAPL** is trading at $190.50") {
		t.Fatalf("expected live price in content, got %q", resp.Content)
	}

	// caller-supplied market data wins
	latest.asked = nil
	_, _ = serve(t, h, http.MethodPost, "/api/chat",
		`{"userMessage":"Should I buy AAPL right now?","marketData":{"AAPL":{"symbol":"AAPL","currentPrice":1}}}`)
	if latest.asked != nil {
		t.Fatalf("expected no lookup when marketData is supplied")
	}
}

func TestQuoteErrorMapping(t *testing.T) {
	ok := &models.PriceRecord{Symbol: "AAPL", CurrentPrice: 190, Timestamp: 1}
	cases := []struct {
		name   string
		hasKey bool
		quotes stubQuotes
		target string
		want   int
	}{
		{"ok", true, stubQuotes{rec: ok}, "/api/quote?symbol=aapl", http.StatusOK},
		{"missing symbol", true, stubQuotes{rec: ok}, "/api/quote", http.StatusBadRequest},
		{"qualified symbol", true, stubQuotes{rec: ok}, "/api/quote?symbol=BINANCE:BTCUSDT", http.StatusOK},
		{"bad symbol", true, stubQuotes{rec: ok}, "/api/quote?symbol=AA%20PL;", http.StatusBadRequest},
		{"no key", false, stubQuotes{rec: ok}, "/api/quote?symbol=AAPL", http.StatusInternalServerError},
		{"unknown", true, stubQuotes{err: finnhub.ErrNoQuote}, "/api/quote?symbol=NOPE", http.StatusNotFound},
		{"limited", true, stubQuotes{err: usecase.ErrRateLimited}, "/api/quote?symbol=AAPL", http.StatusTooManyRequests},
		{"upstream", true, stubQuotes{err: &xhttp.StatusError{StatusCode: 503}}, "/api/quote?symbol=AAPL", http.StatusBadGateway},
	}
	for _, c := range cases {
		h := NewPricesHandler(xlogger.Nop(), c.quotes, c.hasKey, nil)
		rec, env := serve(t, h, http.MethodGet, c.target, "")
		if rec.Code != c.want || env.Status != c.want {
			t.Fatalf("%s: expected %d, got %d (%s)", c.name, c.want, rec.Code, rec.Body.String())
		}
	}
}

func TestQuoteHandlerRetryAfter(t *testing.T) {
	limited := &usecase.RateLimitError{RetryAfter: 1500 * time.Millisecond}
	h := NewPricesHandler(xlogger.Nop(), stubQuotes{err: limited}, true, nil)

	rec, env := serve(t, h, http.MethodGet, "/api/quote?symbol=AAPL", "")
	if env.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", env.Status)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2, got %q", got)
	}
}

type stubHistory struct {
	drepo.Storage
	symbol   string
	from, to time.Time
	limit    int
	rows     []*models.PriceRecord
}

func (s *stubHistory) Query(_ context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceRecord, error) {
	s.symbol, s.from, s.to, s.limit = symbol, from, to, limit
	return s.rows, nil
}

func TestHistoryHandler(t *testing.T) {
	_, env := serve(t, NewPricesHandler(xlogger.Nop(), stubQuotes{}, true, nil), http.MethodGet, "/api/prices/history?symbol=AAPL", "")
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without clickhouse, got %d", env.Status)
	}

	store := &stubHistory{rows: []*models.PriceRecord{{Symbol: "AAPL", CurrentPrice: 1, Timestamp: 2}}}
	h := NewPricesHandler(xlogger.Nop(), stubQuotes{}, true, store)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rec, env := serve(t, h, http.MethodGet, "/api/prices/history?symbol=aapl", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.symbol != "AAPL" || store.limit != 500 || !store.to.Equal(now) || !store.from.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("unexpected query %s %v %v %d", store.symbol, store.from, store.to, store.limit)
	}
	var list struct {
		Rows  []*models.PriceRecord `json:"rows"`
		Total int64                 `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || list.Total != 1 {
		t.Fatalf("unexpected list %s (%v)", env.Data, err)
	}

	serve(t, h, http.MethodGet, "/api/prices/history?symbol=AAPL&from=1714521600&to=2024-05-01T12:00:00Z&limit=10", "")
	if store.from.Unix() != 1714521600 || store.limit != 10 {
		t.Fatalf("explicit range not applied: %v %d", store.from, store.limit)
	}

	serve(t, h, http.MethodGet, "/api/prices/history?symbol=AAPL&from=1714521600000&to=2024-05-01T12:00:00Z", "")
	if store.from.Unix() != 1714521600 {
		t.Fatalf("millisecond from not applied: %v", store.from)
	}

	rec, env = serve(t, h, http.MethodGet, "/api/prices/history?symbol=AAPL&from=yesterday", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(string(env.Data), "RFC3339, unix seconds or unix milliseconds") {
		t.Fatalf("expected accepted formats in the error, got %d %s", rec.Code, env.Data)
	}

	for _, q := range []string{"from=yesterday", "limit=6000", "from=2024-05-02T00:00:00Z&to=2024-05-01T00:00:00Z"} {
		if rec, _ := serve(t, h, http.MethodGet, "/api/prices/history?symbol=AAPL&"+q, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(nil, HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return nil }})
	if rec, _ := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h = NewHealthHandler(nil, HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }})
	rec, env := serve(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(env.Data, &body); err != nil || body.Dependencies["redis"] != "down" {
		t.Fatalf("unexpected health body %s", env.Data)
	}
}
