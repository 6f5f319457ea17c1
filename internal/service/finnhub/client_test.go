package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apphttp "TradeDesk/pkg/http"

	"github.com/gorilla/websocket"
)

func TestParseFrameTrades(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"trade","data":[{"s":"AAPL","p":190.1,"v":10,"t":1700000000000},{"s":"","p":1}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != "trade" || len(f.Trades) != 1 {
		t.Fatalf("unexpected frame %+v", f)
	}
	tr := f.Trades[0]
	if tr.Symbol != "AAPL" || tr.Price != 190.1 || tr.Timestamp != 1700000000000 {
		t.Fatalf("unexpected trade %+v", tr)
	}
}

func TestParseFrameNonTrade(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"error","msg":"Invalid symbol"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != "error" || f.Error != "Invalid symbol" {
		t.Fatalf("unexpected frame %+v", f)
	}
	if _, err := ParseFrame([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDialerSubscribesAndCloses(t *testing.T) {
	got := make(chan subscription, 4)
	closeCode := make(chan int, 1)
	var token string

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("token")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var s subscription
			if err := c.ReadJSON(&s); err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closeCode <- ce.Code
				}
				return
			}
			got <- s
		}
	}))
	defer srv.Close()

	d := NewDialer("secret", "ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.Subscribe("AAPL"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := conn.Unsubscribe("AAPL"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	for _, want := range []string{"subscribe", "unsubscribe"} {
		select {
		case s := <-got:
			if s.Type != want || s.Symbol != "AAPL" {
				t.Fatalf("expected %s AAPL, got %+v", want, s)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	if token != "secret" {
		t.Fatalf("expected token in query, got %q", token)
	}

	_ = conn.Close(websocket.CloseNormalClosure)
	select {
	case code := <-closeCode:
		if code != websocket.CloseNormalClosure {
			t.Fatalf("expected close 1000, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not observe close frame")
	}
}

func TestQuoteClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("token") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_ = json.NewEncoder(w).Encode(map[string]float64{
				"c": 190, "d": 2, "dp": 1.06, "h": 191, "l": 187, "o": 188, "pc": 188, "t": 1700000000,
			})
		case "NOPE":
			_ = json.NewEncoder(w).Encode(map[string]float64{"c": 0})
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	qc := NewQuoteClient("k", srv.URL+"/", apphttp.NewClient(apphttp.WithTimeout(time.Second)))
	ctx := context.Background()

	rec, err := qc.Quote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if rec.Symbol != "AAPL" || rec.CurrentPrice != 190 || rec.PreviousClose != 188 || rec.Timestamp != 1700000000000 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := qc.Quote(ctx, "NOPE"); !errors.Is(err, ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}

	_, err = qc.Quote(ctx, "LIMIT")
	var se *apphttp.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status error 429, got %v", err)
	}
}
