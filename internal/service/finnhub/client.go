package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Dialer opens Finnhub trade-stream connections, one per relay session.
type Dialer struct {
	apiKey       string
	websocketURL string
	dialer       *websocket.Dialer
}

// NewDialer creates a Dialer for the given stream URL and API token.
func NewDialer(apiKey, websocketURL string, handshakeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Dialer{
		apiKey:       apiKey,
		websocketURL: websocketURL,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial connects to the stream.
func (d *Dialer) Dial(ctx context.Context) (drepo.UpstreamConn, error) {
	u, err := url.Parse(d.websocketURL)
	if err != nil {
		return nil, fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("finnhub connect: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Conn is one Finnhub stream connection. Subscribe/Unsubscribe are serialized;
// Ping and Close use control frames and may run concurrently with ReadMessage.
type Conn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

type subscription struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe starts the trade stream for symbol.
func (c *Conn) Subscribe(symbol string) error {
	return c.writeJSON(subscription{Type: "subscribe", Symbol: symbol})
}

// Unsubscribe stops the trade stream for symbol.
func (c *Conn) Unsubscribe(symbol string) error {
	return c.writeJSON(subscription{Type: "unsubscribe", Symbol: symbol})
}

func (c *Conn) writeJSON(v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("finnhub write: %w", err)
	}
	return nil
}

// Ping sends a keep-alive control frame.
func (c *Conn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// ReadMessage returns the next data frame. Close frames surface as *websocket.CloseError.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, b, err := c.conn.ReadMessage()
	return b, err
}

// Close sends a close frame with code and releases the connection.
func (c *Conn) Close(code int) error {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// Frame is a decoded stream message.
type Frame struct {
	Type   string // trade, ping, error, or whatever the stream sent
	Trades []models.Trade
	Error  string
}

// ParseFrame decodes a stream message. Trades without a symbol are skipped.
func ParseFrame(b []byte) (*Frame, error) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("finnhub frame: %w", err)
	}

	f := &Frame{Type: m.Type, Error: m.Msg}
	if m.Type != "trade" {
		return f, nil
	}

	var trades []fhTrade
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &trades); err != nil {
			return nil, fmt.Errorf("finnhub trades: %w", err)
		}
	}
	f.Trades = make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.S == "" {
			continue
		}
		f.Trades = append(f.Trades, models.Trade{Symbol: t.S, Price: t.P, Volume: t.V, Timestamp: t.T})
	}
	return f, nil
}
