package relay

import (
	"strings"

	"TradeDesk/internal/domain/models"
)

// Message types exchanged with the client.
const (
	TypeSubscribe   = "subscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypePriceUpdate = "price_update"
	TypeError       = "error"
	TypeDebug       = "debug"
)

const (
	errUnknownType    = "unknown message type"
	errInvalidMessage = "invalid message"
)

// ClientMessage is an inbound client frame.
type ClientMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

// PriceUpdate carries the current record of one symbol.
type PriceUpdate struct {
	Type   string              `json:"type"`
	Symbol string              `json:"symbol"`
	Data   *models.PriceRecord `json:"data"`
}

// Pong answers a client ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage reports a recoverable protocol problem or a permanent upstream failure.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// DebugMessage is diagnostic only.
type DebugMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NormalizeSymbols trims and upper-cases symbols, dropping empties and duplicates. Order is kept.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
