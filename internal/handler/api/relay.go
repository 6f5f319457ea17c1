package api

import (
	"net/http"
	"slices"
	"time"

	"TradeDesk/internal/relay"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// RelayHandler upgrades GET /ws/prices and hands the connection to the relay.
type RelayHandler struct {
	logger   *xlogger.Logger
	relay    *relay.Relay
	hasKey   bool
	upgrader websocket.Upgrader
}

// NewRelayHandler creates the handler. An empty or "*" allowOrigins accepts any origin.
func NewRelayHandler(logger *xlogger.Logger, r *relay.Relay, hasKey bool, allowOrigins []string) *RelayHandler {
	h := &RelayHandler{logger: logger, relay: r, hasKey: hasKey}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      checkOrigin(allowOrigins),
	}
	return h
}

func (h *RelayHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/prices", h.Prices)
}

func (h *RelayHandler) Prices(c echo.Context) error {
	if !h.hasKey {
		h.logger.Error("relay rejected: finnhub api key is not configured")
		return xhttp.AppErrorResponse(c, xhttp.InternalError("FINNHUB_API_KEY is not configured"))
	}
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("expected a websocket upgrade request"))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	// server read/write timeouts must not cut long-lived sessions
	_ = conn.NetConn().SetDeadline(time.Time{})

	h.relay.Serve(c.Request().Context(), conn)
	return nil
}

func checkOrigin(allow []string) func(*http.Request) bool {
	if len(allow) == 0 || slices.Contains(allow, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allow, origin)
	}
}
