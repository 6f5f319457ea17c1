package api

import (
	"context"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/services/assistant"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

const latestLookupTimeout = 500 * time.Millisecond

// ChatHandler serves POST /api/chat.
type ChatHandler struct {
	responder *assistant.Responder
	latest    repository.LatestPrices
	log       *xlogger.Logger
}

// NewChatHandler creates the handler. With latest set, requests that carry no marketData
// are filled from the latest-price mirror for the tickers the message names.
func NewChatHandler(l *xlogger.Logger, r *assistant.Responder, latest repository.LatestPrices) *ChatHandler {
	if l == nil {
		l = xlogger.Nop()
	}
	return &ChatHandler{responder: r, latest: latest, log: l}
}

func (h *ChatHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat", h.Chat)
}

func (h *ChatHandler) Chat(c echo.Context) error {
	req := &models.ChatRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.fillMarketData(c.Request().Context(), req)
	return xhttp.SuccessResponse(c, h.responder.Respond(req))
}

func (h *ChatHandler) fillMarketData(ctx context.Context, req *models.ChatRequest) {
	if h.latest == nil || len(req.MarketData) > 0 {
		return
	}
	symbols := assistant.Symbols(req.UserMessage)
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, latestLookupTimeout)
	defer cancel()
	recs, err := h.latest.GetLatestMany(ctx, symbols)
	if err != nil {
		h.log.Warn("latest price lookup failed", xlogger.Error(err), xlogger.Int("symbols", len(symbols)))
		return
	}
	if len(recs) > 0 {
		req.MarketData = recs
	}
}
