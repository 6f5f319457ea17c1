package api

import (
	"errors"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	domrepo "TradeDesk/internal/domain/repository"
	"TradeDesk/internal/service/finnhub"
	"TradeDesk/internal/usecase"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/util"

	"github.com/labstack/echo/v4"
)

const historyWindow = 24 * time.Hour

// PricesHandler serves quote snapshots and persisted price history.
type PricesHandler struct {
	logger  *xlogger.Logger
	quotes  domrepo.QuoteProvider
	hasKey  bool
	history domrepo.Storage // nil unless the clickhouse backend is active
	now     func() time.Time
}

func NewPricesHandler(logger *xlogger.Logger, quotes domrepo.QuoteProvider, hasKey bool, history domrepo.Storage) *PricesHandler {
	return &PricesHandler{logger: logger, quotes: quotes, hasKey: hasKey, history: history, now: time.Now}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/quote", h.Quote)
	g.GET("/prices/history", h.History)
}

func (h *PricesHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.hasKey {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("FINNHUB_API_KEY is not configured"))
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	rec, err := h.quotes.Quote(c.Request().Context(), symbol)
	switch {
	case err == nil:
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
		return xhttp.SuccessResponse(c, rec)
	case errors.Is(err, finnhub.ErrNoQuote):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no quote for %s", symbol))
	case errors.Is(err, usecase.ErrRateLimited):
		appErr := xhttp.TooManyRequestsError("quote rate limit exceeded, retry shortly")
		var rl *usecase.RateLimitError
		if errors.As(err, &rl) {
			appErr.WithRetryAfter(rl.RetryAfter)
		}
		return xhttp.AppErrorResponse(c, appErr)
	default:
		h.logger.Error("quote upstream error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("quote provider unavailable").WithError(err))
	}
}

func (h *PricesHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("price history requires the clickhouse backend"))
	}

	to := h.now()
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to must be RFC3339, unix seconds or unix milliseconds"))
		}
		to = t
	}
	from := to.Add(-historyWindow)
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be RFC3339, unix seconds or unix milliseconds"))
		}
		from = t
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	rows, err := h.history.Query(c.Request().Context(), symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("price history query error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("price history query failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
