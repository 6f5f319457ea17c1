package api

import (
	xhttp "TradeDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

// Router registers a set of handlers as one xhttp.Handler.
type Router []xhttp.Handler

func (r Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		h.RegisterRoutes(e)
	}
}
