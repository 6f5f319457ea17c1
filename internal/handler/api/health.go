package api

import (
	"context"
	"net/http"
	"time"

	"TradeDesk/internal/relay"
	xhttp "TradeDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	relay  *relay.Relay
	checks []HealthCheck
}

func NewHealthHandler(r *relay.Relay, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{relay: r, checks: checks}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

type healthResponse struct {
	Status       string            `json:"status"`
	Sessions     int64             `json:"sessions"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if h.relay != nil {
		resp.Sessions = h.relay.ActiveSessions()
	}
	status := http.StatusOK
	for _, chk := range h.checks {
		if resp.Dependencies == nil {
			resp.Dependencies = make(map[string]string, len(h.checks))
		}
		if err := chk.Check(ctx); err != nil {
			resp.Dependencies[chk.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[chk.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, resp)
}
