package middleware

import (
	"net/http"
	"strconv"
	"time"

	applogger "TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
	upgrades *prometheus.CounterVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route template, method and status",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration; WebSocket sessions are excluded",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "class"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Requests currently being served, open WebSocket sessions included",
		}, []string{"route"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000},
		}, []string{"route", "class"}),
		upgrades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_websocket_upgrades_total",
			Help: "WebSocket upgrade attempts by result",
		}, []string{"route", "result"}),
	}
}

// Metrics records request metrics labelled by echo's route template, so /api/quote?symbol=X
// and unknown paths never create new series. 5xx responses are logged as errors and requests
// slower than slow as warnings. WebSocket upgrades are counted but not timed.
func Metrics(l *applogger.Logger, reg prometheus.Registerer, slow time.Duration) echo.MiddlewareFunc {
	m := newHTTPMetrics(reg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "other"
			}
			req := c.Request()
			upgrade := isUpgrade(req)

			m.inFlight.WithLabelValues(route).Inc()
			start := time.Now()
			err := next(c)
			m.inFlight.WithLabelValues(route).Dec()

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}

			if upgrade {
				// a hijacked connection never reports its 101 through echo's response
				result := "rejected"
				if status < http.StatusBadRequest {
					status, result = http.StatusSwitchingProtocols, "ok"
				}
				m.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
				m.upgrades.WithLabelValues(route, result).Inc()
				return err
			}
			m.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()

			class := statusClass(status)
			took := time.Since(start)
			m.duration.WithLabelValues(route, req.Method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, class).Observe(float64(c.Response().Size))

			if l == nil {
				return err
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", req.Method),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", took),
			}
			switch {
			case status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			}
			return err
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
