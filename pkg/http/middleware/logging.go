package middleware

import (
	"errors"
	"net/http"
	"time"

	applogger "TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one line per request. Stream upgrades log at debug
// when the socket closes since their latency is the session lifetime.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			res := c.Response()
			status := res.Status
			if err != nil {
				// the error handler has not run yet, so the status is still 200
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.String("request_id", GetRequestID(c)),
				applogger.Int("status", status),
				applogger.Int64("bytes_out", res.Size),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}

			switch {
			case isUpgrade(req):
				l.Debug("stream closed", fields...)
			case status >= 500:
				l.Warn("http request", fields...)
			default:
				l.Info("http request", fields...)
			}
			return err
		}
	}
}
