package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request with the request id, route,
// status, and latency. It also stashes a request-scoped logger on the
// context so handlers can log with the same fields.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqLog := log.With().
				Str("request_id", GetRequestID(c)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			SetLogger(c, reqLog)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			evt := reqLog.Info()
			if status >= 500 {
				evt = reqLog.Error()
			} else if status >= 400 {
				evt = reqLog.Warn()
			}

			evt.Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}

const loggerContextKey = "trove.logger"

// SetLogger stores a request-scoped logger on the echo context.
func SetLogger(c echo.Context, log zerolog.Logger) {
	c.Set(loggerContextKey, log)
}

// GetLogger returns the request-scoped logger, or a no-op logger when the
// chain did not install one.
func GetLogger(c echo.Context) zerolog.Logger {
	if log, ok := c.Get(loggerContextKey).(zerolog.Logger); ok {
		return log
	}
	return zerolog.Nop()
}
