package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

const requestIDContextKey = "trove.request_id"

// RequestID assigns each request a unique id, reusing one supplied by an
// upstream proxy when present. The id is echoed back on the response.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Response().Header().Set(RequestIDHeader, id)
		c.Set(requestIDContextKey, id)
		return next(c)
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}
