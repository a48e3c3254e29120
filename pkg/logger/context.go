package logger

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// FromContext returns the request-scoped logger set by Middleware. Handlers
// reached outside the middleware chain still get a logger carrying whatever
// request id the call presented.
func FromContext(c echo.Context) *zap.Logger {
	if scoped, ok := c.Get("logger").(*zap.Logger); ok {
		return scoped
	}
	return GetLogger().With(zap.String("request_id", requestIDOf(c)))
}

// requestIDOf resolves the correlation id for a request: the context value
// placed by the request-id middleware, then the inbound header, then the
// header echoed onto the response.
func requestIDOf(c echo.Context) string {
	if id, ok := c.Get(requestIDHeader).(string); ok && id != "" {
		return id
	}
	if id := c.Request().Header.Get(requestIDHeader); id != "" {
		return id
	}
	if id := c.Response().Header().Get(requestIDHeader); id != "" {
		return id
	}
	return "unknown"
}
