package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header used to propagate request IDs across
// services. Incoming values are trusted and reused so that traces span
// upstream proxies.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an ID, generating one when the client did
// not send one. The ID is stored on the echo context under "request_id" and
// echoed back in the response headers.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
