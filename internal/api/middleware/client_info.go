package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/core/ports"
)

// ClientInfo copies the caller's address and user agent into the request
// context for the security audit trail.
func ClientInfo() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := ports.WithClientInfo(req.Context(), ports.ClientInfo{
				IP:        c.RealIP(),
				UserAgent: req.UserAgent(),
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
