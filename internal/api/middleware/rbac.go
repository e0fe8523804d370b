package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/core/domain"
)

// RBAC enforces role-based access control on top of Auth.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := domain.Authorize(IdentityFrom(c), allowedRoles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
