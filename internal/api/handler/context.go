package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/api/middleware"
	"github.com/audiophile/account-core/internal/core/domain"
)

// currentIdentity returns the identity resolved by the Auth middleware. A
// missing identity means the route was mounted without it.
func currentIdentity(c echo.Context) (*domain.Identity, error) {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	return identity, nil
}

// bindAndValidate decodes the request body into req and runs the echo
// validator over it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
