package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/core/domain"
)

const (
	// SessionCookieName is the cookie carrying the session token for
	// browser clients.
	SessionCookieName = "token"

	identityKey = "identity"
)

// Authenticator resolves a raw session token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// Auth resolves the bearer credential and injects the identity into the
// echo context. The Authorization header wins over the session cookie.
func Auth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := sessionToken(c)
			if err != nil {
				return err
			}

			identity, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity injected by Auth, or nil.
func IdentityFrom(c echo.Context) *domain.Identity {
	identity, _ := c.Get(identityKey).(*domain.Identity)
	return identity
}

func sessionToken(c echo.Context) (string, error) {
	if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", domain.ErrInvalidToken
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", domain.ErrMissingToken
}
