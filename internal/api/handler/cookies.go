package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/api/middleware"
	"github.com/audiophile/account-core/internal/core/ports"
)

// setSessionCookie mirrors the bearer token into an httpOnly cookie for
// browser clients.
func setSessionCookie(c echo.Context, s ports.Session, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
