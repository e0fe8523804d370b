package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/audiophile/account-core/docs"
	"github.com/audiophile/account-core/internal/api/handler"
	"github.com/audiophile/account-core/internal/api/middleware"
	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

// Options carries the router's ambient collaborators.
type Options struct {
	Log           zerolog.Logger
	SecureCookies bool
	// Readiness checks run by GET /health/ready, keyed by dependency name.
	Readiness map[string]handler.Check
	// Registry for the HTTP request metrics; nil uses the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(authService ports.AuthService, accountService ports.AccountService, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(opts.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(opts.Log))
	e.Use(middleware.ClientInfo())

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "account",
		Registerer: registerer,
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(authService, opts.SecureCookies)
	accountHandler := handler.NewAccountHandler(accountService)
	adminHandler := handler.NewAdminHandler(accountService)
	requireAuth := middleware.Auth(authService)

	// --- Account routes ---
	users := e.Group("/api/v1/users")
	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/logout", authHandler.Logout, requireAuth)
	users.POST("/password/reset", authHandler.RequestPasswordReset)
	users.POST("/password/reset/:token", authHandler.ResetPassword)
	users.POST("/password/change", authHandler.ChangePassword, requireAuth)

	users.GET("/profile", accountHandler.GetProfile, requireAuth)
	users.PUT("/profile", accountHandler.UpdateProfile, requireAuth)
	users.DELETE("/profile", authHandler.DeleteAccount, requireAuth)

	// --- Admin routes ---
	admin := users.Group("/admin", requireAuth, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/users", adminHandler.List)
	admin.GET("/users/:id", adminHandler.Get)
	admin.PUT("/users/:id/role", adminHandler.UpdateRole)
	admin.DELETE("/users/:id", adminHandler.Delete)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(opts.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operational endpoints ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
