package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/api/http/handlers"
	"github.com/spec-kit/itsm-portal/internal/auth"
	"github.com/spec-kit/itsm-portal/internal/config"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Limiter        RateLimiter
	RateLimit      config.RateLimitConfig
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", rateLimitMiddleware(cfg.Limiter, logger, "login", cfg.RateLimit.LoginPerMinute, time.Minute), cfg.Auth.Login)
	authGroup.Post("/refresh", rateLimitMiddleware(cfg.Limiter, logger, "refresh", cfg.RateLimit.RefreshPerMinute, time.Minute), cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.Me)

	// Mutation role floors are checked by the service after note validation.
	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleUser))
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/reassign", cfg.Tickets.Reassign)
	tickets.Post("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/close", cfg.Tickets.Close)
}
