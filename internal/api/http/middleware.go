package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/observability"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// RateLimiter reports whether key is still within limit for the window.
type RateLimiter interface {
	RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error)
}

// RegisterMiddlewares attaches global middlewares. The request logger sits
// outside the error handler so it sees the final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(requestid.New())
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = writeError(c, logger, metrics, err)
			}
		}()
		return c.Next()
	}
}

// writeError renders the stable envelope. Wrapped causes are logged, never sent.
func writeError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, err error) error {
	domainErr := toDomainError(err)
	route := c.Path()
	if r := c.Route(); r != nil && r.Path != "" {
		route = r.Path
	}
	metrics.RecordError(route, c.Method(), domainErr.Code)
	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(domainErr.HTTPStatus).JSON(dto.ErrorEnvelope{Error: dto.ErrorBody{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Details: domainErr.Details,
	}})
}

// toDomainError also understands fiber's own errors (unknown route, bad method).
func toDomainError(err error) *apperrors.DomainError {
	if fe, ok := err.(*fiber.Error); ok {
		return apperrors.FromStatus(fe.Code, "", fe.Message, nil)
	}
	return apperrors.ToDomainError(err)
}

// rateLimitMiddleware limits requests per client IP with a sliding window.
// A failing limiter lets the request through.
func rateLimitMiddleware(limiter RateLimiter, logger *zap.Logger, name string, limit int, per time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil || limit <= 0 {
			return c.Next()
		}
		key := name + ":" + c.IP()
		allowed, err := limiter.RateLimit(c.UserContext(), key, limit, per)
		if err != nil {
			logger.Warn("rate limiting failed", zap.String("key", key), zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Duration", per.String())

		if !allowed {
			logger.Info("rate limit exceeded", zap.String("key", key), zap.Int("limit", limit))
			return apperrors.NewRateLimited(limit)
		}
		return c.Next()
	}
}
