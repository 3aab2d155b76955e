package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// RequireRole ensures the principal holds floor or higher in some context.
// Finer checks belong to the authorization engine.
func RequireRole(floor domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.ErrUnauthorized
		}
		if !principal.HasAtLeast(floor) {
			return apperrors.NewForbidden(apperrors.CodeInsufficientRole, "your role does not permit this action")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.ErrUnauthorized
		}
		return c.Next()
	}
}
