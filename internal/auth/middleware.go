package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// PrincipalLoader resolves the account behind a verified access token,
// including role assignments and managed team members.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*domain.Principal, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	loader PrincipalLoader
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, loader PrincipalLoader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, loader: loader}
}

// Handle enforces authentication for protected routes. Every failure is a
// 401 so clients know to refresh.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseAccess(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	principal, err := m.loader.LoadPrincipal(c.UserContext(), claims.Subject)
	if err != nil {
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(*domain.Principal)
	return principal, ok && principal != nil
}
