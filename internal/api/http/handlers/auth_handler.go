package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/auth"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/service"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// AuthUseCases is the slice of service.AuthService the handler needs.
type AuthUseCases interface {
	Login(ctx context.Context, email, password, clientIP string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken, clientIP string) (domain.IssuedToken, error)
	Logout(ctx context.Context, refreshToken string) error
	AccessTTL() time.Duration
}

// AuthHandler serves the session endpoints.
type AuthHandler struct {
	service AuthUseCases
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService AuthUseCases) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Login POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	session, err := h.service.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.LoginResponse]{Data: dto.LoginResponse{
		AccessToken:  session.Access.Value,
		RefreshToken: session.Refresh.Value,
		ExpiresIn:    int64(h.service.AccessTTL().Seconds()),
		User:         dto.SummaryFromDomain(session.User),
	}})
}

// Refresh POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		return apperrors.NewValidationError("refresh_token is required", map[string]any{"field": "refresh_token"})
	}
	access, err := h.service.Refresh(c.UserContext(), req.RefreshToken, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.RefreshResponse]{Data: dto.RefreshResponse{
		AccessToken: access.Value,
		ExpiresIn:   int64(h.service.AccessTTL().Seconds()),
	}})
}

// Logout POST /api/auth/logout. Always succeeds for a well-formed request.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.MessageResponse]{Data: dto.MessageResponse{Message: "logged out"}})
}

// Me GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.ErrUnauthorized
	}
	return c.JSON(dto.Envelope[dto.PrincipalSummary]{Data: dto.SummaryFromDomain(principal.Summary())})
}
