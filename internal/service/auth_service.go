package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/auth"
	"github.com/spec-kit/itsm-portal/internal/config"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/events"
	"github.com/spec-kit/itsm-portal/internal/observability"
	"github.com/spec-kit/itsm-portal/internal/repository"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// Refresh outcomes reported to metrics.
const (
	refreshOK       = "ok"
	refreshRejected = "rejected"
	refreshRevoked  = "revoked"
)

// AuthService coordinates login, refresh and logout.
type AuthService struct {
	users       repository.UserRepository
	teams       repository.TeamRepository
	revocations repository.TokenRevocationRepository
	tokenMgr    *auth.TokenManager
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo       repository.UserRepository
	TeamRepo       repository.TeamRepository
	RevocationRepo repository.TokenRevocationRepository
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// Session is the result of a successful login.
type Session struct {
	Access  domain.IssuedToken
	Refresh domain.IssuedToken
	User    domain.PrincipalSummary
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return NewAuthServiceWithTokens(
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.Auth.RefreshTokenTTLHours),
		deps,
	)
}

// NewAuthServiceWithTokens builds the service around an existing token manager.
func NewAuthServiceWithTokens(tokens *auth.TokenManager, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		teams:       deps.TeamRepo,
		revocations: deps.RevocationRepo,
		tokenMgr:    tokens,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// Login verifies credentials and issues an access/refresh pair.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			auth.BurnPasswordCheck(password)
			s.loginFailed(ctx, "", email, clientIP, "unknown_email")
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		s.loginFailed(ctx, user.ID, email, clientIP, "bad_password")
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		s.loginFailed(ctx, user.ID, email, clientIP, "inactive")
		return nil, apperrors.NewUnauthorized("account is disabled")
	}

	principal, err := s.principalFor(ctx, user)
	if err != nil {
		return nil, err
	}
	access, err := s.tokenMgr.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokenMgr.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("unable to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.publish(ctx, events.EventAuthLogin, user.ID, events.AuthPayload{Email: user.Email, IP: clientIP})
	return &Session{Access: access, Refresh: refresh, User: principal.Summary()}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP string) (domain.IssuedToken, error) {
	claims, err := s.tokenMgr.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(refreshRejected)
		return domain.IssuedToken{}, apperrors.NewUnauthorized("invalid refresh token")
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return domain.IssuedToken{}, err
		}
		if revoked {
			s.metrics.RecordTokenRefresh(refreshRevoked)
			return domain.IssuedToken{}, apperrors.NewUnauthorized("refresh token has been revoked")
		}
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.metrics.RecordTokenRefresh(refreshRejected)
			return domain.IssuedToken{}, apperrors.NewUnauthorized("invalid refresh token")
		}
		return domain.IssuedToken{}, err
	}
	if !user.IsActive {
		s.metrics.RecordTokenRefresh(refreshRejected)
		return domain.IssuedToken{}, apperrors.NewUnauthorized("account is disabled")
	}

	access, err := s.tokenMgr.IssueAccess(user.ID)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	s.metrics.RecordTokenRefresh(refreshOK)
	s.publish(ctx, events.EventAuthRefreshed, user.ID, events.AuthPayload{IP: clientIP})
	return access, nil
}

// Logout revokes the refresh token until its natural expiry. Tokens that no
// longer verify are already unusable, so they are accepted silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokenMgr.ParseRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("logout with unusable refresh token", zap.Error(err))
		return nil
	}
	if s.revocations != nil && claims.ExpiresAt != nil {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}
	s.publish(ctx, events.EventAuthLogout, claims.Subject, events.AuthPayload{})
	return nil
}

// LoadPrincipal resolves the caller behind an access token.
func (s *AuthService) LoadPrincipal(ctx context.Context, userID string) (*domain.Principal, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("unknown account")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("account is disabled")
	}
	return s.principalFor(ctx, user)
}

func (s *AuthService) principalFor(ctx context.Context, user *domain.User) (*domain.Principal, error) {
	assignments, err := s.users.ListAssignments(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	p := &domain.Principal{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Assignments: assignments,
	}
	if p.HasRole(domain.RoleManager) && s.teams != nil {
		members, err := s.teams.MembersManagedBy(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		p.TeamMembers = members
	}
	return p, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokenMgr.AccessTTL()
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) loginFailed(ctx context.Context, userID, email, clientIP, reason string) {
	s.publish(ctx, events.EventAuthLoginFailed, userID, events.AuthPayload{Email: email, IP: clientIP, Reason: reason})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, actorID string, payload events.AuthPayload) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, "", actorID, time.Now(), payload))
}
