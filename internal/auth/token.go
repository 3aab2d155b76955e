package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/itsm-portal/internal/domain"
)

var (
	ErrWrongTokenType = errors.New("unexpected token type")
	ErrInvalidToken   = errors.New("invalid token claims")
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, accessTTLMinutes, refreshTTLHours int) *TokenManager {
	if accessTTLMinutes <= 0 {
		accessTTLMinutes = 60
	}
	if refreshTTLHours <= 0 {
		refreshTTLHours = 24
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshTTLHours) * time.Hour,
		now:        time.Now,
	}
}

// AccessTTL is the lifetime of access tokens.
func (tm *TokenManager) AccessTTL() time.Duration { return tm.accessTTL }

// Claims describes JWT payload.
type Claims struct {
	TokenType domain.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// IssueAccess signs a short-lived access token for userID.
func (tm *TokenManager) IssueAccess(userID string) (domain.IssuedToken, error) {
	return tm.issue(userID, domain.TokenTypeAccess, tm.accessTTL)
}

// IssueRefresh signs a refresh token for userID.
func (tm *TokenManager) IssueRefresh(userID string) (domain.IssuedToken, error) {
	return tm.issue(userID, domain.TokenTypeRefresh, tm.refreshTTL)
}

func (tm *TokenManager) issue(userID string, kind domain.TokenType, ttl time.Duration) (domain.IssuedToken, error) {
	now := tm.now()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()
	claims := &Claims{
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	return domain.IssuedToken{Value: tokenString, ID: jti, ExpiresAt: expiresAt}, nil
}

// ParseAccess validates an access token.
func (tm *TokenManager) ParseAccess(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, domain.TokenTypeAccess)
}

// ParseRefresh validates a refresh token.
func (tm *TokenManager) ParseRefresh(tokenStr string) (*Claims, error) {
	return tm.parse(tokenStr, domain.TokenTypeRefresh)
}

func (tm *TokenManager) parse(tokenStr string, want domain.TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
