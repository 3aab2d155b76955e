package dto

import "github.com/spec-kit/itsm-portal/internal/domain"

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair and the caller summary.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	User         PrincipalSummary `json:"user"`
}

// RefreshRequest payload for token refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse carries a new access token. The refresh token is unchanged.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// PrincipalSummary is the public view of the caller.
type PrincipalSummary struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Roles []domain.Role `json:"roles"`
}

// SummaryFromDomain converts the domain summary.
func SummaryFromDomain(s domain.PrincipalSummary) PrincipalSummary {
	roles := s.Roles
	if roles == nil {
		roles = []domain.Role{}
	}
	return PrincipalSummary{ID: s.ID, Name: s.Name, Email: s.Email, Roles: roles}
}
