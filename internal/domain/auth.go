package domain

import "time"

// TokenType differentiates access and refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// IssuedToken describes a signed token and its lifetime.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// PrincipalSummary is the public view of a principal returned by login and /me.
type PrincipalSummary struct {
	ID    string
	Name  string
	Email string
	Roles []Role
}

// Summary builds the public view.
func (p *Principal) Summary() PrincipalSummary {
	return PrincipalSummary{ID: p.ID, Name: p.Name, Email: p.Email, Roles: p.Roles()}
}
