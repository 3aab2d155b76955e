package domain

import "time"

// User is any account that can log in: requesters and staff alike.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
