package domain

import "time"

// Department represents a high-level organizational unit that owns tickets.
type Department struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
