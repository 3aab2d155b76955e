package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "New"
	TicketStatusAssigned   TicketStatus = "Assigned"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusWaiting    TicketStatus = "Waiting"
	TicketStatusOnHold     TicketStatus = "On Hold"
	TicketStatusClosed     TicketStatus = "Closed"
)

// AllTicketStatuses lists the statuses in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaiting,
	TicketStatusOnHold,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range AllTicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority bounds. Zero means unset.
const (
	MinPriority = 1
	MaxPriority = 4
)

// ValidPriority reports whether p is within 1..4.
func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// Ticket is the aggregate for service requests.
type Ticket struct {
	ID            string
	Number        string
	Title         string
	Description   string
	Status        TicketStatus
	Priority      *int
	CreatedBy     string
	AssignedTo    *string
	AssignedAt    *time.Time
	DepartmentID  string
	ClosureCodeID *string
	ClosedAt      *time.Time
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsClosed reports whether the ticket is locked.
func (t *Ticket) IsClosed() bool {
	return t != nil && t.Status == TicketStatusClosed
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t != nil && t.AssignedTo != nil && *t.AssignedTo == userID
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t Ticket) Clone() Ticket {
	out := t
	out.Priority = clonePtr(t.Priority)
	out.AssignedTo = clonePtr(t.AssignedTo)
	out.AssignedAt = clonePtr(t.AssignedAt)
	out.ClosureCodeID = clonePtr(t.ClosureCodeID)
	out.ClosedAt = clonePtr(t.ClosedAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ClosureCode is a predefined resolution code required to close a ticket.
type ClosureCode struct {
	ID          string
	Code        string
	Description string
	IsActive    bool
}
