package domain

import "time"

// TicketChangeType captures what an accepted change did.
type TicketChangeType string

const (
	ChangeTypeCreated    TicketChangeType = "CREATED"
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignment TicketChangeType = "ASSIGNMENT"
	ChangeTypePriority   TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeClosure    TicketChangeType = "CLOSURE"
)

// TicketHistoryEntry is an append-only audit record, one per accepted change.
type TicketHistoryEntry struct {
	ID         string
	TicketID   string
	ChangeType TicketChangeType
	OldStatus  TicketStatus
	NewStatus  TicketStatus
	Note       string
	ChangedBy  string
	ChangedAt  time.Time
}
