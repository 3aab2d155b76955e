package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/itsm-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketReassigned      EventType = "ticket_reassigned"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketClosed          EventType = "ticket_closed"

	EventAuthLogin       EventType = "auth_login"
	EventAuthLoginFailed EventType = "auth_login_failed"
	EventAuthRefreshed   EventType = "auth_refreshed"
	EventAuthLogout      EventType = "auth_logout"

	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"
)

// TicketEventTypes lists the ticket events, for subscribers that only care
// about tickets.
var TicketEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAssigned,
	EventTicketReassigned,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketClosed,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with an id.
func New(eventType EventType, ticketID, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketChangedPayload describes an accepted ticket change.
type TicketChangedPayload struct {
	Number     string                  `json:"number"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldStatus  domain.TicketStatus     `json:"old_status,omitempty"`
	NewStatus  domain.TicketStatus     `json:"new_status"`
	AssignedTo *string                 `json:"assigned_to,omitempty"`
	Priority   *int                    `json:"priority,omitempty"`
	Note       string                  `json:"note"`
	Version    int                     `json:"version"`
}

// AuthPayload describes a session event.
type AuthPayload struct {
	Email string `json:"email,omitempty"`
	IP    string `json:"ip,omitempty"`
	// Reason is set for failed logins.
	Reason string `json:"reason,omitempty"`
}
