package dto

import (
	"time"

	"github.com/spec-kit/itsm-portal/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DepartmentID string `json:"department_id"`
}

// AssignRequest is used by assign and reassign. A missing assigned_to means
// the caller.
type AssignRequest struct {
	AssignedTo *string `json:"assigned_to,omitempty"`
	Note       string  `json:"note,omitempty"`
	Version    *int    `json:"version,omitempty"`
}

// StatusRequest payload.
type StatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Note    string              `json:"note"`
	Version *int                `json:"version,omitempty"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority int    `json:"priority"`
	Note     string `json:"note"`
	Version  *int   `json:"version,omitempty"`
}

// CloseRequest payload.
type CloseRequest struct {
	ClosureCodeID string `json:"closure_code_id"`
	Note          string `json:"note"`
	Version       *int   `json:"version,omitempty"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID            string              `json:"id"`
	Number        string              `json:"number"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Status        domain.TicketStatus `json:"status"`
	Priority      *int                `json:"priority"`
	CreatedBy     string              `json:"created_by"`
	AssignedTo    *string             `json:"assigned_to"`
	AssignedAt    *time.Time          `json:"assigned_at"`
	DepartmentID  string              `json:"department_id"`
	ClosureCodeID *string             `json:"closure_code_id"`
	ClosedAt      *time.Time          `json:"closed_at"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// HistoryEntryResponse is one audit record.
type HistoryEntryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldStatus  domain.TicketStatus     `json:"old_status,omitempty"`
	NewStatus  domain.TicketStatus     `json:"new_status"`
	Note       string                  `json:"note"`
	ChangedBy  string                  `json:"changed_by"`
	ChangedAt  time.Time               `json:"changed_at"`
}

// TicketFromDomain converts a ticket.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		Number:        t.Number,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		CreatedBy:     t.CreatedBy,
		AssignedTo:    t.AssignedTo,
		AssignedAt:    t.AssignedAt,
		DepartmentID:  t.DepartmentID,
		ClosureCodeID: t.ClosureCodeID,
		ClosedAt:      t.ClosedAt,
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// TicketsFromDomain converts a listing; never nil.
func TicketsFromDomain(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, TicketFromDomain(&tickets[i]))
	}
	return out
}

// HistoryFromDomain converts history entries; never nil.
func HistoryFromDomain(entries []domain.TicketHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:         e.ID,
			ChangeType: e.ChangeType,
			OldStatus:  e.OldStatus,
			NewStatus:  e.NewStatus,
			Note:       e.Note,
			ChangedBy:  e.ChangedBy,
			ChangedAt:  e.ChangedAt,
		})
	}
	return out
}
