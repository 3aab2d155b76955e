// Package ticketflow holds the ticket status state machine. Every function is
// pure: it takes the current ticket and returns the next ticket plus the
// history entry to append. Persisting both atomically is the caller's job.
package ticketflow

import (
	"strings"
	"time"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew: {domain.TicketStatusAssigned},
	domain.TicketStatusAssigned: {
		domain.TicketStatusInProgress, domain.TicketStatusWaiting, domain.TicketStatusOnHold,
		domain.TicketStatusAssigned, domain.TicketStatusClosed,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusWaiting, domain.TicketStatusOnHold, domain.TicketStatusAssigned, domain.TicketStatusClosed,
	},
	domain.TicketStatusWaiting: {
		domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.TicketStatusAssigned, domain.TicketStatusClosed,
	},
	domain.TicketStatusOnHold: {
		domain.TicketStatusInProgress, domain.TicketStatusWaiting, domain.TicketStatusAssigned, domain.TicketStatusClosed,
	},
	domain.TicketStatusClosed: {},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NextStatuses returns a copy of the legal targets from status.
func NextStatuses(from domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus(nil), allowedTransitions[from]...)
}

// Change describes a requested mutation.
type Change struct {
	Note      string
	ChangedBy string
	At        time.Time
}

// NormalizeNote trims the note and rejects blank values.
func NormalizeNote(note string) (string, error) {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return "", apperrors.ErrNoteRequired
	}
	return trimmed, nil
}

// Transition moves the ticket to a new status. Closing requires Close.
func Transition(ticket domain.Ticket, to domain.TicketStatus, change Change) (domain.Ticket, domain.TicketHistoryEntry, error) {
	note, err := NormalizeNote(change.Note)
	if err != nil {
		return ticket, domain.TicketHistoryEntry{}, err
	}
	if !to.Valid() || !CanTransition(ticket.Status, to) {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewInvalidTransition(string(ticket.Status), string(to))
	}
	if to == domain.TicketStatusClosed {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewValidationError("closure_code_id is required to close a ticket",
			map[string]any{"field": "closure_code_id"})
	}

	next := ticket.Clone()
	next.Status = to
	return next, entryFor(ticket, next, domain.ChangeTypeStatus, note, change), nil
}

// Assign sets the assignee. Claiming a New ticket performs New -> Assigned;
// any other open status is kept as is.
func Assign(ticket domain.Ticket, assigneeID string, change Change) (domain.Ticket, domain.TicketHistoryEntry, error) {
	note, err := NormalizeNote(change.Note)
	if err != nil {
		return ticket, domain.TicketHistoryEntry{}, err
	}
	if assigneeID == "" {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewValidationError("assignee is required", nil)
	}
	if ticket.IsClosed() {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}

	next := ticket.Clone()
	if ticket.Status == domain.TicketStatusNew {
		next.Status = domain.TicketStatusAssigned
	}
	next.AssignedTo = &assigneeID
	at := change.At
	next.AssignedAt = &at
	return next, entryFor(ticket, next, domain.ChangeTypeAssignment, note, change), nil
}

// Close is the only transition that sets closedAt and the closure code.
func Close(ticket domain.Ticket, closureCodeID string, change Change) (domain.Ticket, domain.TicketHistoryEntry, error) {
	note, err := NormalizeNote(change.Note)
	if err != nil {
		return ticket, domain.TicketHistoryEntry{}, err
	}
	if strings.TrimSpace(closureCodeID) == "" {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewValidationError("closure_code_id is required",
			map[string]any{"field": "closure_code_id"})
	}
	if !CanTransition(ticket.Status, domain.TicketStatusClosed) {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusClosed))
	}

	next := ticket.Clone()
	next.Status = domain.TicketStatusClosed
	code := strings.TrimSpace(closureCodeID)
	next.ClosureCodeID = &code
	at := change.At
	next.ClosedAt = &at
	return next, entryFor(ticket, next, domain.ChangeTypeClosure, note, change), nil
}

// Annotate records a priority change. Status is unchanged, so the history
// entry carries equal old and new status.
func Annotate(ticket domain.Ticket, priority int, change Change) (domain.Ticket, domain.TicketHistoryEntry, error) {
	note, err := NormalizeNote(change.Note)
	if err != nil {
		return ticket, domain.TicketHistoryEntry{}, err
	}
	if !domain.ValidPriority(priority) {
		return ticket, domain.TicketHistoryEntry{}, apperrors.NewValidationError("priority must be 1, 2, 3, or 4",
			map[string]any{"field": "priority"})
	}
	if ticket.IsClosed() {
		return ticket, domain.TicketHistoryEntry{}, apperrors.ErrImmutableTicket
	}

	next := ticket.Clone()
	next.Priority = &priority
	return next, entryFor(ticket, next, domain.ChangeTypePriority, note, change), nil
}

// Created returns the initial history entry for a new ticket.
func Created(ticket domain.Ticket, change Change) domain.TicketHistoryEntry {
	note := strings.TrimSpace(change.Note)
	if note == "" {
		note = "Ticket created"
	}
	return domain.TicketHistoryEntry{
		TicketID:   ticket.ID,
		ChangeType: domain.ChangeTypeCreated,
		NewStatus:  domain.TicketStatusNew,
		Note:       note,
		ChangedBy:  change.ChangedBy,
		ChangedAt:  change.At,
	}
}

func entryFor(prev, next domain.Ticket, kind domain.TicketChangeType, note string, change Change) domain.TicketHistoryEntry {
	return domain.TicketHistoryEntry{
		TicketID:   prev.ID,
		ChangeType: kind,
		OldStatus:  prev.Status,
		NewStatus:  next.Status,
		Note:       note,
		ChangedBy:  change.ChangedBy,
		ChangedAt:  change.At,
	}
}
