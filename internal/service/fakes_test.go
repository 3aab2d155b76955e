package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/events"
	"github.com/spec-kit/itsm-portal/internal/repository"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	history []domain.TicketHistoryEntry
	seq     int
	// beforeApply runs inside ApplyChange before the version check.
	beforeApply func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket, entry *domain.TicketHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = uuid.NewString()
	ticket.Number = repository.FormatTicketNumber(ticket.CreatedAt, r.seq)
	ticket.Version = 1
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = ticket.Clone()
	entry.ID = uuid.NewString()
	entry.TicketID = ticket.ID
	r.history = append(r.history, *entry)
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	out := t.Clone()
	return &out, nil
}

func (r *memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *memTicketRepo) ApplyChange(_ context.Context, ticket *domain.Ticket, expectedVersion int, entry *domain.TicketHistoryEntry) error {
	if r.beforeApply != nil {
		r.beforeApply()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.Version != expectedVersion {
		return apperrors.ErrVersionConflict
	}
	ticket.Version = expectedVersion + 1
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = ticket.Clone()
	entry.ID = uuid.NewString()
	entry.TicketID = ticket.ID
	r.history = append(r.history, *entry)
	return nil
}

func (r *memTicketRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistoryEntry
	for _, e := range r.history {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memTicketRepo) put(t domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Clone()
}

func (r *memTicketRepo) historyCount(ticketID string) int {
	entries, _ := r.ListByTicket(context.Background(), ticketID)
	return len(entries)
}

type memUserRepo struct {
	mu          sync.Mutex
	users       map[string]domain.User
	assignments map[string][]domain.RoleAssignment
	touched     []string
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:       make(map[string]domain.User),
		assignments: make(map[string][]domain.RoleAssignment),
	}
}

func (r *memUserRepo) add(u domain.User, assignments ...domain.RoleAssignment) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.users[u.ID] = u
	r.assignments[u.ID] = assignments
	return u
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}
	return &u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFound("user", nil)
}

func (r *memUserRepo) ListAssignments(_ context.Context, userID string) ([]domain.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RoleAssignment(nil), r.assignments[userID]...), nil
}

func (r *memUserRepo) TouchLastLogin(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, userID)
	return nil
}

type memTeamRepo struct {
	members map[string][]string
}

func (r *memTeamRepo) MembersManagedBy(_ context.Context, managerID string) ([]string, error) {
	return r.members[managerID], nil
}

type memDepartmentRepo struct {
	ids map[string]bool
}

func (r memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	if !r.ids[id] {
		return nil, apperrors.NewNotFound("department", nil)
	}
	return &domain.Department{ID: id, Name: "IT"}, nil
}

type memClosureCodeRepo struct {
	codes map[string]domain.ClosureCode
}

func (r memClosureCodeRepo) GetActiveByID(_ context.Context, id string) (*domain.ClosureCode, error) {
	c, ok := r.codes[id]
	if !ok || !c.IsActive {
		return nil, apperrors.NewNotFound("closure code", nil)
	}
	return &c, nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (r *memRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]time.Time)
	}
	r.revoked[jti] = until
	return nil
}

func (r *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return apperrors.ToDomainError(err).Code
}
