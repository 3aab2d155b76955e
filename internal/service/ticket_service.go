package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/authz"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/events"
	"github.com/spec-kit/itsm-portal/internal/observability"
	"github.com/spec-kit/itsm-portal/internal/repository"
	"github.com/spec-kit/itsm-portal/internal/ticketflow"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets      repository.TicketRepository
	history      repository.TicketHistoryRepository
	users        repository.UserRepository
	departments  repository.DepartmentRepository
	closureCodes repository.ClosureCodeRepository
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	HistoryRepo     repository.TicketHistoryRepository
	UserRepo        repository.UserRepository
	DepartmentRepo  repository.DepartmentRepository
	ClosureCodeRepo repository.ClosureCodeRepository
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	DepartmentID string
}

// TicketListInput pages through the caller's own tickets.
type TicketListInput struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// AssignInput targets a user; nil AssignedTo means the caller. Note is
// optional for assign and mandatory for reassign.
type AssignInput struct {
	AssignedTo *string
	Note       string
	Version    *int
}

// StatusInput requests a status transition.
type StatusInput struct {
	Status  domain.TicketStatus
	Note    string
	Version *int
}

// PriorityInput requests a priority change.
type PriorityInput struct {
	Priority int
	Note     string
	Version  *int
}

// CloseInput requests closure.
type CloseInput struct {
	ClosureCodeID string
	Note          string
	Version       *int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		history:      deps.HistoryRepo,
		users:        deps.UserRepo,
		departments:  deps.DepartmentRepo,
		closureCodes: deps.ClosureCodeRepo,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          now,
	}
}

// Create opens a ticket in status New for the caller.
func (s *TicketService) Create(ctx context.Context, p *domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if err := authz.Authorize(p, authz.CreateTicket, authz.Resource{}).Err(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	if _, err := uuid.Parse(input.DepartmentID); err != nil {
		return nil, apperrors.NewValidationError("department_id must be a valid id", map[string]any{"field": "department_id"})
	}
	if _, err := s.departments.GetByID(ctx, input.DepartmentID); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &domain.Ticket{
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusNew,
		CreatedBy:    p.ID,
		DepartmentID: input.DepartmentID,
		CreatedAt:    now,
	}
	entry := ticketflow.Created(*ticket, ticketflow.Change{ChangedBy: p.ID, At: now})
	if err := s.tickets.Create(ctx, ticket, &entry); err != nil {
		return nil, err
	}

	s.recordChange(ctx, events.EventTicketCreated, p, ticket, entry)
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("number", ticket.Number))
	return ticket, nil
}

// Get returns a ticket the caller can see. Tickets outside the caller's view
// scope are reported as not found.
func (s *TicketService) Get(ctx context.Context, p *domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ViewTicket, authz.Resource{Ticket: ticket}).Err(); err != nil {
		return nil, err
	}
	return ticket, nil
}

// List returns tickets created by the caller.
func (s *TicketService) List(ctx context.Context, p *domain.Principal, input TicketListInput) ([]domain.Ticket, error) {
	if p == nil {
		return nil, apperrors.ErrUnauthorized
	}
	for _, status := range input.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(status)})
		}
	}
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.tickets.List(ctx, repository.TicketFilter{
		CreatedBy: &p.ID,
		Statuses:  input.Statuses,
		Limit:     limit,
		Offset:    input.Offset,
	})
}

// History returns the audit trail for a visible ticket, oldest first.
func (s *TicketService) History(ctx context.Context, p *domain.Principal, ticketID string) ([]domain.TicketHistoryEntry, error) {
	ticket, err := s.loadVisible(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ViewHistory, authz.Resource{Ticket: ticket}).Err(); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticket.ID)
}

// Assign sets the assignee. Without a note the history records who the
// ticket went to.
func (s *TicketService) Assign(ctx context.Context, p *domain.Principal, ticketID string, input AssignInput) (*domain.Ticket, error) {
	return s.assign(ctx, p, ticketID, authz.AssignTicket, events.EventTicketAssigned, strings.TrimSpace(input.Note), input)
}

// Reassign moves a ticket to another member of the caller's team.
func (s *TicketService) Reassign(ctx context.Context, p *domain.Principal, ticketID string, input AssignInput) (*domain.Ticket, error) {
	note, err := ticketflow.NormalizeNote(input.Note)
	if err != nil {
		return nil, err
	}
	if input.AssignedTo == nil || strings.TrimSpace(*input.AssignedTo) == "" {
		return nil, apperrors.NewValidationError("assigned_to is required", map[string]any{"field": "assigned_to"})
	}
	return s.assign(ctx, p, ticketID, authz.ReassignTicket, events.EventTicketReassigned, note, input)
}

func (s *TicketService) assign(ctx context.Context, p *domain.Principal, ticketID string, action authz.Action, eventType events.EventType, note string, input AssignInput) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	target := input.AssignedTo
	if target != nil && (strings.TrimSpace(*target) == "" || *target == p.ID) {
		target = nil
	}
	if err := authz.Authorize(p, action, authz.Resource{Ticket: ticket, Target: target}).Err(); err != nil {
		return nil, err
	}
	if err := checkVersion(ticket, input.Version); err != nil {
		return nil, err
	}

	assigneeID, assigneeName := p.ID, p.Name
	if target != nil {
		user, err := s.lookupAssignee(ctx, *target)
		if err != nil {
			return nil, err
		}
		assigneeID, assigneeName = user.ID, user.Name
	}
	if note == "" {
		note = fmt.Sprintf("Ticket assigned to %s", assigneeName)
	}

	next, entry, err := ticketflow.Assign(*ticket, assigneeID, s.change(p, note))
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, p, ticket.Version, next, entry, eventType)
}

// UpdateStatus moves the ticket along the transition table.
func (s *TicketService) UpdateStatus(ctx context.Context, p *domain.Principal, ticketID string, input StatusInput) (*domain.Ticket, error) {
	note, err := ticketflow.NormalizeNote(input.Note)
	if err != nil {
		return nil, err
	}
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"field": "status", "status": string(input.Status)})
	}
	ticket, err := s.authorizedForMutation(ctx, p, ticketID, authz.UpdateStatus, input.Version)
	if err != nil {
		return nil, err
	}
	next, entry, err := ticketflow.Transition(*ticket, input.Status, s.change(p, note))
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, p, ticket.Version, next, entry, events.EventTicketStatusChanged)
}

// UpdatePriority sets priority 1..4 on an open ticket.
func (s *TicketService) UpdatePriority(ctx context.Context, p *domain.Principal, ticketID string, input PriorityInput) (*domain.Ticket, error) {
	note, err := ticketflow.NormalizeNote(input.Note)
	if err != nil {
		return nil, err
	}
	if !domain.ValidPriority(input.Priority) {
		return nil, apperrors.NewValidationError("priority must be 1, 2, 3, or 4", map[string]any{"field": "priority"})
	}
	ticket, err := s.authorizedForMutation(ctx, p, ticketID, authz.UpdatePriority, input.Version)
	if err != nil {
		return nil, err
	}
	next, entry, err := ticketflow.Annotate(*ticket, input.Priority, s.change(p, note))
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, p, ticket.Version, next, entry, events.EventTicketPriorityChanged)
}

// Close resolves the ticket with an active closure code.
func (s *TicketService) Close(ctx context.Context, p *domain.Principal, ticketID string, input CloseInput) (*domain.Ticket, error) {
	note, err := ticketflow.NormalizeNote(input.Note)
	if err != nil {
		return nil, err
	}
	codeID := strings.TrimSpace(input.ClosureCodeID)
	if codeID == "" {
		return nil, apperrors.NewValidationError("closure_code_id is required", map[string]any{"field": "closure_code_id"})
	}
	ticket, err := s.authorizedForMutation(ctx, p, ticketID, authz.CloseTicket, input.Version)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(codeID); err != nil {
		return nil, apperrors.NewNotFound("closure code", nil)
	}
	code, err := s.closureCodes.GetActiveByID(ctx, codeID)
	if err != nil {
		return nil, err
	}
	next, entry, err := ticketflow.Close(*ticket, code.ID, s.change(p, note))
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, p, ticket.Version, next, entry, events.EventTicketClosed)
}

func (s *TicketService) authorizedForMutation(ctx context.Context, p *domain.Principal, ticketID string, action authz.Action, version *int) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, action, authz.Resource{Ticket: ticket}).Err(); err != nil {
		return nil, err
	}
	if err := checkVersion(ticket, version); err != nil {
		return nil, err
	}
	return ticket, nil
}

// loadVisible collapses "missing" and "not visible" into the same NOT_FOUND.
func (s *TicketService) loadVisible(ctx context.Context, p *domain.Principal, ticketID string) (*domain.Ticket, error) {
	if p == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !authz.CanView(p, ticket) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

func (s *TicketService) lookupAssignee(ctx context.Context, userID string) (*domain.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperrors.NewNotFound("target user", nil)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.NewNotFound("target user", nil)
	}
	return user, nil
}

func checkVersion(ticket *domain.Ticket, version *int) error {
	if version != nil && *version != ticket.Version {
		return apperrors.ErrVersionConflict
	}
	return nil
}

func (s *TicketService) change(p *domain.Principal, note string) ticketflow.Change {
	return ticketflow.Change{Note: note, ChangedBy: p.ID, At: s.now()}
}

func (s *TicketService) persist(ctx context.Context, p *domain.Principal, expectedVersion int, next domain.Ticket, entry domain.TicketHistoryEntry, eventType events.EventType) (*domain.Ticket, error) {
	if err := s.tickets.ApplyChange(ctx, &next, expectedVersion, &entry); err != nil {
		return nil, err
	}
	s.recordChange(ctx, eventType, p, &next, entry)
	s.logger.Info("ticket changed",
		zap.String("ticket_id", next.ID),
		zap.String("change_type", string(entry.ChangeType)),
		zap.String("old_status", string(entry.OldStatus)),
		zap.String("new_status", string(entry.NewStatus)),
		zap.Int("version", next.Version))
	return &next, nil
}

func (s *TicketService) recordChange(ctx context.Context, eventType events.EventType, p *domain.Principal, ticket *domain.Ticket, entry domain.TicketHistoryEntry) {
	s.metrics.RecordTicketChange(string(entry.ChangeType))
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, ticket.ID, p.ID, entry.ChangedAt, events.TicketChangedPayload{
		Number:     ticket.Number,
		ChangeType: entry.ChangeType,
		OldStatus:  entry.OldStatus,
		NewStatus:  entry.NewStatus,
		AssignedTo: ticket.AssignedTo,
		Priority:   ticket.Priority,
		Note:       entry.Note,
		Version:    ticket.Version,
	}))
}
