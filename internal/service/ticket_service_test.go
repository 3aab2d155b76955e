package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/events"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

type ticketFixture struct {
	svc        *TicketService
	tickets    *memTicketRepo
	users      *memUserRepo
	dispatcher *recordingDispatcher

	dept        string
	closureCode string
	retiredCode string

	requester *domain.Principal
	employee  *domain.Principal
	colleague *domain.Principal
	manager   *domain.Principal
	outsider  *domain.Principal
	admin     *domain.Principal
}

func principalFor(u domain.User, assignments []domain.RoleAssignment, members ...string) *domain.Principal {
	return &domain.Principal{ID: u.ID, Name: u.Name, Email: u.Email, Assignments: assignments, TeamMembers: members}
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	f := &ticketFixture{
		tickets:     newMemTicketRepo(),
		users:       newMemUserRepo(),
		dispatcher:  &recordingDispatcher{},
		dept:        uuid.NewString(),
		closureCode: uuid.NewString(),
		retiredCode: uuid.NewString(),
	}
	otherDept := uuid.NewString()

	mk := func(name string, role domain.Role, dept *string, members ...string) *domain.Principal {
		assignments := []domain.RoleAssignment{{Role: role, DepartmentID: dept}}
		u := f.users.add(domain.User{Name: name, Email: strings.ToLower(name) + "@corp.test", IsActive: true}, assignments...)
		return principalFor(u, assignments, members...)
	}
	f.requester = mk("Rita", domain.RoleUser, &f.dept)
	f.employee = mk("Erin", domain.RoleEmployee, &f.dept)
	f.colleague = mk("Cole", domain.RoleEmployee, &f.dept)
	f.manager = mk("Mona", domain.RoleManager, &f.dept, f.employee.ID)
	f.outsider = mk("Otto", domain.RoleEmployee, &otherDept)
	f.admin = mk("Ada", domain.RoleAdmin, nil)

	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:     f.tickets,
		HistoryRepo:    f.tickets,
		UserRepo:       f.users,
		DepartmentRepo: memDepartmentRepo{ids: map[string]bool{f.dept: true, otherDept: true}},
		ClosureCodeRepo: memClosureCodeRepo{codes: map[string]domain.ClosureCode{
			f.closureCode: {ID: f.closureCode, Code: "RESOLVED", IsActive: true},
			f.retiredCode: {ID: f.retiredCode, Code: "OBSOLETE", IsActive: false},
		}},
		Dispatcher: f.dispatcher,
		Logger:     zaptest.NewLogger(t),
	})
	return f
}

// seed stores a ticket created by the requester in the fixture department.
func (f *ticketFixture) seed(status domain.TicketStatus, assignee *domain.Principal) domain.Ticket {
	t := domain.Ticket{
		ID:           uuid.NewString(),
		Number:       "TKT-20260101-00001",
		Title:        "Printer on fire",
		Status:       status,
		CreatedBy:    f.requester.ID,
		DepartmentID: f.dept,
		Version:      3,
		CreatedAt:    time.Now(),
	}
	if assignee != nil {
		id := assignee.ID
		t.AssignedTo = &id
	}
	if status == domain.TicketStatusClosed {
		code := f.closureCode
		t.ClosureCodeID = &code
	}
	f.tickets.put(t)
	return t
}

func (f *ticketFixture) stored(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func TestCreateTicket(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, f.requester, TicketCreateInput{
		Title:        "  VPN is down ",
		Description:  "cannot connect",
		DepartmentID: f.dept,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, "VPN is down", ticket.Title)
	assert.Equal(t, f.requester.ID, ticket.CreatedBy)
	assert.Equal(t, 1, ticket.Version)
	assert.Regexp(t, `^TKT-\d{8}-00001$`, ticket.Number)

	history, err := f.svc.History(ctx, f.requester, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)
	assert.Equal(t, domain.TicketStatus(""), history[0].OldStatus)
	assert.Equal(t, domain.TicketStatusNew, history[0].NewStatus)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.dispatcher.types())
}

func TestCreateTicketValidation(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.requester, TicketCreateInput{Title: " ", DepartmentID: f.dept})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))

	_, err = f.svc.Create(ctx, f.requester, TicketCreateInput{Title: "x", DepartmentID: "not-a-uuid"})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))

	_, err = f.svc.Create(ctx, f.requester, TicketCreateInput{Title: "x", DepartmentID: uuid.NewString()})
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))
}

func TestAssignSelfMovesNewToAssigned(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusNew, nil)

	ticket, err := f.svc.Assign(context.Background(), f.employee, seeded.ID, AssignInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	assert.True(t, ticket.IsAssignedTo(f.employee.ID))
	assert.NotNil(t, ticket.AssignedAt)
	assert.Equal(t, seeded.Version+1, ticket.Version)

	history, err := f.tickets.ListByTicket(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeAssignment, history[0].ChangeType)
	assert.Equal(t, "Ticket assigned to Erin", history[0].Note)
	assert.Equal(t, []events.EventType{events.EventTicketAssigned}, f.dispatcher.types())
}

func TestEmployeeCannotAssignOthers(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusNew, nil)
	target := f.colleague.ID

	_, err := f.svc.Assign(context.Background(), f.employee, seeded.ID, AssignInput{AssignedTo: &target})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotSelf, codeOf(err))
	assert.Equal(t, domain.TicketStatusNew, f.stored(t, seeded.ID).Status)
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
}

func TestAssignToOwnIDCountsAsSelf(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusNew, nil)
	self := f.employee.ID

	ticket, err := f.svc.Assign(context.Background(), f.employee, seeded.ID, AssignInput{AssignedTo: &self, Note: "taking it"})
	require.NoError(t, err)
	assert.True(t, ticket.IsAssignedTo(self))
}

func TestAssignUnknownTarget(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusNew, nil)
	target := uuid.NewString()

	_, err := f.svc.Assign(context.Background(), f.admin, seeded.ID, AssignInput{AssignedTo: &target})
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))
}

func TestManagerReassignOutsideTeamLeavesNoHistory(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.employee)
	target := f.colleague.ID

	_, err := f.svc.Reassign(context.Background(), f.manager, seeded.ID, AssignInput{AssignedTo: &target, Note: "workload"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotInTeam, codeOf(err))
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
	assert.True(t, f.stored(t, seeded.ID).IsAssignedTo(f.employee.ID))
}

func TestManagerReassignWithinTeam(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.colleague)
	target := f.employee.ID

	ticket, err := f.svc.Reassign(context.Background(), f.manager, seeded.ID, AssignInput{AssignedTo: &target, Note: "  Erin knows VPN  "})
	require.NoError(t, err)
	assert.True(t, ticket.IsAssignedTo(target))
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	history, _ := f.tickets.ListByTicket(context.Background(), seeded.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "Erin knows VPN", history[0].Note)
	assert.Equal(t, []events.EventType{events.EventTicketReassigned}, f.dispatcher.types())
}

func TestReassignRequiresManager(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	target := f.colleague.ID

	_, err := f.svc.Reassign(context.Background(), f.employee, seeded.ID, AssignInput{AssignedTo: &target, Note: "swap"})
	assert.Equal(t, apperrors.CodeInsufficientRole, codeOf(err))
}

func TestReassignRequiresNoteAndTarget(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	target := f.employee.ID

	_, err := f.svc.Reassign(context.Background(), f.manager, seeded.ID, AssignInput{AssignedTo: &target, Note: " \t"})
	assert.Equal(t, apperrors.CodeNoteRequired, codeOf(err))

	_, err = f.svc.Reassign(context.Background(), f.manager, seeded.ID, AssignInput{Note: "swap"})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))
}

func TestUpdateStatus(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)

	ticket, err := f.svc.UpdateStatus(context.Background(), f.employee, seeded.ID, StatusInput{
		Status: domain.TicketStatusInProgress,
		Note:   "looking into it",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	history, _ := f.tickets.ListByTicket(context.Background(), seeded.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TicketStatusAssigned, history[0].OldStatus)
	assert.Equal(t, domain.TicketStatusInProgress, history[0].NewStatus)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusNew, nil)

	_, err := f.svc.UpdateStatus(context.Background(), f.admin, seeded.ID, StatusInput{
		Status: domain.TicketStatusInProgress,
		Note:   "skip ahead",
	})
	assert.Equal(t, apperrors.CodeInvalidStatusTransition, codeOf(err))
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
}

func TestUpdateStatusToClosedNeedsClose(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.employee)

	_, err := f.svc.UpdateStatus(context.Background(), f.employee, seeded.ID, StatusInput{
		Status: domain.TicketStatusClosed,
		Note:   "done",
	})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))
	assert.Equal(t, domain.TicketStatusInProgress, f.stored(t, seeded.ID).Status)
}

func TestUnassignedEmployeeCannotChangeStatus(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)

	_, err := f.svc.UpdateStatus(context.Background(), f.colleague, seeded.ID, StatusInput{
		Status: domain.TicketStatusWaiting,
		Note:   "poke",
	})
	assert.Equal(t, apperrors.CodeNotAssignee, codeOf(err))
}

func TestBlankNoteRejectedBeforeAuthorization(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	ctx := context.Background()

	// The requester lacks the role for every one of these; the note check
	// still wins.
	_, err := f.svc.UpdateStatus(ctx, f.requester, seeded.ID, StatusInput{Status: domain.TicketStatusInProgress, Note: "   "})
	assert.Equal(t, apperrors.CodeNoteRequired, codeOf(err))

	_, err = f.svc.UpdatePriority(ctx, f.requester, seeded.ID, PriorityInput{Priority: 2})
	assert.Equal(t, apperrors.CodeNoteRequired, codeOf(err))

	_, err = f.svc.Close(ctx, f.requester, seeded.ID, CloseInput{ClosureCodeID: f.closureCode, Note: "\n"})
	assert.Equal(t, apperrors.CodeNoteRequired, codeOf(err))

	// Also on a ticket that does not exist.
	_, err = f.svc.UpdateStatus(ctx, f.admin, uuid.NewString(), StatusInput{Status: domain.TicketStatusInProgress})
	assert.Equal(t, apperrors.CodeNoteRequired, codeOf(err))
}

func TestCloseRequiresClosureCode(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.employee)

	_, err := f.svc.Close(context.Background(), f.employee, seeded.ID, CloseInput{Note: "fixed"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))

	stored := f.stored(t, seeded.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Nil(t, stored.ClosedAt)
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
}

func TestCloseRejectsInactiveOrUnknownCode(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.employee)

	for _, code := range []string{f.retiredCode, uuid.NewString(), "garbage"} {
		_, err := f.svc.Close(context.Background(), f.employee, seeded.ID, CloseInput{ClosureCodeID: code, Note: "fixed"})
		assert.Equal(t, apperrors.CodeNotFound, codeOf(err), code)
	}
	assert.Equal(t, domain.TicketStatusInProgress, f.stored(t, seeded.ID).Status)
}

func TestCloseTicket(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusWaiting, f.employee)

	ticket, err := f.svc.Close(context.Background(), f.manager, seeded.ID, CloseInput{ClosureCodeID: f.closureCode, Note: "fixed"})
	require.NoError(t, err)
	assert.True(t, ticket.IsClosed())
	require.NotNil(t, ticket.ClosureCodeID)
	assert.Equal(t, f.closureCode, *ticket.ClosureCodeID)
	assert.NotNil(t, ticket.ClosedAt)

	history, _ := f.tickets.ListByTicket(context.Background(), seeded.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeClosure, history[0].ChangeType)
	assert.Equal(t, domain.TicketStatusWaiting, history[0].OldStatus)
	assert.Equal(t, []events.EventType{events.EventTicketClosed}, f.dispatcher.types())
}

func TestClosedTicketIsImmutableForEveryRole(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusClosed, f.employee)
	ctx := context.Background()
	target := f.employee.ID

	for _, p := range []*domain.Principal{f.employee, f.manager, f.admin} {
		mutations := map[string]func() error{
			"assign": func() error {
				_, err := f.svc.Assign(ctx, p, seeded.ID, AssignInput{Note: "mine"})
				return err
			},
			"status": func() error {
				_, err := f.svc.UpdateStatus(ctx, p, seeded.ID, StatusInput{Status: domain.TicketStatusInProgress, Note: "reopen"})
				return err
			},
			"priority": func() error {
				_, err := f.svc.UpdatePriority(ctx, p, seeded.ID, PriorityInput{Priority: 1, Note: "urgent"})
				return err
			},
			"close": func() error {
				_, err := f.svc.Close(ctx, p, seeded.ID, CloseInput{ClosureCodeID: f.closureCode, Note: "again"})
				return err
			},
		}
		if p.HasAtLeast(domain.RoleManager) {
			mutations["reassign"] = func() error {
				_, err := f.svc.Reassign(ctx, p, seeded.ID, AssignInput{AssignedTo: &target, Note: "move"})
				return err
			}
		}
		for name, mutate := range mutations {
			assert.Equal(t, apperrors.CodeImmutableTicket, codeOf(mutate()), "%s by %s", name, p.Name)
		}
	}
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
}

func TestUpdatePriority(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusInProgress, f.employee)

	_, err := f.svc.UpdatePriority(context.Background(), f.employee, seeded.ID, PriorityInput{Priority: 5, Note: "x"})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))

	ticket, err := f.svc.UpdatePriority(context.Background(), f.employee, seeded.ID, PriorityInput{Priority: 1, Note: "CEO laptop"})
	require.NoError(t, err)
	require.NotNil(t, ticket.Priority)
	assert.Equal(t, 1, *ticket.Priority)

	history, _ := f.tickets.ListByTicket(context.Background(), seeded.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypePriority, history[0].ChangeType)
	assert.Equal(t, history[0].OldStatus, history[0].NewStatus)
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	stale := seeded.Version - 1

	_, err := f.svc.UpdateStatus(context.Background(), f.employee, seeded.ID, StatusInput{
		Status:  domain.TicketStatusInProgress,
		Note:    "go",
		Version: &stale,
	})
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Zero(t, f.tickets.historyCount(seeded.ID))
}

func TestConcurrentWriteIsRejected(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	f.tickets.beforeApply = func() {
		f.tickets.beforeApply = nil
		bumped := seeded
		bumped.Version++
		f.tickets.put(bumped)
	}

	_, err := f.svc.UpdateStatus(context.Background(), f.employee, seeded.ID, StatusInput{
		Status: domain.TicketStatusOnHold,
		Note:   "parts on order",
	})
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Empty(t, f.dispatcher.types())
}

func TestInvisibleTicketsLookMissing(t *testing.T) {
	f := newTicketFixture(t)
	seeded := f.seed(domain.TicketStatusAssigned, f.employee)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.outsider, seeded.ID)
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))

	_, err = f.svc.History(ctx, f.outsider, seeded.ID)
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.outsider, seeded.ID, StatusInput{Status: domain.TicketStatusWaiting, Note: "hi"})
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))

	_, err = f.svc.Get(ctx, f.outsider, "not-a-uuid")
	assert.Equal(t, apperrors.CodeNotFound, codeOf(err))

	got, err := f.svc.Get(ctx, f.requester, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
}

func TestListReturnsOwnTickets(t *testing.T) {
	f := newTicketFixture(t)
	f.seed(domain.TicketStatusNew, nil)
	f.seed(domain.TicketStatusAssigned, f.employee)

	mine, err := f.svc.List(context.Background(), f.requester, TicketListInput{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.List(context.Background(), f.employee, TicketListInput{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.svc.List(context.Background(), f.requester, TicketListInput{Statuses: []domain.TicketStatus{"Done"}})
	assert.Equal(t, apperrors.CodeValidation, codeOf(err))
}
