// Package authz decides whether a principal may perform an action on a ticket.
// Decisions are pure: everything needed comes in as arguments.
package authz

import (
	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// Action identifies a guarded ticket operation.
type Action string

const (
	ViewTicket     Action = "ticket.view"
	CreateTicket   Action = "ticket.create"
	ViewHistory    Action = "ticket.history"
	AssignTicket   Action = "ticket.assign"
	ReassignTicket Action = "ticket.reassign"
	UpdateStatus   Action = "ticket.status"
	UpdatePriority Action = "ticket.priority"
	CloseTicket    Action = "ticket.close"
)

var minimumRole = map[Action]domain.Role{
	ViewTicket:     domain.RoleUser,
	CreateTicket:   domain.RoleUser,
	ViewHistory:    domain.RoleUser,
	AssignTicket:   domain.RoleEmployee,
	ReassignTicket: domain.RoleManager,
	UpdateStatus:   domain.RoleEmployee,
	UpdatePriority: domain.RoleEmployee,
	CloseTicket:    domain.RoleEmployee,
}

// MinimumRole returns the role floor for action.
func MinimumRole(action Action) (domain.Role, bool) {
	role, ok := minimumRole[action]
	return role, ok
}

// Mutating reports whether action changes the ticket.
func (a Action) Mutating() bool {
	switch a {
	case AssignTicket, ReassignTicket, UpdateStatus, UpdatePriority, CloseTicket:
		return true
	}
	return false
}

// Reason explains a denial.
type Reason string

const (
	InsufficientRole Reason = "InsufficientRole"
	NotVisible       Reason = "NotVisible"
	NotSelf          Reason = "NotSelf"
	NotInTeam        Reason = "NotInTeam"
	NotAssignee      Reason = "NotAssignee"
	ImmutableTicket  Reason = "ImmutableTicket"
)

// Decision is the outcome of Authorize. The zero value denies.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err maps a denial to its error code. Allowed decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case InsufficientRole:
		return apperrors.NewForbidden(apperrors.CodeInsufficientRole, "your role does not permit this action")
	case NotVisible:
		return apperrors.NewNotFound("ticket", nil)
	case NotSelf:
		return apperrors.NewForbidden(apperrors.CodeNotSelf, "employees may only assign tickets to themselves")
	case NotInTeam:
		return apperrors.NewForbidden(apperrors.CodeNotInTeam, "target user is not in your team")
	case NotAssignee:
		return apperrors.NewForbidden(apperrors.CodeNotAssignee, "only the assignee or their manager may change this ticket")
	case ImmutableTicket:
		return apperrors.ErrImmutableTicket
	default:
		return apperrors.ErrForbidden
	}
}

// Resource is what an action targets. Target is the requested assignee for
// assign and reassign; nil means the caller itself.
type Resource struct {
	Ticket *domain.Ticket
	Target *string
}

// Authorize resolves role floor, then ownership scope, then immutability.
// Immutability applies to every role.
func Authorize(p *domain.Principal, action Action, res Resource) Decision {
	floor, ok := MinimumRole(action)
	if !ok || !p.HasAtLeast(floor) {
		return deny(InsufficientRole)
	}

	if d := scope(p, action, res); !d.Allowed {
		return d
	}

	if action.Mutating() && res.Ticket.IsClosed() {
		return deny(ImmutableTicket)
	}
	return allow()
}

func scope(p *domain.Principal, action Action, res Resource) Decision {
	switch action {
	case CreateTicket:
		return allow()
	case ViewTicket, ViewHistory:
		if !CanView(p, res.Ticket) {
			return deny(NotVisible)
		}
		return allow()
	case AssignTicket:
		return assignScope(p, res.Target)
	case ReassignTicket:
		if res.Target == nil || *res.Target == p.ID {
			return allow()
		}
		return teamScope(p, *res.Target)
	case UpdateStatus, UpdatePriority, CloseTicket:
		return mutateScope(p, res.Ticket)
	}
	return deny(InsufficientRole)
}

func assignScope(p *domain.Principal, target *string) Decision {
	if target == nil || *target == "" || *target == p.ID {
		return allow()
	}
	if !p.HasAtLeast(domain.RoleManager) {
		return deny(NotSelf)
	}
	return teamScope(p, *target)
}

func teamScope(p *domain.Principal, target string) Decision {
	if p.HasRole(domain.RoleAdmin) {
		return allow()
	}
	if p.HasRole(domain.RoleManager) && p.ManagesMember(target) {
		return allow()
	}
	return deny(NotInTeam)
}

func mutateScope(p *domain.Principal, t *domain.Ticket) Decision {
	if t == nil {
		return deny(NotAssignee)
	}
	if p.HasRole(domain.RoleAdmin) || t.IsAssignedTo(p.ID) {
		return allow()
	}
	if t.AssignedTo != nil && p.HasRole(domain.RoleManager) && p.ManagesMember(*t.AssignedTo) {
		return allow()
	}
	return deny(NotAssignee)
}

// CanView reports whether the ticket is within the principal's view scope.
// Callers collapse a false result to NOT_FOUND.
func CanView(p *domain.Principal, t *domain.Ticket) bool {
	if p == nil || t == nil {
		return false
	}
	if p.HasRole(domain.RoleAdmin) {
		return true
	}
	if t.CreatedBy == p.ID || t.IsAssignedTo(p.ID) {
		return true
	}
	if p.InDepartment(t.DepartmentID, domain.RoleEmployee) {
		return true
	}
	if t.AssignedTo != nil && p.HasRole(domain.RoleManager) && p.ManagesMember(*t.AssignedTo) {
		return true
	}
	return false
}
