package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/auth"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/service"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// TicketUseCases is the slice of service.TicketService the handler needs.
type TicketUseCases interface {
	Create(ctx context.Context, p *domain.Principal, input service.TicketCreateInput) (*domain.Ticket, error)
	Get(ctx context.Context, p *domain.Principal, ticketID string) (*domain.Ticket, error)
	List(ctx context.Context, p *domain.Principal, input service.TicketListInput) ([]domain.Ticket, error)
	History(ctx context.Context, p *domain.Principal, ticketID string) ([]domain.TicketHistoryEntry, error)
	Assign(ctx context.Context, p *domain.Principal, ticketID string, input service.AssignInput) (*domain.Ticket, error)
	Reassign(ctx context.Context, p *domain.Principal, ticketID string, input service.AssignInput) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, p *domain.Principal, ticketID string, input service.StatusInput) (*domain.Ticket, error)
	UpdatePriority(ctx context.Context, p *domain.Principal, ticketID string, input service.PriorityInput) (*domain.Ticket, error)
	Close(ctx context.Context, p *domain.Principal, ticketID string, input service.CloseInput) (*domain.Ticket, error)
}

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service TicketUseCases
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketUseCases) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// Create POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), principal, service.TicketCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

// List GET /api/tickets?status=New,Assigned&limit=20&offset=0.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	input := service.TicketListInput{}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				input.Statuses = append(input.Statuses, domain.TicketStatus(s))
			}
		}
	}
	if input.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}
	if input.Offset, err = queryInt(c, "offset"); err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[[]dto.TicketResponse]{Data: dto.TicketsFromDomain(tickets)})
}

// Get GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[[]dto.HistoryEntryResponse]{Data: dto.HistoryFromDomain(entries)})
}

// Assign POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	return h.assign(c, h.service.Assign)
}

// Reassign POST /api/tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	return h.assign(c, h.service.Reassign)
}

type assignFunc func(context.Context, *domain.Principal, string, service.AssignInput) (*domain.Ticket, error)

func (h *TicketsHandler) assign(c *fiber.Ctx, fn assignFunc) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	ticket, err := fn(c.UserContext(), principal, c.Params("id"), service.AssignInput{
		AssignedTo: req.AssignedTo,
		Note:       req.Note,
		Version:    req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

// UpdateStatus POST /api/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), principal, c.Params("id"), service.StatusInput{
		Status:  req.Status,
		Note:    req.Note,
		Version: req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

// UpdatePriority POST /api/tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), principal, c.Params("id"), service.PriorityInput{
		Priority: req.Priority,
		Note:     req.Note,
		Version:  req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

// Close POST /api/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CloseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Close(c.UserContext(), principal, c.Params("id"), service.CloseInput{
		ClosureCodeID: req.ClosureCodeID,
		Note:          req.Note,
		Version:       req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.Envelope[dto.TicketResponse]{Data: dto.TicketFromDomain(ticket)})
}

func requirePrincipal(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}
	return principal, nil
}

// parseOptionalBody accepts an empty body as the zero request.
func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError(key+" must be a non-negative integer", map[string]any{"field": key})
	}
	return v, nil
}
