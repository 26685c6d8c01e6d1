package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle over HTTP. Role checks happen in the service.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.CreateTicketCommand{
		IssueDetails: req.IssueDetails,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tickets, err := h.service.ListTickets(c.UserContext(), principal)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdateStatus(c.UserContext(), principal, service.UpdateStatusCommand{
		TicketID: c.Params("id"),
		Status:   domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(req.Status)))),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Reassign(c.UserContext(), principal, service.ReassignCommand{
		TicketID:   c.Params("id"),
		NewAgentID: req.NewAgentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListAgents GET /agents. Lists the agents the caller may reassign to.
func (h *TicketsHandler) ListAgents(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	agents, err := h.service.ListReassignmentCandidates(c.UserContext(), principal)
	if err != nil {
		return err
	}
	items := make([]dto.UserRef, 0, len(agents))
	for _, agent := range agents {
		items = append(items, userRef(agent))
	}
	return c.JSON(fiber.Map{"data": items})
}

func ticketResponse(t *domain.TicketView) dto.TicketResponse {
	history := make([]dto.ReassignmentResponse, 0, len(t.ReassignmentHistory))
	for _, rec := range t.ReassignmentHistory {
		history = append(history, dto.ReassignmentResponse{
			FromAgent: userRef(rec.FromAgent),
			ToAgent:   userRef(rec.ToAgent),
			Timestamp: rec.Timestamp,
		})
	}
	return dto.TicketResponse{
		ID:                  t.ID,
		Customer:            userRef(t.Customer),
		AssignedAgent:       userRef(t.AssignedAgent),
		IssueDetails:        t.IssueDetails,
		Status:              t.Status,
		ReassignmentCount:   t.ReassignmentCount,
		ReassignmentHistory: history,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func userRef(u domain.UserSummary) dto.UserRef {
	return dto.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
