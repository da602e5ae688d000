package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/librosfab/support-service/internal/api/dto"
	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/service"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// TicketsHandler serves the customer ticket and chat endpoints.
type TicketsHandler struct {
	gateway      *service.TicketGateway
	pollInterval time.Duration
}

// NewTicketsHandler constructs the handler. pollInterval is advertised to
// chat clients in every messages response.
func NewTicketsHandler(gateway *service.TicketGateway, pollInterval time.Duration) *TicketsHandler {
	return &TicketsHandler{gateway: gateway, pollInterval: pollInterval}
}

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.gateway.CreateTicket(c.UserContext(), auth.IdentityFromContext(c), service.TicketCreateInput{
		Subject: req.Subject,
		Body:    req.Body,
		Type:    req.Type,
		Phone:   req.Phone,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.CreateTicketResponse{TicketID: ticket.ID},
	})
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	tickets, err := h.gateway.ListTickets(c.UserContext(), auth.IdentityFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummaries(tickets)})
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	view, err := h.gateway.GetTicket(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(view.Ticket, view.Messages)})
}

// Messages handles GET /tickets/:id/messages?after=N.
func (h *TicketsHandler) Messages(c *fiber.Ctx) error {
	after := c.QueryInt("after", 0)
	if after < 0 {
		return apperrors.NewValidationError("after must not be negative", map[string]any{"field": "after"})
	}

	view, err := h.gateway.Messages(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"), after)
	if err != nil {
		return err
	}

	lastSeq := after
	if n := len(view.Messages); n > 0 {
		lastSeq = view.Messages[n-1].Seq
	}
	return c.JSON(fiber.Map{"data": dto.MessagesResponse{
		TicketID:       view.Ticket.ID,
		Status:         view.Ticket.Status,
		Messages:       dto.NewMessageResponses(view.Messages),
		LastSeq:        lastSeq,
		PollIntervalMS: h.pollInterval.Milliseconds(),
	}})
}

// AppendMessage handles POST /tickets/:id/messages.
func (h *TicketsHandler) AppendMessage(c *fiber.Ctx) error {
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.gateway.AppendMessage(c.UserContext(), auth.IdentityFromContext(c), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(*msg)})
}
