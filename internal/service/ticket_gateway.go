package service

import (
	"context"

	"github.com/librosfab/support-service/internal/domain"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// TicketGateway is the customer-facing entry point. Every call takes the
// caller's identity explicitly; ticket-scoped calls re-check ownership
// against the stored ticket.
type TicketGateway struct {
	tickets *TicketService
	threads *ThreadService
}

// TicketView is a ticket together with (part of) its thread.
type TicketView struct {
	Ticket   *domain.Ticket
	Messages []domain.Message
}

// NewTicketGateway wires the gateway.
func NewTicketGateway(tickets *TicketService, threads *ThreadService) *TicketGateway {
	return &TicketGateway{tickets: tickets, threads: threads}
}

func requireIdentity(identity *domain.Identity) error {
	if identity == nil || identity.UserID == "" {
		return apperrors.NewUnauthenticated("please sign in")
	}
	return nil
}

// CreateTicket opens a ticket owned by the caller.
func (g *TicketGateway) CreateTicket(ctx context.Context, identity *domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return g.tickets.CreateTicket(ctx, identity.UserID, input)
}

// ListTickets lists the caller's tickets, most recent first.
func (g *TicketGateway) ListTickets(ctx context.Context, identity *domain.Identity) ([]domain.Ticket, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return g.tickets.ListTickets(ctx, identity.UserID)
}

// GetTicket returns one of the caller's tickets with its full thread.
func (g *TicketGateway) GetTicket(ctx context.Context, identity *domain.Identity, ticketID string) (*TicketView, error) {
	return g.Messages(ctx, identity, ticketID, 0)
}

// Messages returns the thread entries after afterSeq of one of the caller's
// tickets.
func (g *TicketGateway) Messages(ctx context.Context, identity *domain.Identity, ticketID string, afterSeq int) (*TicketView, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	ticket, err := g.tickets.GetTicket(ctx, identity.UserID, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := g.threads.MessagesAfter(ctx, ticket, afterSeq)
	if err != nil {
		return nil, err
	}
	return &TicketView{Ticket: ticket, Messages: msgs}, nil
}

// AppendMessage adds a customer message. The closed-state and ownership
// checks run against the locked ticket row, closed first, so a closed
// ticket rejects every caller with TICKET_CLOSED.
func (g *TicketGateway) AppendMessage(ctx context.Context, identity *domain.Identity, ticketID, body string) (*domain.Message, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return g.threads.Append(ctx, ticketID, identity.UserID, domain.AuthorCustomer, body)
}
