package dto

import (
	"time"

	"github.com/librosfab/support-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Type    domain.TicketType `json:"type"`
	Phone   string            `json:"phone"`
}

// CreateTicketResponse returns the id of the new ticket.
type CreateTicketResponse struct {
	TicketID string `json:"ticket_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID        string                `json:"id"`
	Subject   string                `json:"subject"`
	Type      domain.TicketType     `json:"type"`
	Status    domain.TicketStatus   `json:"status"`
	Priority  domain.TicketPriority `json:"priority"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Body     string                  `json:"body"`
	Phone    *string                 `json:"phone,omitempty"`
	Messages []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	Seq       int                  `json:"seq"`
	Author    domain.MessageAuthor `json:"author"`
	Body      string               `json:"body"`
	CreatedAt time.Time            `json:"created_at"`
}

// MessagesResponse is the polling payload. Clients poll again after
// PollIntervalMS with After set to LastSeq.
type MessagesResponse struct {
	TicketID       string                  `json:"ticket_id"`
	Status         domain.TicketStatus     `json:"status"`
	Messages       []TicketMessageResponse `json:"messages"`
	LastSeq        int                     `json:"last_seq"`
	PollIntervalMS int64                   `json:"poll_interval_ms"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:        t.ID,
		Subject:   t.Subject,
		Type:      t.Type,
		Status:    t.Status,
		Priority:  t.Priority,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// NewTicketSummaries maps a listing.
func NewTicketSummaries(tickets []domain.Ticket) []TicketSummary {
	out := make([]TicketSummary, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketSummary(&tickets[i]))
	}
	return out
}

// NewTicketDetail maps a ticket and its thread.
func NewTicketDetail(t *domain.Ticket, msgs []domain.Message) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(t),
		Body:          t.Body,
		Phone:         t.Phone,
		Messages:      NewMessageResponses(msgs),
	}
}

// NewMessageResponse maps one message.
func NewMessageResponse(m domain.Message) TicketMessageResponse {
	return TicketMessageResponse{Seq: m.Seq, Author: m.Author, Body: m.Body, CreatedAt: m.CreatedAt}
}

// NewMessageResponses maps a thread.
func NewMessageResponses(msgs []domain.Message) []TicketMessageResponse {
	out := make([]TicketMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageResponse(m))
	}
	return out
}
