package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/librosfab/support-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketMessageAdded    EventType = "ticket_message_added"
)

// AllEventTypes lists every event a service may publish.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketMessageAdded,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.MessageAuthor `json:"type"`
	UserID *string              `json:"user_id,omitempty"`
}

// CustomerActor is the ticket owner acting through the site.
func CustomerActor(userID string) Actor {
	return Actor{Type: domain.AuthorCustomer, UserID: &userID}
}

// SupportActor is an operator acting through ticketctl.
func SupportActor() Actor {
	return Actor{Type: domain.AuthorSupport}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps a new event with a random id.
func NewEvent(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// RoutingKey is the broker routing key for the event.
func (e Event) RoutingKey() string {
	return "ticket." + string(e.Type)
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject  string                `json:"subject"`
	Type     domain.TicketType     `json:"type"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	Seq         int                  `json:"seq"`
	Author      domain.MessageAuthor `json:"author"`
	BodyPreview string               `json:"body_preview"`
}

const previewRunes = 80

// Preview shortens a message body for event payloads.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewRunes {
		return body
	}
	return string(runes[:previewRunes]) + "…"
}
