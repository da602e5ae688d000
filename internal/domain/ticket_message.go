package domain

import "time"

// MessageAuthor indicates who authored a message.
type MessageAuthor string

const (
	AuthorCustomer MessageAuthor = "customer"
	AuthorSupport  MessageAuthor = "support"
)

// Valid reports whether a is a known author role.
func (a MessageAuthor) Valid() bool {
	return a == AuthorCustomer || a == AuthorSupport
}

// MaxMessageLength bounds a chat message body, in runes.
const MaxMessageLength = 1000

// Message is one entry of a ticket thread. Seq is 1-based and strictly
// increasing within a ticket.
type Message struct {
	TicketID  string
	Seq       int
	Author    MessageAuthor
	Body      string
	CreatedAt time.Time
}

// ImplicitMessage is the view of a ticket whose thread holds no entries:
// the original submission, authored by the customer at creation time.
func ImplicitMessage(t *Ticket) Message {
	return Message{
		TicketID:  t.ID,
		Seq:       1,
		Author:    AuthorCustomer,
		Body:      t.Body,
		CreatedAt: t.CreatedAt,
	}
}
