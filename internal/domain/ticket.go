package domain

import (
	"fmt"
	"regexp"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketType is the category chosen when the request is submitted.
type TicketType string

const (
	TicketTypeInquiry    TicketType = "inquiry"
	TicketTypeProblem    TicketType = "problem"
	TicketTypeSuggestion TicketType = "suggestion"
	TicketTypeUrgent     TicketType = "urgent"
)

// MaxSubjectLength bounds the ticket subject, in runes.
const MaxSubjectLength = 200

// Ticket is the aggregate for support requests. OwnerID is fixed at creation.
type Ticket struct {
	ID           string
	OwnerID      string
	Subject      string
	Body         string
	Type         TicketType
	Status       TicketStatus
	Priority     TicketPriority
	Phone        *string
	LegacyThread *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsClosed reports whether the ticket reached the terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// MaxTicketNumber is the largest yearly sequence number an id can carry.
const MaxTicketNumber = 99999

var ticketIDPattern = regexp.MustCompile(`^TK-\d{4}-\d{5}$`)

// FormatTicketID renders the public identifier for a yearly sequence number.
func FormatTicketID(year, number int) string {
	return fmt.Sprintf("TK-%04d-%05d", year, number)
}

// ValidTicketID reports whether id has the TK-<year>-<5 digits> shape.
func ValidTicketID(id string) bool {
	return ticketIDPattern.MatchString(id)
}

var statusOrder = map[TicketStatus]int{
	TicketStatusOpen:       0,
	TicketStatusInProgress: 1,
	TicketStatusResolved:   2,
	TicketStatusClosed:     3,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// States only move forward; closed is terminal.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to > from
}

var priorityRank = map[TicketPriority]int{
	TicketPriorityUrgent: 1,
	TicketPriorityHigh:   2,
	TicketPriorityMedium: 3,
	TicketPriorityLow:    4,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities with urgent first.
func (p TicketPriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank) + 1
}

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeInquiry, TicketTypeProblem, TicketTypeSuggestion, TicketTypeUrgent:
		return true
	}
	return false
}
