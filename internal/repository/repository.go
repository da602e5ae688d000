package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/librosfab/support-service/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("conflict")
)

// TicketFilter captures support-side listing parameters.
type TicketFilter struct {
	OwnerID    *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// StatusGuard validates a transition against the locked current status.
type StatusGuard func(current domain.TicketStatus) error

// AppendGuard inspects the locked ticket row before a message is written.
type AppendGuard func(ticket *domain.Ticket) error

// SeedFunc returns the messages a ticket without message rows reads as.
// They are written ahead of the first appended message.
type SeedFunc func(ticket *domain.Ticket) []domain.Message

// UserRepository defines persistence access for customers.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// NextNumber atomically advances and returns the ticket counter for year.
	NextNumber(ctx context.Context, year int) (int, error)
	// RaiseCounter moves the year's counter up to atLeast; it never lowers it.
	RaiseCounter(ctx context.Context, year, atLeast int) error
	// Create inserts the ticket and its first message in one transaction.
	Create(ctx context.Context, ticket *domain.Ticket, first *domain.Message) error
	// Import inserts a ticket without messages, skipping ids that already exist.
	Import(ctx context.Context, ticket *domain.Ticket) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, next domain.TicketStatus, at time.Time, guard StatusGuard) error
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
}

// ThreadRepository manages the ordered message log of each ticket.
type ThreadRepository interface {
	// ListByTicket returns messages with seq > afterSeq in seq order.
	ListByTicket(ctx context.Context, ticketID string, afterSeq int) ([]domain.Message, error)
	// LastSeq returns the highest stored sequence number, 0 if the log is empty.
	LastSeq(ctx context.Context, ticketID string) (int, error)
	// Append locks the ticket, runs guard, seeds an empty log and inserts msg
	// with the next sequence number.
	Append(ctx context.Context, ticketID string, msg *domain.Message, guard AppendGuard, seed SeedFunc) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Users   UserRepository
	Tickets TicketRepository
	Threads ThreadRepository
	Ping    func(ctx context.Context) error
	Close   func()
}

// DefaultListLimit bounds support-side listings.
const DefaultListLimit = 50

// NormalizeLimit applies listing defaults.
func NormalizeLimit(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PriorityOrderSQL orders rows with urgent tickets first.
const PriorityOrderSQL = `CASE priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 WHEN 'low' THEN 4 ELSE 5 END`

// FilterClauses renders the WHERE clauses of filter. placeholder returns the
// bind marker for the n-th (1-based) argument.
func FilterClauses(filter TicketFilter, placeholder func(n int) string) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, "owner_id="+placeholder(len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = placeholder(len(args))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, string(pr))
			placeholders[i] = placeholder(len(args))
		}
		clauses = append(clauses, "priority IN ("+strings.Join(placeholders, ",")+")")
	}
	return clauses, args
}
