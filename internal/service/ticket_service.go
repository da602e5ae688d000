package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/repository"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// maxCreateAttempts bounds how many counter values CreateTicket tries when
// ids are already taken by imported tickets.
const maxCreateAttempts = 10

const maxPhoneLength = 30

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject string
	Body    string
	Type    domain.TicketType
	Phone   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        now,
	}
}

// CreateTicket opens a ticket owned by ownerID. The ticket row and its first
// message are written together.
func (s *TicketService) CreateTicket(ctx context.Context, ownerID string, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Body)
	phone := strings.TrimSpace(input.Phone)

	switch {
	case subject == "":
		return nil, apperrors.NewValidationError("subject is required", map[string]any{"field": "subject"})
	case utf8.RuneCountInString(subject) > domain.MaxSubjectLength:
		return nil, apperrors.NewValidationError("subject must be at most 200 characters", map[string]any{"field": "subject"})
	case body == "":
		return nil, apperrors.NewValidationError("message is required", map[string]any{"field": "body"})
	case utf8.RuneCountInString(phone) > maxPhoneLength:
		return nil, apperrors.NewValidationError("phone number is too long", map[string]any{"field": "phone"})
	}

	ticketType := input.Type
	if ticketType == "" {
		ticketType = domain.TicketTypeInquiry
	}
	if !ticketType.Valid() {
		return nil, apperrors.NewValidationError("unknown ticket type", map[string]any{"field": "type"})
	}

	now := s.now().UTC()
	ticket := &domain.Ticket{
		OwnerID:   ownerID,
		Subject:   subject,
		Body:      body,
		Type:      ticketType,
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if phone != "" {
		ticket.Phone = &phone
	}

	if err := s.insertWithFreshID(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.CustomerActor(ownerID), now,
		events.TicketCreatedPayload{
			Subject:  ticket.Subject,
			Type:     ticket.Type,
			Priority: ticket.Priority,
		}))
	return ticket, nil
}

func (s *TicketService) insertWithFreshID(ctx context.Context, ticket *domain.Ticket) error {
	year := ticket.CreatedAt.Year()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		number, err := s.tickets.NextNumber(ctx, year)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if number > domain.MaxTicketNumber {
			return apperrors.NewInternalError(errors.Errorf("ticket numbers exhausted for %d", year))
		}

		ticket.ID = domain.FormatTicketID(year, number)
		first := domain.ImplicitMessage(ticket)
		err = s.tickets.Create(ctx, ticket, &first)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return apperrors.NewInternalError(err)
		}
		s.logger.Warn("ticket id taken, retrying", zap.String("ticket_id", ticket.ID))
	}
	return apperrors.NewInternalError(errors.Errorf("no free ticket id after %d attempts", maxCreateAttempts))
}

// ListTickets returns the owner's tickets, most recent first.
func (s *TicketService) ListTickets(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// GetTicket returns the ticket when ownerID owns it. Unknown ids yield
// NOT_FOUND and tickets of other owners FORBIDDEN.
func (s *TicketService) GetTicket(ctx context.Context, ownerID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID != ownerID {
		return nil, apperrors.NewForbidden("you do not have access to this ticket")
	}
	return ticket, nil
}

// Get loads a ticket without an ownership check. Support tooling only.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if !domain.ValidTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError(err, ticketID)
	}
	return ticket, nil
}

// UpdateStatus moves a ticket forward through its lifecycle.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(next)})
	}
	if !domain.ValidTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}

	var previous domain.TicketStatus
	guard := func(current domain.TicketStatus) error {
		previous = current
		switch {
		case current == domain.TicketStatusClosed:
			return apperrors.NewTicketClosed(ticketID)
		case current == next:
			return apperrors.NewValidationError("ticket is already "+string(next), nil)
		case !current.CanTransitionTo(next):
			return apperrors.NewValidationError("cannot move ticket from "+string(current)+" to "+string(next), nil)
		}
		return nil
	}

	now := s.now().UTC()
	if err := s.tickets.UpdateStatus(ctx, ticketID, next, now, guard); err != nil {
		return nil, storeError(err, ticketID)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, ticketID, events.SupportActor(), now,
		events.TicketStatusChangedPayload{OldStatus: previous, NewStatus: next}))
	return s.Get(ctx, ticketID)
}

// UpdatePriority changes a ticket's priority.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == priority {
		return ticket, nil
	}

	now := s.now().UTC()
	if err := s.tickets.UpdatePriority(ctx, ticketID, priority, now); err != nil {
		return nil, storeError(err, ticketID)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketPriorityChanged, ticketID, events.SupportActor(), now,
		events.TicketPriorityChangedPayload{OldPriority: ticket.Priority, NewPriority: priority}))
	ticket.Priority = priority
	ticket.UpdatedAt = now
	return ticket, nil
}

// ListAll lists tickets across owners, urgent first.
func (s *TicketService) ListAll(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(status)})
		}
	}
	for _, priority := range filter.Priorities {
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
		}
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// CountByStatus reports how many tickets are in each state. Every state is
// present in the result.
func (s *TicketService) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	for _, status := range []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

// storeError maps repository errors to API errors. Domain errors raised by
// guards pass through unchanged.
func storeError(err error, ticketID string) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrNotFound):
		return ticketNotFound(ticketID)
	default:
		return apperrors.NewInternalError(err)
	}
}
