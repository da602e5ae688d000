package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/cache"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/thread"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// ThreadService owns the ordered message log of each ticket.
type ThreadService struct {
	threads    repository.ThreadRepository
	cache      cache.ThreadCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ThreadDependencies bundles collaborators for the thread service.
type ThreadDependencies struct {
	ThreadRepo repository.ThreadRepository
	Cache      cache.ThreadCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewThreadService constructs the service.
func NewThreadService(deps ThreadDependencies) *ThreadService {
	svc := &ThreadService{
		threads:    deps.ThreadRepo,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if svc.cache == nil {
		svc.cache = cache.Noop()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Messages returns the ticket's thread in order. A ticket without message
// rows reads as its legacy thread or, lacking one, as the implicit
// submission message. Reads never write to the store.
//
// A cached snapshot is served only when it was taken at the store's current
// last seq, so a snapshot written after a concurrent append (or left behind
// by a failed invalidation) is never returned.
func (s *ThreadService) Messages(ctx context.Context, ticket *domain.Ticket) ([]domain.Message, error) {
	lastSeq, err := s.threads.LastSeq(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if snap, ok := s.cache.Get(ctx, ticket.ID); ok && snap.StoredSeq == lastSeq {
		return snap.Messages, nil
	}

	msgs, err := s.threads.ListByTicket(ctx, ticket.ID, 0)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	storedSeq := 0
	if len(msgs) > 0 {
		storedSeq = msgs[len(msgs)-1].Seq
	} else {
		msgs = thread.ViewOf(ticket)
	}
	s.cache.Set(ctx, ticket.ID, cache.Snapshot{StoredSeq: storedSeq, Messages: msgs})
	return msgs, nil
}

// MessagesAfter returns the messages with seq greater than afterSeq.
func (s *ThreadService) MessagesAfter(ctx context.Context, ticket *domain.Ticket, afterSeq int) ([]domain.Message, error) {
	msgs, err := s.Messages(ctx, ticket)
	if err != nil || afterSeq <= 0 {
		return msgs, err
	}
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	return out, nil
}

// Append adds a message to a ticket owned by ownerID.
func (s *ThreadService) Append(ctx context.Context, ticketID, ownerID string, author domain.MessageAuthor, body string) (*domain.Message, error) {
	actor := events.CustomerActor(ownerID)
	if author == domain.AuthorSupport {
		actor = events.SupportActor()
	}
	return s.append(ctx, ticketID, author, actor, body, func(ticket *domain.Ticket) error {
		if ticket.OwnerID != ownerID {
			return apperrors.NewForbidden("you do not have access to this ticket")
		}
		return nil
	})
}

// AppendAsSupport adds a support reply without an ownership check.
func (s *ThreadService) AppendAsSupport(ctx context.Context, ticketID, body string) (*domain.Message, error) {
	return s.append(ctx, ticketID, domain.AuthorSupport, events.SupportActor(), body, nil)
}

func (s *ThreadService) append(ctx context.Context, ticketID string, author domain.MessageAuthor, actor events.Actor, body string, check repository.AppendGuard) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewInvalidInput(apperrors.CodeEmptyMessage, "message cannot be empty")
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLength {
		return nil, apperrors.NewValidationError("message must be at most 1000 characters", map[string]any{"field": "body"})
	}
	if !author.Valid() {
		return nil, apperrors.NewValidationError("unknown author", nil)
	}
	if !domain.ValidTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}

	guard := func(ticket *domain.Ticket) error {
		if ticket.IsClosed() {
			return apperrors.NewTicketClosed(ticketID)
		}
		if check != nil {
			return check(ticket)
		}
		return nil
	}

	msg := &domain.Message{
		Author:    author,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.threads.Append(ctx, ticketID, msg, guard, thread.ViewOf); err != nil {
		return nil, storeError(err, ticketID)
	}
	s.cache.Invalidate(ctx, ticketID)

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventTicketMessageAdded, ticketID, actor, msg.CreatedAt,
			events.TicketMessageAddedPayload{
				Seq:         msg.Seq,
				Author:      msg.Author,
				BodyPreview: events.Preview(msg.Body),
			}))
	}
	return msg, nil
}
