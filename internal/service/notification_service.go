package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/mq"
)

// NotificationService forwards domain events to the log and, when a broker
// is configured, to the ticket events exchange.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  mq.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(dispatcher events.Dispatcher, publisher mq.Publisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))

	if n.publisher == nil {
		return nil
	}
	return n.publisher.Publish(ctx, event.RoutingKey(), event)
}
