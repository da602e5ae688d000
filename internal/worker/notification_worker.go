package worker

import (
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/mq"
	"github.com/librosfab/support-service/internal/service"
)

// NotificationWorker forwards ticket events published on the in-process
// dispatcher to the log and, when a broker is configured, to RabbitMQ.
type NotificationWorker struct {
	publisher *mq.RabbitPublisher
	logger    *zap.Logger
}

// StartNotificationWorker dials the broker named by cfg (if any) and
// subscribes the notification handlers to dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, cfg config.AMQPConfig, logger *zap.Logger) (*NotificationWorker, error) {
	w := &NotificationWorker{logger: logger}
	var publisher mq.Publisher
	if cfg.URL != "" {
		rabbit, err := mq.NewRabbitPublisher(cfg.URL, cfg.Exchange, logger)
		if err != nil {
			return nil, err
		}
		w.publisher = rabbit
		publisher = rabbit
		logger.Info("publishing ticket events", zap.String("exchange", cfg.Exchange))
	}
	service.NewNotificationService(dispatcher, publisher, logger).RegisterHandlers()
	return w, nil
}

// Stop closes the broker connection.
func (w *NotificationWorker) Stop() {
	if w == nil || w.publisher == nil {
		return
	}
	if err := w.publisher.Close(); err != nil {
		w.logger.Warn("close amqp publisher", zap.Error(err))
	}
}
