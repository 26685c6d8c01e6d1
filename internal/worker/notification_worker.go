package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mq"
	"github.com/spec-kit/support-desk/internal/service"
)

// StartNotificationWorker wires the notification handlers onto the dispatcher and returns the
// service so callers can inspect it.
func StartNotificationWorker(dispatcher events.Dispatcher, publisher mq.Publisher, logger *zap.Logger) *service.NotificationService {
	if dispatcher == nil {
		return nil
	}
	notifications := service.NewNotificationService(dispatcher, publisher, logger)
	notifications.RegisterHandlers()
	if logger != nil {
		logger.Info("notification worker started", zap.Bool("broker", publisher != nil))
	}
	return notifications
}
