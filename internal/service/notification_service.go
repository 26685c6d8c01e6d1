package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mq"
)

// NotificationService logs ticket events and forwards them to the message broker.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  mq.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. A nil publisher keeps notifications local.
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
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.handleTicketReassigned)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleTicketReassigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketReassigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if n.publisher == nil {
		return nil
	}
	routingKey := RoutingKey(event.Type)
	if err := n.publisher.Publish(ctx, routingKey, event); err != nil {
		return err
	}
	n.logger.Debug("event forwarded", zap.String("routing_key", routingKey), zap.String("event_id", event.ID))
	return nil
}

// RoutingKey is the broker routing key for an event type.
func RoutingKey(t events.EventType) string {
	return "ticket." + string(t)
}
