package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/config"
	"github.com/spec-kit/itsm-portal/internal/events"
)

// Notification is what a Notifier is asked to deliver.
type Notification struct {
	Channel  string
	Target   string
	TicketID string
	Event    events.Event
}

// Notifier delivers notifications. Delivery itself lives outside the portal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier records notifications instead of sending them.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.Debug("notification",
		zap.String("channel", n.Channel),
		zap.String("target", n.Target),
		zap.String("ticket_id", n.TicketID),
		zap.String("event_type", string(n.Event.Type)))
	return nil
}

// NotificationService turns ticket events into notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil notifier logs.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to ticket events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.TicketEventTypes {
		n.dispatcher.Subscribe(eventType, n.handleTicketEvent)
	}
}

func (n *NotificationService) handleTicketEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID))
	if from := strings.TrimSpace(n.cfg.EmailFrom); from != "" && notifiesByEmail(event.Type) {
		if err := n.notifier.Notify(ctx, Notification{Channel: "email", Target: from, TicketID: event.TicketID, Event: event}); err != nil {
			return err
		}
	}
	if url := strings.TrimSpace(n.cfg.WebhookURL); url != "" {
		if err := n.notifier.Notify(ctx, Notification{Channel: "webhook", Target: url, TicketID: event.TicketID, Event: event}); err != nil {
			return err
		}
	}
	return nil
}

// notifiesByEmail limits email to events the requester cares about.
func notifiesByEmail(t events.EventType) bool {
	switch t {
	case events.EventTicketCreated, events.EventTicketAssigned, events.EventTicketReassigned, events.EventTicketClosed:
		return true
	}
	return false
}
