package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/events"
)

// AuditService writes one structured line per domain event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService logs through a logger named "audit".
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{dispatcher: dispatcher, logger: logger.Named("audit")}
}

// RegisterHandlers subscribes to every event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.AllEvents, a.record)
}

func (a *AuditService) record(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("actor_id", event.ActorID),
		zap.Time("at", event.Timestamp),
	}
	if event.TicketID != "" {
		fields = append(fields, zap.String("ticket_id", event.TicketID))
	}
	switch payload := event.Payload.(type) {
	case events.TicketChangedPayload:
		fields = append(fields,
			zap.String("number", payload.Number),
			zap.String("change_type", string(payload.ChangeType)),
			zap.String("old_status", string(payload.OldStatus)),
			zap.String("new_status", string(payload.NewStatus)),
			zap.Int("version", payload.Version))
	case events.AuthPayload:
		fields = append(fields, zap.String("ip", payload.IP))
		if payload.Reason != "" {
			fields = append(fields, zap.String("reason", payload.Reason))
		}
	}
	a.logger.Info("audit", fields...)
	return nil
}
