package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

var changeTypes = map[events.EventType]domain.TicketChangeType{
	events.EventTicketCreated:              domain.ChangeTypeCreated,
	events.EventTicketClaimed:              domain.ChangeTypeClaimed,
	events.EventTicketUnclaimed:            domain.ChangeTypeUnclaimed,
	events.EventTicketCloseRequested:       domain.ChangeTypeCloseRequested,
	events.EventTicketCloseRequestRejected: domain.ChangeTypeCloseRequestRejected,
	events.EventTicketClosed:               domain.ChangeTypeClosed,
	events.EventTicketReopened:             domain.ChangeTypeReopened,
	events.EventTicketTypeSwitched:         domain.ChangeTypeTypeSwitched,
	events.EventTicketRated:                domain.ChangeTypeRated,
	events.EventTicketAutoClosePrompted:    domain.ChangeTypeAutoClosePrompted,
}

// AuditService records every lifecycle event as a ticket history entry,
// including rejected close requests.
type AuditService struct {
	dispatcher events.Dispatcher
	history    repository.TicketHistoryRepository
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, history repository.TicketHistoryRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every lifecycle event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.LifecycleEvents {
		a.dispatcher.Subscribe(eventType, a.record)
	}
}

func (a *AuditService) record(ctx context.Context, event events.Event) error {
	changeType, ok := changeTypes[event.Type]
	if !ok {
		return fmt.Errorf("no history mapping for %s", event.Type)
	}
	entry := &domain.TicketHistory{
		TicketID:   event.TicketID,
		ChangeType: changeType,
		OldValue:   event.Old,
		NewValue:   event.New,
		CreatedAt:  event.Timestamp,
	}
	if event.ActorID != "" {
		entry.ChangedByID = domain.Ptr(event.ActorID)
	}
	a.logger.Info(string(changeType),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.ActorID),
		zap.Any("new", event.New))
	if err := a.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}
