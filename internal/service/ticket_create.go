package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// CreateTicket opens a ticket of the requested type for ownerID: it creates the
// conversation space with the type's overwrite matrix, persists the
// record, posts the pinned anchor, and briefly pings the owner and the
// routing role.
func (s *TicketService) CreateTicket(ctx context.Context, ownerID string, requested domain.TicketType) (*domain.Ticket, error) {
	ticketType, err := domain.ParseTicketType(string(requested))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "type"})
	}
	owner, err := s.member(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanCreate(owner, ticketType); err != nil {
		return nil, err
	}
	if existing, err := s.tickets.FindOpenByOwner(ctx, ownerID); err == nil {
		return nil, openTicketExists(existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnavailable(err)
	}

	overwrites := s.matrix.Compute(ticketType, false, ownerID, "")
	channel, err := s.platform.CreateChannel(ctx, platform.ChannelSpec{
		GuildID:    s.guildID,
		ParentID:   s.cfg.CategoryID,
		Name:       channelName(ticketType, owner.DisplayName),
		Topic:      fmt.Sprintf("%s ticket for %s", ticketType.Label(), ownerID),
		Overwrites: overwrites,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create channel: %w", err))
	}

	ticket := &domain.Ticket{
		GuildID:    s.guildID,
		UserID:     ownerID,
		ChannelID:  domain.Ptr(channel.ID),
		TicketType: ticketType,
		CreatedAt:  s.now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.discardChannel(ctx, channel.ID)
		if errors.Is(err, repository.ErrOpenTicketExists) {
			return nil, apperrors.NewAlreadyDone(domain.ReasonOpenTicketExists, "you already have an open ticket")
		}
		return nil, apperrors.NewUnavailable(err)
	}

	s.postAnchor(ctx, ticket, "", nil)
	s.pingAndRetract(ctx, ticket)

	s.publish(ctx, events.EventTicketCreated, ticket.ID, ownerID, nil, map[string]any{
		"ticket_type": string(ticketType),
		"channel_id":  channel.ID,
	})
	return ticket, nil
}

// pingAndRetract mentions the owner and routing role, then deletes the
// mention once it has been delivered.
func (s *TicketService) pingAndRetract(ctx context.Context, t *domain.Ticket) {
	msg := platform.OutgoingMessage{
		Content:      mention(t.UserID),
		MentionUsers: []string{t.UserID},
	}
	if role := s.policy.RoutingRole(t.TicketType); role != "" {
		msg.Content += " " + roleMention(role)
		msg.MentionRoles = []string{role}
	}
	ping, err := s.platform.SendMessage(ctx, t.Channel(), msg)
	if err != nil {
		s.logger.Warn("creation ping failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return
	}
	channelID := t.Channel()
	s.later(s.cfg.MentionRetract(), func(ctx context.Context) {
		if err := s.platform.DeleteMessage(ctx, channelID, ping.ID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			s.logger.Warn("creation ping retract failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
}

// discardChannel removes a space whose record could not be written.
func (s *TicketService) discardChannel(ctx context.Context, channelID string) {
	if err := s.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		s.logger.Warn("orphan channel cleanup failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func openTicketExists(existing *domain.Ticket) error {
	return apperrors.NewConflict("you already have an open ticket", map[string]any{
		"reason":     domain.ReasonOpenTicketExists,
		"channel_id": existing.Channel(),
	})
}

// Reopen revives a closed ticket by number into a fresh conversation
// space. Record identity and number are kept; every per-period field is
// reset.
func (s *TicketService) Reopen(ctx context.Context, number int64, actorID string) (*domain.Ticket, error) {
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsEscalation(actor) {
		return nil, escalationOnly()
	}
	ticket, err := s.tickets.FindByNumber(ctx, number)
	if err != nil {
		return nil, storeError(err)
	}
	if ticket.Open {
		return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyOpen, "ticket is already open")
	}
	if existing, err := s.tickets.FindOpenByOwner(ctx, ticket.UserID); err == nil {
		return nil, openTicketExists(existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnavailable(err)
	}

	ownerName := ticket.UserID
	if owner, err := s.member(ctx, ticket.UserID); err == nil && owner.DisplayName != "" {
		ownerName = owner.DisplayName
	}
	channel, err := s.platform.CreateChannel(ctx, platform.ChannelSpec{
		GuildID:    s.guildID,
		ParentID:   s.cfg.CategoryID,
		Name:       channelName(ticket.TicketType, ownerName),
		Topic:      fmt.Sprintf("%s ticket #%d for %s (reopened)", ticket.TicketType.Label(), number, ticket.UserID),
		Overwrites: s.matrix.Compute(ticket.TicketType, false, ticket.UserID, ""),
	})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create channel: %w", err))
	}

	previous := ticket
	reopened, err := s.tickets.Reopen(ctx, ticket.ID, repository.ReopenParams{ChannelID: channel.ID, At: s.now()})
	if err != nil {
		s.discardChannel(ctx, channel.ID)
		switch {
		case errors.Is(err, repository.ErrNoMatch):
			return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyOpen, "ticket is already open")
		case errors.Is(err, repository.ErrOpenTicketExists):
			return nil, apperrors.NewAlreadyDone(domain.ReasonOpenTicketExists, "the owner already has an open ticket")
		default:
			return nil, apperrors.NewUnavailable(err)
		}
	}

	s.postAnchor(ctx, reopened,
		fmt.Sprintf("%s your ticket #%d has been reopened by %s.", mention(reopened.UserID), number, mention(actorID)),
		[]string{reopened.UserID})

	s.publish(ctx, events.EventTicketReopened, reopened.ID, actorID,
		map[string]any{"closed_by": domain.Deref(previous.ClosedBy)},
		map[string]any{"channel_id": channel.ID, "ticket_number": number})
	return reopened, nil
}
