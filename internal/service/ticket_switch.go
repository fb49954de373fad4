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

// SwitchType moves the open ticket in channelID to newType. Switches on
// one channel are serialized by the guard; the conditional store update
// on the expected old type decides the lifecycle fields.
func (s *TicketService) SwitchType(ctx context.Context, channelID, actorID string, newType domain.TicketType) (*domain.Ticket, error) {
	target, err := domain.ParseTicketType(string(newType))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "type"})
	}
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsEscalation(actor) {
		return nil, escalationOnly()
	}
	ticket, _, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ticket.TicketType == target {
		return nil, apperrors.NewAlreadyDone(domain.ReasonSameType, "ticket already has that type")
	}

	acquired, err := s.guard.TryAcquire(ctx, channelID)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("switch guard: %w", err))
	}
	if !acquired {
		return nil, apperrors.NewAlreadyDone(domain.ReasonSwitchInProgress, "a type switch is already in progress for this ticket")
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), channelID); err != nil {
			s.logger.Warn("switch guard release failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}()

	from := ticket.TicketType
	switched, err := s.tickets.SwitchType(ctx, channelID, repository.SwitchParams{
		From:                   from,
		To:                     target,
		ClearDescriptionPrompt: from.UsesDescriptionPrompt() && !target.UsesDescriptionPrompt(),
	})
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, s.missed(ctx, channelID, domain.ReasonSwitchInProgress, "the ticket type changed while switching")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	ownerName := switched.UserID
	if owner, err := s.member(ctx, switched.UserID); err == nil && owner.DisplayName != "" {
		ownerName = owner.DisplayName
	}
	if err := s.platform.RenameChannel(ctx, channelID, channelName(target, ownerName)); err != nil {
		s.logger.Warn("channel rename failed", zap.String("ticket_id", switched.ID), zap.Error(err))
	}

	// The claim state comes from the switched record; a claim may have
	// landed after the first read.
	claimant := switched.Claimant()
	s.sync.Sync(ctx, channelID,
		s.matrix.Compute(from, claimant != "", switched.UserID, claimant),
		s.matrix.Compute(target, claimant != "", switched.UserID, claimant))

	s.swapDescriptionPrompt(ctx, ticket, switched)
	s.refreshAnchor(ctx, switched)

	s.publish(ctx, events.EventTicketTypeSwitched, switched.ID, actorID,
		map[string]any{"ticket_type": string(from)},
		map[string]any{"ticket_type": string(target)})
	return switched, nil
}

// swapDescriptionPrompt removes the prompt a type no longer uses, or
// posts one for a type that needs it.
func (s *TicketService) swapDescriptionPrompt(ctx context.Context, before, after *domain.Ticket) {
	channelID := after.Channel()
	switch {
	case before.DescriptionPromptMessageID != nil && after.DescriptionPromptMessageID == nil:
		if err := s.platform.DeleteMessage(ctx, channelID, *before.DescriptionPromptMessageID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			s.logger.Warn("description prompt delete failed", zap.String("ticket_id", after.ID), zap.Error(err))
		}
	case after.TicketType.UsesDescriptionPrompt() && after.DescriptionPromptMessageID == nil:
		after.DescriptionPromptMessageID = s.sendDescriptionPrompt(ctx, after)
		if after.DescriptionPromptMessageID == nil || after.MessageID == nil {
			return
		}
		if err := s.tickets.SetMessages(ctx, after.ID, *after.MessageID, after.DescriptionPromptMessageID); err != nil {
			s.logger.Warn("description prompt id not persisted", zap.String("ticket_id", after.ID), zap.Error(err))
		}
	}
}

// Rate records the owner's score for a closed ticket, at most once per
// closed period.
func (s *TicketService) Rate(ctx context.Context, number int64, actorID string, score int) (*domain.Ticket, error) {
	if score < 1 || score > 5 {
		return nil, apperrors.NewValidationError("score must be between 1 and 5", map[string]any{
			"reason": domain.ReasonInvalidScore,
			"field":  "score",
		})
	}
	ticket, err := s.tickets.FindByNumber(ctx, number)
	if err != nil {
		return nil, storeError(err)
	}
	if ticket.UserID != actorID {
		return nil, apperrors.NewNotAuthorized(domain.ReasonNotOwner, "only the ticket owner can rate it")
	}
	if ticket.Open {
		return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyOpen, "only closed tickets can be rated")
	}
	if ticket.RatingScore != nil {
		return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyRated, "ticket has already been rated")
	}

	rated, err := s.tickets.SetRating(ctx, ticket.ID, actorID, score, s.now())
	if errors.Is(err, repository.ErrNoMatch) {
		current, ferr := s.tickets.FindByID(ctx, ticket.ID)
		if ferr == nil && current.Open {
			return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyOpen, "only closed tickets can be rated")
		}
		return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyRated, "ticket has already been rated")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	if s.cfg.LogChannelID != "" {
		if _, err := s.platform.SendMessage(ctx, s.cfg.LogChannelID, platform.OutgoingMessage{
			Embeds: []platform.Embed{{
				Title:       ticketTitle(rated) + " Rated",
				Description: fmt.Sprintf("%s rated their ticket %d/5.", mention(actorID), score),
				Color:       colorClaimed,
			}},
		}); err != nil {
			s.logger.Warn("rating log failed", zap.String("ticket_id", rated.ID), zap.Error(err))
		}
	}

	s.publish(ctx, events.EventTicketRated, rated.ID, actorID, nil, map[string]any{"rating_score": score})
	return rated, nil
}

// SendAutoClosePrompt asks the owner and claimant whether an idle ticket
// is still needed. The stamp is taken before sending so a concurrent
// sweep cannot prompt twice; a failed send releases it again.
func (s *TicketService) SendAutoClosePrompt(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	stamp := s.now()
	marked, err := s.tickets.MarkPromptSent(ctx, ticketID, stamp)
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, apperrors.NewAlreadyDone(domain.ReasonAutoPromptAlreadySent, "ticket was already prompted or is closed")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	if _, err := s.platform.SendMessage(ctx, marked.Channel(), autoClosePromptMessage(marked)); err != nil {
		if rerr := s.tickets.ResetPrompt(context.WithoutCancel(ctx), marked.ID, stamp); rerr != nil {
			s.logger.Warn("prompt stamp reset failed", zap.String("ticket_id", marked.ID), zap.Error(rerr))
		}
		if errors.Is(err, platform.ErrNotFound) {
			return nil, apperrors.NewNotFound("channel", map[string]any{"channel_id": marked.Channel()})
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("send auto-close prompt: %w", err))
	}

	s.publish(ctx, events.EventTicketAutoClosePrompted, marked.ID, "", nil, map[string]any{
		"auto_close_prompt_sent_at": stamp,
	})
	return marked, nil
}
