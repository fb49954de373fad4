package service

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// Claim gives actorID ownership of the open ticket in channelID. Of two
// concurrent claims exactly one wins; the other reports already_claimed.
func (s *TicketService) Claim(ctx context.Context, channelID, actorID string) (*domain.Ticket, error) {
	ticket, open, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsStaffFor(actor, ticket.TicketType) {
		return nil, notStaff()
	}
	if open.Claimed() {
		return nil, apperrors.NewAlreadyDone(domain.ReasonAlreadyClaimed, "ticket is already claimed")
	}

	claimed, err := s.tickets.AtomicClaim(ctx, channelID, actorID)
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, s.missed(ctx, channelID, domain.ReasonAlreadyClaimed, "ticket is already claimed")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	s.sync.Sync(ctx, channelID,
		s.matrix.Compute(claimed.TicketType, false, claimed.UserID, ""),
		s.matrix.Compute(claimed.TicketType, true, claimed.UserID, actorID))
	s.refreshAnchor(ctx, claimed)

	s.publish(ctx, events.EventTicketClaimed, claimed.ID, actorID, nil, map[string]any{"claimed_by": actorID})
	return claimed, nil
}

// Unclaim releases the claim on the ticket in channelID. Only the
// claimant or the escalation team may release it.
func (s *TicketService) Unclaim(ctx context.Context, channelID, actorID string) (*domain.Ticket, error) {
	ticket, open, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !open.Claimed() {
		return nil, apperrors.NewAlreadyDone(domain.ReasonNotClaimed, "ticket is not claimed")
	}
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if open.ClaimedBy != actorID && !s.policy.IsEscalation(actor) {
		return nil, apperrors.NewNotAuthorized(domain.ReasonNotClaimant, "only the claimant can unclaim this ticket")
	}

	released, err := s.tickets.AtomicUnclaim(ctx, channelID, open.ClaimedBy)
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, s.missed(ctx, channelID, domain.ReasonNotClaimed, "ticket is no longer claimed by that member")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	s.sync.Sync(ctx, channelID,
		s.matrix.Compute(ticket.TicketType, true, ticket.UserID, open.ClaimedBy),
		s.matrix.Compute(released.TicketType, false, released.UserID, ""))
	s.refreshAnchor(ctx, released)

	s.publish(ctx, events.EventTicketUnclaimed, released.ID, actorID,
		map[string]any{"claimed_by": open.ClaimedBy}, nil)
	return released, nil
}
