package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/transcript"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// CloseResult is the outcome of a successful close.
type CloseResult struct {
	Ticket         *domain.Ticket `json:"ticket"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
}

// ResolveResult is the outcome of answering a close request.
type ResolveResult struct {
	Accepted       bool           `json:"accepted"`
	Ticket         *domain.Ticket `json:"ticket"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
}

// staffCloseCheck applies the rules shared by close and close-request:
// the owner never closes their own ticket, the actor must be staff for
// the type, and a claim restricts the action to the claimant.
func (s *TicketService) staffCloseCheck(ctx context.Context, ticket *domain.Ticket, open domain.OpenState, actorID string) error {
	if actorID == ticket.UserID {
		return apperrors.NewNotAuthorized(domain.ReasonOwnerCannotClose, "you cannot close your own ticket; ask staff to close it")
	}
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return err
	}
	if !s.policy.IsStaffFor(actor, ticket.TicketType) {
		return notStaff()
	}
	return s.claimRule(open, actorID, actor)
}

// RequestClose records an advisory close request and asks the owner to
// accept or reject it.
func (s *TicketService) RequestClose(ctx context.Context, channelID, actorID, reason string) (*domain.Ticket, error) {
	ticket, open, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ticket.CloseRequestedAt != nil {
		return nil, apperrors.NewAlreadyDone(domain.ReasonCloseRequestPending, "a close request is already pending")
	}
	if err := s.staffCloseCheck(ctx, ticket, open, actorID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	requested, err := s.tickets.SetCloseRequest(ctx, channelID, actorID, reason, s.now())
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, s.missed(ctx, channelID, domain.ReasonCloseRequestPending, "a close request is already pending")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	if _, err := s.platform.SendMessage(ctx, channelID, closeRequestMessage(requested, actorID, reason)); err != nil {
		s.logger.Warn("close request message failed", zap.String("ticket_id", requested.ID), zap.Error(err))
	}
	s.refreshAnchor(ctx, requested)

	s.publish(ctx, events.EventTicketCloseRequested, requested.ID, actorID, nil, map[string]any{
		"close_requested_by": actorID,
		"close_reason":       reason,
	})
	return requested, nil
}

// ResolveCloseRequest answers a pending close request. Only the owner may
// answer; accepting closes the ticket on behalf of the requester.
func (s *TicketService) ResolveCloseRequest(ctx context.Context, channelID, actorID string, accept bool) (*ResolveResult, error) {
	ticket, _, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if actorID != ticket.UserID {
		return nil, apperrors.NewNotAuthorized(domain.ReasonNotOwner, "only the ticket owner can answer a close request")
	}
	if ticket.CloseRequestedAt == nil {
		return nil, apperrors.NewAlreadyDone(domain.ReasonNoCloseRequest, "there is no pending close request")
	}

	if accept {
		closed, err := s.closeTicket(ctx, channelID, domain.Deref(ticket.CloseRequestedBy), domain.Deref(ticket.CloseReason))
		if err != nil {
			return nil, err
		}
		return &ResolveResult{Accepted: true, Ticket: closed.Ticket, TranscriptPath: closed.TranscriptPath}, nil
	}

	cleared, err := s.tickets.ClearCloseRequest(ctx, channelID)
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, s.missed(ctx, channelID, domain.ReasonNoCloseRequest, "there is no pending close request")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	if _, err := s.platform.SendMessage(ctx, channelID, platform.OutgoingMessage{
		Content: fmt.Sprintf("%s chose to keep this ticket open.", mention(actorID)),
	}); err != nil {
		s.logger.Warn("close request rejection message failed", zap.String("ticket_id", cleared.ID), zap.Error(err))
	}
	s.refreshAnchor(ctx, cleared)

	s.publish(ctx, events.EventTicketCloseRequestRejected, cleared.ID, actorID,
		map[string]any{
			"close_requested_by": domain.Deref(ticket.CloseRequestedBy),
			"close_reason":       domain.Deref(ticket.CloseReason),
		}, nil)
	return &ResolveResult{Accepted: false, Ticket: cleared}, nil
}

// Close closes the ticket in channelID. Of two concurrent closes exactly
// one wins and delivers the transcript; the other reports already_closed.
func (s *TicketService) Close(ctx context.Context, channelID, actorID, reason string) (*CloseResult, error) {
	ticket, open, err := s.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.staffCloseCheck(ctx, ticket, open, actorID); err != nil {
		return nil, err
	}
	return s.closeTicket(ctx, channelID, actorID, strings.TrimSpace(reason))
}

// closeTicket commits the close first, then runs each best-effort step
// independently.
func (s *TicketService) closeTicket(ctx context.Context, channelID, closedBy, reason string) (*CloseResult, error) {
	closed, err := s.tickets.AtomicClose(ctx, channelID, repository.CloseParams{
		ClosedBy: closedBy,
		Reason:   reason,
		At:       s.now(),
	})
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, alreadyClosed()
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}

	closed = s.ensureNumber(ctx, closed)

	plain, htmlPath, htmlDoc := s.exportTranscripts(ctx, closed, channelID)
	var pathRef *string
	if htmlPath != "" {
		pathRef = domain.Ptr(htmlPath)
	}
	if err := s.tickets.SetTranscript(ctx, closed.ID, plain, pathRef); err != nil {
		s.logger.Warn("transcript not persisted", zap.String("ticket_id", closed.ID), zap.Error(err))
	} else {
		closed.Transcript = plain
		closed.TranscriptHTMLPath = pathRef
	}

	s.deliverTranscript(ctx, closed, plain, htmlPath, htmlDoc)

	if _, err := s.platform.SendMessage(ctx, channelID, platform.OutgoingMessage{
		Content: fmt.Sprintf("Ticket closed by %s. This channel will be deleted shortly.", mention(closedBy)),
	}); err != nil {
		s.logger.Warn("closing confirmation failed", zap.String("ticket_id", closed.ID), zap.Error(err))
	}
	s.later(s.cfg.DeleteDelay(), func(ctx context.Context) {
		if err := s.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			s.logger.Warn("channel delete failed", zap.String("ticket_id", closed.ID), zap.String("channel_id", channelID), zap.Error(err))
		}
	})

	s.publish(ctx, events.EventTicketClosed, closed.ID, closedBy,
		map[string]any{"channel_id": channelID},
		map[string]any{
			"closed_by":     closedBy,
			"close_reason":  reason,
			"ticket_number": closed.Number(),
		})
	return &CloseResult{Ticket: closed, TranscriptPath: htmlPath}, nil
}

// ensureNumber assigns the next ticket number if the record has none. A
// lost assignment race re-reads the winner's number.
func (s *TicketService) ensureNumber(ctx context.Context, t *domain.Ticket) *domain.Ticket {
	if t.TicketNumber != nil {
		return t
	}
	n, err := s.tickets.NextTicketNumber(ctx)
	if err != nil {
		s.logger.Warn("ticket number allocation failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return t
	}
	numbered, err := s.tickets.AssignNumber(ctx, t.ID, n)
	if errors.Is(err, repository.ErrNoMatch) {
		if current, ferr := s.tickets.FindByID(ctx, t.ID); ferr == nil {
			return current
		}
		return t
	}
	if err != nil {
		s.logger.Warn("ticket number assignment failed", zap.String("ticket_id", t.ID), zap.Int64("ticket_number", n), zap.Error(err))
		return t
	}
	return numbered
}

// exportTranscripts renders both transcripts. Either may come back empty;
// the close never fails because of them.
func (s *TicketService) exportTranscripts(ctx context.Context, t *domain.Ticket, channelID string) (plain, htmlPath, htmlDoc string) {
	if s.exporter == nil {
		return "", "", ""
	}
	plain, err := s.exporter.ExportPlainText(ctx, channelID)
	if err != nil {
		s.logger.Warn("plain transcript export failed", zap.String("ticket_id", t.ID), zap.Error(err))
		plain = ""
	}

	htmlDoc, err = s.exporter.ExportHTML(ctx, transcript.Document{
		Title:     ticketTitle(t),
		ChannelID: channelID,
		GuildID:   s.guildID,
	})
	if err != nil {
		s.logger.Warn("html transcript export failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return plain, "", ""
	}

	htmlPath, err = s.storage.Save(ctx, s.guildID, channelID, []byte(htmlDoc))
	switch {
	case errors.Is(err, transcript.ErrStorageDisabled):
		htmlPath = ""
	case err != nil:
		s.logger.Warn("html transcript persist failed", zap.String("ticket_id", t.ID), zap.Error(err))
		htmlPath = ""
	}
	return plain, htmlPath, htmlDoc
}

// deliverTranscript posts the summary to the log channel and DMs the
// owner. Both are best-effort.
func (s *TicketService) deliverTranscript(ctx context.Context, t *domain.Ticket, plain, htmlPath, htmlDoc string) {
	files := transcriptFiles(t, plain, htmlDoc)
	summary := closedSummary(t, htmlPath)

	if s.cfg.LogChannelID != "" {
		if _, err := s.platform.SendMessage(ctx, s.cfg.LogChannelID, platform.OutgoingMessage{
			Embeds: []platform.Embed{summary},
			Files:  files,
		}); err != nil {
			s.logger.Warn("log channel delivery failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}

	err := s.platform.SendDirect(ctx, t.UserID, platform.OutgoingMessage{
		Content: "Your ticket has been closed. A transcript is attached.",
		Embeds:  []platform.Embed{summary},
		Files:   files,
	})
	switch {
	case errors.Is(err, platform.ErrCannotMessageUser):
		s.logger.Info("owner does not accept direct messages", zap.String("ticket_id", t.ID), zap.String("user_id", t.UserID))
	case err != nil:
		s.logger.Warn("owner transcript delivery failed", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func transcriptFiles(t *domain.Ticket, plain, htmlDoc string) []platform.File {
	base := "ticket-" + t.ID
	if n := t.Number(); n > 0 {
		base = fmt.Sprintf("ticket-%d", n)
	}
	var files []platform.File
	if plain != "" {
		files = append(files, platform.File{Name: base + ".txt", ContentType: "text/plain; charset=utf-8", Data: []byte(plain)})
	}
	if htmlDoc != "" {
		files = append(files, platform.File{Name: base + ".html", ContentType: "text/html; charset=utf-8", Data: []byte(htmlDoc)})
	}
	return files
}
