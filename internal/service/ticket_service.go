package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/permission"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/transcript"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const backgroundTimeout = 30 * time.Second

// TranscriptExporter renders channel history at close time.
type TranscriptExporter interface {
	ExportPlainText(ctx context.Context, channelID string) (string, error)
	ExportHTML(ctx context.Context, doc transcript.Document) (string, error)
}

// TicketService is the lifecycle engine. Every mutation is decided by a
// conditional store update; checks made before it only pick the message
// returned to the actor.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	platform   platform.Client
	matrix     *permission.Matrix
	sync       *permission.Synchronizer
	exporter   TranscriptExporter
	storage    transcript.Storage
	guard      lock.Guard
	dispatcher events.Dispatcher
	policy     Policy
	cfg        config.TicketsConfig
	guildID    string
	logger     *zap.Logger
	clock      func() time.Time
	after      func(time.Duration, func())
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Platform    platform.Client
	Exporter    TranscriptExporter
	Storage     transcript.Storage
	Guard       lock.Guard
	Dispatcher  events.Dispatcher
	Config      config.TicketsConfig
	GuildID     string
	Logger      *zap.Logger

	// Clock and After default to time.Now and time.AfterFunc.
	Clock func() time.Time
	After func(time.Duration, func())
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	after := deps.After
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	storage := deps.Storage
	if storage == nil {
		storage = transcript.NopStorage{}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	matrix := permission.NewMatrix(permission.Roles{
		Everyone:   deps.GuildID,
		Support:    deps.Config.SupportRoleID,
		Partner:    deps.Config.PartnerRoleID,
		Escalation: deps.Config.EscalationRoleID,
	})
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		platform:   deps.Platform,
		matrix:     matrix,
		sync:       permission.NewSynchronizer(deps.Platform, logger),
		exporter:   deps.Exporter,
		storage:    storage,
		guard:      deps.Guard,
		dispatcher: dispatcher,
		policy:     NewPolicy(deps.Config),
		cfg:        deps.Config,
		guildID:    deps.GuildID,
		logger:     logger,
		clock:      clock,
		after:      after,
	}
}

// GetByChannel returns the ticket bound to channelID.
func (s *TicketService) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindByChannel(ctx, channelID)
	if err != nil {
		return nil, storeError(err)
	}
	return ticket, nil
}

// GetByNumber returns the ticket with the given number.
func (s *TicketService) GetByNumber(ctx context.Context, number int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindByNumber(ctx, number)
	if err != nil {
		return nil, storeError(err)
	}
	return ticket, nil
}

// GetByID returns the ticket with the given record id.
func (s *TicketService) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return ticket, nil
}

// History returns the audit trail of a ticket, oldest first.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}
	return entries, nil
}

// Stats summarizes the store.
type Stats struct {
	OpenTickets int64 `json:"open_tickets"`
}

// Stats returns the number of open tickets.
func (s *TicketService) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.tickets.CountOpen(ctx)
	if err != nil {
		return nil, apperrors.NewUnavailable(err)
	}
	return &Stats{OpenTickets: count}, nil
}

// now truncates to millisecond precision so stamps round-trip through
// every store driver unchanged.
func (s *TicketService) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *TicketService) member(ctx context.Context, userID string) (*platform.Member, error) {
	m, err := s.platform.Member(ctx, s.guildID, userID)
	if errors.Is(err, platform.ErrNotFound) {
		return nil, apperrors.NewNotFound("member", map[string]any{"user_id": userID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("resolve member %s: %w", userID, err))
	}
	return m, nil
}

// openTicket loads the ticket bound to channelID and requires it open.
// A close detaches the record from its channel, so a channel with no
// record reports already_closed.
func (s *TicketService) openTicket(ctx context.Context, channelID string) (*domain.Ticket, domain.OpenState, error) {
	ticket, err := s.tickets.FindByChannel(ctx, channelID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.OpenState{}, alreadyClosed()
	}
	if err != nil {
		return nil, domain.OpenState{}, apperrors.NewUnavailable(err)
	}
	state, err := domain.StateOf(ticket)
	if err != nil {
		return nil, domain.OpenState{}, inconsistent(err)
	}
	open, ok := domain.OpenView(state)
	if !ok {
		return nil, domain.OpenState{}, alreadyClosed()
	}
	return ticket, open, nil
}

// missed classifies a conditional update on channelID that matched
// nothing, re-reading the record to report what actually happened.
func (s *TicketService) missed(ctx context.Context, channelID, reason, message string) error {
	current, err := s.tickets.FindByChannel(ctx, channelID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !current.Open) {
		return alreadyClosed()
	}
	if err != nil {
		return apperrors.NewUnavailable(err)
	}
	return apperrors.NewAlreadyDone(reason, message)
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID, actorID string, old, next map[string]any) {
	_ = s.dispatcher.Publish(ctx, events.New(eventType, ticketID, actorID, s.now(), old, next))
}

// refreshAnchor re-renders the pinned control message; best-effort.
func (s *TicketService) refreshAnchor(ctx context.Context, t *domain.Ticket) {
	if t.MessageID == nil || t.ChannelID == nil {
		return
	}
	if err := s.platform.EditMessage(ctx, *t.ChannelID, *t.MessageID, anchorMessage(t)); err != nil {
		s.logger.Warn("anchor update failed",
			zap.String("ticket_id", t.ID),
			zap.String("channel_id", *t.ChannelID),
			zap.Error(err))
	}
}

// postAnchor sends and pins the control message of a fresh open period,
// plus the description prompt for types that use one.
func (s *TicketService) postAnchor(ctx context.Context, t *domain.Ticket, content string, users []string) {
	channelID := t.Channel()
	msg := anchorMessage(t)
	msg.Content = content
	msg.MentionUsers = users
	anchor, err := s.platform.SendMessage(ctx, channelID, msg)
	if err != nil {
		s.logger.Warn("anchor send failed", zap.String("ticket_id", t.ID), zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if err := s.platform.PinMessage(ctx, channelID, anchor.ID); err != nil {
		s.logger.Warn("anchor pin failed", zap.String("ticket_id", t.ID), zap.String("channel_id", channelID), zap.Error(err))
	}
	t.MessageID = domain.Ptr(anchor.ID)

	if t.TicketType.UsesDescriptionPrompt() {
		t.DescriptionPromptMessageID = s.sendDescriptionPrompt(ctx, t)
	}
	if err := s.tickets.SetMessages(ctx, t.ID, anchor.ID, t.DescriptionPromptMessageID); err != nil {
		s.logger.Warn("anchor id not persisted", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *TicketService) sendDescriptionPrompt(ctx context.Context, t *domain.Ticket) *string {
	prompt, err := s.platform.SendMessage(ctx, t.Channel(), platform.OutgoingMessage{Content: descriptionPrompt})
	if err != nil {
		s.logger.Warn("description prompt send failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return nil
	}
	return domain.Ptr(prompt.ID)
}

// later runs f after d with its own bounded context, detached from the
// request that scheduled it.
func (s *TicketService) later(d time.Duration, f func(ctx context.Context)) {
	s.after(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		f(ctx)
	})
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"reason": domain.ReasonTicketNotFound})
	}
	return apperrors.NewUnavailable(err)
}

func inconsistent(err error) error {
	return &apperrors.DomainError{
		Code:       apperrors.CodeInternal,
		Message:    "ticket record is inconsistent",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"reason": domain.ReasonInconsistentState},
		Err:        err,
	}
}

func alreadyClosed() error {
	return apperrors.NewAlreadyDone(domain.ReasonAlreadyClosed, "ticket is already closed")
}

func notStaff() error {
	return apperrors.NewNotAuthorized(domain.ReasonNotStaff, "only staff for this ticket type can do that")
}

func escalationOnly() error {
	return apperrors.NewNotAuthorized(domain.ReasonMissingRole, "only the escalation team can do that")
}

// claimRule requires actor to hold the claim when one exists, unless the
// actor can override it.
func (s *TicketService) claimRule(open domain.OpenState, actorID string, actor *platform.Member) error {
	if open.Claimed() && open.ClaimedBy != actorID && !s.policy.IsEscalation(actor) {
		return apperrors.NewNotAuthorized(domain.ReasonNotClaimant, "this ticket is claimed by someone else")
	}
	return nil
}
