package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("ticket not found")
	// ErrNoMatch is returned when a conditional update matched no record,
	// because the ticket no longer satisfies the expected precondition.
	ErrNoMatch = errors.New("ticket did not match the expected state")
	// ErrOpenTicketExists is returned when an insert or reopen would give
	// an owner a second open ticket.
	ErrOpenTicketExists = errors.New("owner already has an open ticket")
)

// CloseParams are the fields stamped by a close.
type CloseParams struct {
	ClosedBy string
	Reason   string
	At       time.Time
}

// ReopenParams are the fields of a revived ticket.
type ReopenParams struct {
	ChannelID string
	At        time.Time
}

// StaleCursor is the keyset position of the last ticket a stale scan
// returned. Scans resume strictly after it in (OpenedAt, ID) order.
type StaleCursor struct {
	OpenedAt time.Time
	ID       string
}

// CursorOf returns the position of t in a stale scan.
func CursorOf(t *domain.Ticket) *StaleCursor {
	return &StaleCursor{OpenedAt: t.OpenedAt, ID: t.ID}
}

// SwitchParams describe a type switch. From is the expected current type.
type SwitchParams struct {
	From                   domain.TicketType
	To                     domain.TicketType
	ClearDescriptionPrompt bool
}

// TicketRepository encapsulates ticket persistence. Every mutating method
// other than Create is a single conditional update: it either applies
// atomically and returns the updated record, or returns ErrNoMatch and
// changes nothing.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	FindOpenByOwner(ctx context.Context, userID string) (*domain.Ticket, error)
	FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	FindByNumber(ctx context.Context, number int64) (*domain.Ticket, error)

	// AtomicClaim matches an open ticket in channelID with no claimant.
	AtomicClaim(ctx context.Context, channelID, claimantID string) (*domain.Ticket, error)
	// AtomicUnclaim matches an open ticket claimed by expectedClaimant.
	AtomicUnclaim(ctx context.Context, channelID, expectedClaimant string) (*domain.Ticket, error)
	// AtomicClose matches an open ticket and detaches it from its channel.
	AtomicClose(ctx context.Context, channelID string, params CloseParams) (*domain.Ticket, error)

	// SetCloseRequest matches an open ticket with no pending request.
	SetCloseRequest(ctx context.Context, channelID, requestedBy, reason string, at time.Time) (*domain.Ticket, error)
	// ClearCloseRequest matches an open ticket with a pending request.
	ClearCloseRequest(ctx context.Context, channelID string) (*domain.Ticket, error)

	// NextTicketNumber increments the singleton counter and returns the
	// new value.
	NextTicketNumber(ctx context.Context) (int64, error)
	// AssignNumber matches a ticket that has no number yet.
	AssignNumber(ctx context.Context, id string, number int64) (*domain.Ticket, error)

	SetTranscript(ctx context.Context, id, plain string, htmlPath *string) error
	SetMessages(ctx context.Context, id, messageID string, descriptionPromptID *string) error

	// Reopen matches a closed ticket and resets every per-period field.
	Reopen(ctx context.Context, id string, params ReopenParams) (*domain.Ticket, error)
	// SwitchType matches an open ticket in channelID of type params.From.
	SwitchType(ctx context.Context, channelID string, params SwitchParams) (*domain.Ticket, error)

	// MarkPromptSent matches an open ticket that has not been prompted.
	MarkPromptSent(ctx context.Context, id string, at time.Time) (*domain.Ticket, error)
	// ResetPrompt clears the prompt stamp set at.
	ResetPrompt(ctx context.Context, id string, at time.Time) error
	// ListStale returns open, unprompted tickets opened before cutoff in
	// (OpenedAt, ID) order, starting after the cursor when one is given.
	ListStale(ctx context.Context, openedBefore time.Time, after *StaleCursor, limit int) ([]domain.Ticket, error)

	// SetRating matches a closed, unrated ticket owned by userID.
	SetRating(ctx context.Context, id, userID string, score int, at time.Time) (*domain.Ticket, error)

	CountOpen(ctx context.Context) (int64, error)
}

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}
