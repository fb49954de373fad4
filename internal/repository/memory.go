package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// MemoryStore is an in-process ticket store. A single mutex makes every
// conditional update atomic; records are cloned on the way in and out.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	counter int64
	history []domain.TicketHistory
	now     func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]*domain.Ticket), now: time.Now}
}

// Tickets returns the ticket repository view of the store.
func (s *MemoryStore) Tickets() TicketRepository { return (*memoryTickets)(s) }

// History returns the history repository view of the store.
func (s *MemoryStore) History() TicketHistoryRepository { return (*memoryHistory)(s) }

type memoryTickets MemoryStore

func (r *memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.openByOwner(ticket.UserID) != nil {
		return ErrOpenTicketExists
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Open = true
	ticket.ClaimedBy = nil
	ticket.OpenedAt = ticket.CreatedAt
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *memoryTickets) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return found(r.tickets[id])
}

func (r *memoryTickets) FindOpenByOwner(_ context.Context, userID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return found(r.openByOwner(userID))
}

func (r *memoryTickets) FindByChannel(_ context.Context, channelID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return found(r.byChannel(channelID))
}

func (r *memoryTickets) FindByNumber(_ context.Context, number int64) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.Number() == number && t.TicketNumber != nil {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryTickets) AtomicClaim(_ context.Context, channelID, claimantID string) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		if t.ClaimedBy != nil {
			return false
		}
		t.ClaimedBy = domain.Ptr(claimantID)
		return true
	})
}

func (r *memoryTickets) AtomicUnclaim(_ context.Context, channelID, expectedClaimant string) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		if t.Claimant() != expectedClaimant || t.ClaimedBy == nil {
			return false
		}
		t.ClaimedBy = nil
		return true
	})
}

func (r *memoryTickets) AtomicClose(_ context.Context, channelID string, params CloseParams) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		t.Open = false
		t.ChannelID = nil
		t.ClosedAt = domain.Ptr(params.At)
		t.ClosedBy = domain.Ptr(params.ClosedBy)
		if params.Reason != "" {
			t.CloseReason = domain.Ptr(params.Reason)
		}
		t.CloseRequestedAt = nil
		t.CloseRequestedBy = nil
		return true
	})
}

func (r *memoryTickets) SetCloseRequest(_ context.Context, channelID, requestedBy, reason string, at time.Time) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		if t.CloseRequestedAt != nil {
			return false
		}
		t.CloseRequestedAt = domain.Ptr(at)
		t.CloseRequestedBy = domain.Ptr(requestedBy)
		t.CloseReason = nil
		if reason != "" {
			t.CloseReason = domain.Ptr(reason)
		}
		return true
	})
}

func (r *memoryTickets) ClearCloseRequest(_ context.Context, channelID string) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		if t.CloseRequestedAt == nil {
			return false
		}
		t.CloseRequestedAt = nil
		t.CloseRequestedBy = nil
		t.CloseReason = nil
		return true
	})
}

func (r *memoryTickets) NextTicketNumber(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return r.counter, nil
}

func (r *memoryTickets) AssignNumber(_ context.Context, id string, number int64) (*domain.Ticket, error) {
	return r.updateByID(id, func(t *domain.Ticket) bool {
		if t.TicketNumber != nil {
			return false
		}
		t.TicketNumber = domain.Ptr(number)
		return true
	})
}

func (r *memoryTickets) SetTranscript(_ context.Context, id, plain string, htmlPath *string) error {
	_, err := r.updateByID(id, func(t *domain.Ticket) bool {
		t.Transcript = plain
		t.TranscriptHTMLPath = htmlPath
		return true
	})
	return err
}

func (r *memoryTickets) SetMessages(_ context.Context, id, messageID string, descriptionPromptID *string) error {
	_, err := r.updateByID(id, func(t *domain.Ticket) bool {
		t.MessageID = domain.Ptr(messageID)
		t.DescriptionPromptMessageID = descriptionPromptID
		return true
	})
	return err
}

func (r *memoryTickets) Reopen(_ context.Context, id string, params ReopenParams) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[id]
	if !ok || t.Open {
		return nil, ErrNoMatch
	}
	if r.openByOwner(t.UserID) != nil {
		return nil, ErrOpenTicketExists
	}
	t.Open = true
	t.ChannelID = domain.Ptr(params.ChannelID)
	t.OpenedAt = params.At
	t.UpdatedAt = params.At
	t.ClaimedBy = nil
	t.MessageID = nil
	t.ClosedAt = nil
	t.ClosedBy = nil
	t.CloseReason = nil
	t.CloseRequestedAt = nil
	t.CloseRequestedBy = nil
	t.AutoClosePromptSentAt = nil
	t.RatingScore = nil
	t.RatingBy = nil
	t.RatingAt = nil
	t.DescriptionPromptMessageID = nil
	return t.Clone(), nil
}

func (r *memoryTickets) SwitchType(_ context.Context, channelID string, params SwitchParams) (*domain.Ticket, error) {
	return r.updateByChannel(channelID, func(t *domain.Ticket) bool {
		if t.TicketType != params.From {
			return false
		}
		t.TicketType = params.To
		if params.ClearDescriptionPrompt {
			t.DescriptionPromptMessageID = nil
		}
		return true
	})
}

func (r *memoryTickets) MarkPromptSent(_ context.Context, id string, at time.Time) (*domain.Ticket, error) {
	return r.updateByID(id, func(t *domain.Ticket) bool {
		if !t.Open || t.AutoClosePromptSentAt != nil {
			return false
		}
		t.AutoClosePromptSentAt = domain.Ptr(at)
		return true
	})
}

func (r *memoryTickets) ResetPrompt(_ context.Context, id string, at time.Time) error {
	_, err := r.updateByID(id, func(t *domain.Ticket) bool {
		if t.AutoClosePromptSentAt == nil || !t.AutoClosePromptSentAt.Equal(at) {
			return false
		}
		t.AutoClosePromptSentAt = nil
		return true
	})
	return err
}

func (r *memoryTickets) ListStale(_ context.Context, openedBefore time.Time, after *StaleCursor, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Ticket
	for _, t := range r.tickets {
		if !t.Open || t.AutoClosePromptSentAt != nil || !t.OpenedAt.Before(openedBefore) {
			continue
		}
		if after != nil && !staleAfter(t, after) {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func staleAfter(t *domain.Ticket, c *StaleCursor) bool {
	if t.OpenedAt.Equal(c.OpenedAt) {
		return t.ID > c.ID
	}
	return t.OpenedAt.After(c.OpenedAt)
}

func (r *memoryTickets) SetRating(_ context.Context, id, userID string, score int, at time.Time) (*domain.Ticket, error) {
	return r.updateByID(id, func(t *domain.Ticket) bool {
		if t.Open || t.UserID != userID || t.RatingScore != nil {
			return false
		}
		t.RatingScore = domain.Ptr(score)
		t.RatingBy = domain.Ptr(userID)
		t.RatingAt = domain.Ptr(at)
		return true
	})
}

func (r *memoryTickets) CountOpen(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tickets {
		if t.Open {
			n++
		}
	}
	return n, nil
}

func (r *memoryTickets) openByOwner(userID string) *domain.Ticket {
	for _, t := range r.tickets {
		if t.Open && t.UserID == userID {
			return t
		}
	}
	return nil
}

func (r *memoryTickets) byChannel(channelID string) *domain.Ticket {
	for _, t := range r.tickets {
		if t.Channel() == channelID {
			return t
		}
	}
	return nil
}

// updateByChannel applies mutate to the open ticket in channelID.
func (r *memoryTickets) updateByChannel(channelID string, mutate func(*domain.Ticket) bool) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byChannel(channelID)
	if t == nil || !t.Open {
		return nil, ErrNoMatch
	}
	return r.apply(t, mutate)
}

func (r *memoryTickets) updateByID(id string, mutate func(*domain.Ticket) bool) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, ErrNoMatch
	}
	return r.apply(t, mutate)
}

// apply mutates a copy so a rejected update leaves the record untouched.
func (r *memoryTickets) apply(t *domain.Ticket, mutate func(*domain.Ticket) bool) (*domain.Ticket, error) {
	next := t.Clone()
	if !mutate(next) {
		return nil, ErrNoMatch
	}
	next.UpdatedAt = r.now()
	r.tickets[next.ID] = next
	return next.Clone(), nil
}

func found(t *domain.Ticket) (*domain.Ticket, error) {
	if t == nil {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

type memoryHistory MemoryStore

func (r *memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = r.now()
	}
	r.history = append(r.history, *history)
	return nil
}

func (r *memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}
