package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	OwnerID string            `json:"owner_id"`
	Type    domain.TicketType `json:"type"`
}

// ActorRequest identifies who pressed the control.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

// CloseRequest payload, shared by close and close-request.
type CloseRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

// ResolveCloseRequest answers a pending close request.
type ResolveCloseRequest struct {
	ActorID string `json:"actor_id"`
	Accept  *bool  `json:"accept"`
}

// SwitchTypeRequest payload.
type SwitchTypeRequest struct {
	ActorID string            `json:"actor_id"`
	Type    domain.TicketType `json:"type"`
}

// RatingRequest payload.
type RatingRequest struct {
	ActorID string `json:"actor_id"`
	Score   int    `json:"score"`
}

// TicketResponse is the public view of a ticket record.
type TicketResponse struct {
	ID                    string            `json:"id"`
	TicketNumber          *int64            `json:"ticket_number,omitempty"`
	State                 domain.Phase      `json:"state"`
	UserID                string            `json:"user_id"`
	ChannelID             *string           `json:"channel_id"`
	TicketType            domain.TicketType `json:"ticket_type"`
	Open                  bool              `json:"open"`
	ClaimedBy             *string           `json:"claimed_by"`
	CreatedAt             time.Time         `json:"created_at"`
	OpenedAt              time.Time         `json:"opened_at"`
	ClosedAt              *time.Time        `json:"closed_at,omitempty"`
	ClosedBy              *string           `json:"closed_by,omitempty"`
	CloseReason           *string           `json:"close_reason,omitempty"`
	CloseRequestedBy      *string           `json:"close_requested_by,omitempty"`
	CloseRequestedAt      *time.Time        `json:"close_requested_at,omitempty"`
	AutoClosePromptSentAt *time.Time        `json:"auto_close_prompt_sent_at,omitempty"`
	TranscriptHTMLPath    *string           `json:"transcript_html_path,omitempty"`
	RatingScore           *int              `json:"rating_score,omitempty"`
}

// CloseResponse adds the persisted transcript location.
type CloseResponse struct {
	Ticket         TicketResponse `json:"ticket"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
}

// ResolveResponse reports how a close request was answered.
type ResolveResponse struct {
	Accepted       bool           `json:"accepted"`
	Ticket         TicketResponse `json:"ticket"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id,omitempty"`
	OldValue    map[string]any          `json:"old_value,omitempty"`
	NewValue    map[string]any          `json:"new_value,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps a record to its public view.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:                    t.ID,
		TicketNumber:          t.TicketNumber,
		UserID:                t.UserID,
		ChannelID:             t.ChannelID,
		TicketType:            t.TicketType,
		Open:                  t.Open,
		ClaimedBy:             t.ClaimedBy,
		CreatedAt:             t.CreatedAt,
		OpenedAt:              t.OpenedAt,
		ClosedAt:              t.ClosedAt,
		ClosedBy:              t.ClosedBy,
		CloseReason:           t.CloseReason,
		CloseRequestedBy:      t.CloseRequestedBy,
		CloseRequestedAt:      t.CloseRequestedAt,
		AutoClosePromptSentAt: t.AutoClosePromptSentAt,
		TranscriptHTMLPath:    t.TranscriptHTMLPath,
		RatingScore:           t.RatingScore,
	}
	if state, err := domain.StateOf(t); err == nil {
		resp.State = state.Phase()
	}
	return resp
}

// NewHistoryResponse maps audit entries.
func NewHistoryResponse(entries []domain.TicketHistory) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:          e.ID,
			ChangeType:  e.ChangeType,
			ChangedByID: e.ChangedByID,
			OldValue:    e.OldValue,
			NewValue:    e.NewValue,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
