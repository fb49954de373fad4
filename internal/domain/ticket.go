package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketType enumerates the request variants; it governs routing and the
// permission matrix of the conversation space.
type TicketType string

const (
	TicketTypeSupport      TicketType = "support"
	TicketTypePartnership  TicketType = "partnership"
	TicketTypeHighPriority TicketType = "high-priority"
)

// TicketTypes lists every known type in display order.
var TicketTypes = []TicketType{TicketTypeSupport, TicketTypePartnership, TicketTypeHighPriority}

// ParseTicketType validates a raw type name.
func ParseTicketType(raw string) (TicketType, error) {
	candidate := TicketType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TicketTypes {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown ticket type %q", raw)
}

// Label is the human readable name used in channel names and embeds.
func (t TicketType) Label() string {
	switch t {
	case TicketTypePartnership:
		return "Partnership"
	case TicketTypeHighPriority:
		return "High Priority"
	default:
		return "Support"
	}
}

// ChannelPrefix is prepended to the owner's name when naming the space.
func (t TicketType) ChannelPrefix() string {
	switch t {
	case TicketTypePartnership:
		return "partner"
	case TicketTypeHighPriority:
		return "priority"
	default:
		return "support"
	}
}

// UsesDescriptionPrompt reports whether the type keeps a description prompt
// message in the scratch field.
func (t TicketType) UsesDescriptionPrompt() bool {
	return t == TicketTypePartnership
}

// Ticket is the persistent record of one request workflow. It outlives the
// conversation space it was discussed in.
type Ticket struct {
	ID                         string     `json:"id" bson:"_id"`
	GuildID                    string     `json:"guild_id" bson:"guild_id"`
	TicketNumber               *int64     `json:"ticket_number,omitempty" bson:"ticket_number,omitempty"`
	UserID                     string     `json:"user_id" bson:"user_id"`
	ChannelID                  *string    `json:"channel_id" bson:"channel_id"`
	TicketType                 TicketType `json:"ticket_type" bson:"ticket_type"`
	Open                       bool       `json:"open" bson:"open"`
	ClaimedBy                  *string    `json:"claimed_by" bson:"claimed_by"`
	MessageID                  *string    `json:"message_id" bson:"message_id"`
	CreatedAt                  time.Time  `json:"created_at" bson:"created_at"`
	OpenedAt                   time.Time  `json:"opened_at" bson:"opened_at"`
	UpdatedAt                  time.Time  `json:"updated_at" bson:"updated_at"`
	ClosedAt                   *time.Time `json:"closed_at,omitempty" bson:"closed_at"`
	CloseRequestedAt           *time.Time `json:"close_requested_at,omitempty" bson:"close_requested_at"`
	AutoClosePromptSentAt      *time.Time `json:"auto_close_prompt_sent_at,omitempty" bson:"auto_close_prompt_sent_at"`
	CloseReason                *string    `json:"close_reason,omitempty" bson:"close_reason"`
	CloseRequestedBy           *string    `json:"close_requested_by,omitempty" bson:"close_requested_by"`
	ClosedBy                   *string    `json:"closed_by,omitempty" bson:"closed_by"`
	Transcript                 string     `json:"transcript,omitempty" bson:"transcript"`
	TranscriptHTMLPath         *string    `json:"transcript_html_path,omitempty" bson:"transcript_html_path"`
	RatingScore                *int       `json:"rating_score,omitempty" bson:"rating_score"`
	RatingBy                   *string    `json:"rating_by,omitempty" bson:"rating_by"`
	RatingAt                   *time.Time `json:"rating_at,omitempty" bson:"rating_at"`
	DescriptionPromptMessageID *string    `json:"description_prompt_message_id,omitempty" bson:"description_prompt_message_id"`
}

// Clone returns a deep copy so callers never share pointer fields.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.TicketNumber = clonePtr(t.TicketNumber)
	out.ChannelID = clonePtr(t.ChannelID)
	out.ClaimedBy = clonePtr(t.ClaimedBy)
	out.MessageID = clonePtr(t.MessageID)
	out.ClosedAt = clonePtr(t.ClosedAt)
	out.CloseRequestedAt = clonePtr(t.CloseRequestedAt)
	out.AutoClosePromptSentAt = clonePtr(t.AutoClosePromptSentAt)
	out.CloseReason = clonePtr(t.CloseReason)
	out.CloseRequestedBy = clonePtr(t.CloseRequestedBy)
	out.ClosedBy = clonePtr(t.ClosedBy)
	out.TranscriptHTMLPath = clonePtr(t.TranscriptHTMLPath)
	out.RatingScore = clonePtr(t.RatingScore)
	out.RatingBy = clonePtr(t.RatingBy)
	out.RatingAt = clonePtr(t.RatingAt)
	out.DescriptionPromptMessageID = clonePtr(t.DescriptionPromptMessageID)
	return &out
}

// Channel returns the live channel id or "" while the ticket is closed.
func (t *Ticket) Channel() string {
	return Deref(t.ChannelID)
}

// Claimant returns the current claimant id or "".
func (t *Ticket) Claimant() string {
	return Deref(t.ClaimedBy)
}

// Number returns the ticket number or 0 when none has been assigned.
func (t *Ticket) Number() int64 {
	if t.TicketNumber == nil {
		return 0
	}
	return *t.TicketNumber
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the pointed-to value or the zero value.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
