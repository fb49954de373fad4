package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInconsistentState marks a persisted record whose flattened lifecycle
// fields describe an impossible combination.
var ErrInconsistentState = errors.New("inconsistent ticket state")

// State is the lifecycle position of a ticket, reconstructed from the
// flattened persisted fields.
type State interface {
	Phase() Phase
}

// Phase names a lifecycle position.
type Phase string

const (
	PhaseOpen           Phase = "open"
	PhaseCloseRequested Phase = "close_requested"
	PhaseClosed         Phase = "closed"
)

// OpenState is an open ticket, optionally claimed.
type OpenState struct {
	ClaimedBy string
}

func (OpenState) Phase() Phase { return PhaseOpen }

// Claimed reports whether a staff member holds the ticket.
func (s OpenState) Claimed() bool { return s.ClaimedBy != "" }

// CloseRequestedState is an open ticket with an advisory close request
// awaiting the owner's answer.
type CloseRequestedState struct {
	OpenState
	By     string
	Reason string
	At     time.Time
}

func (CloseRequestedState) Phase() Phase { return PhaseCloseRequested }

// ClosedState is a terminal (until reopened) ticket.
type ClosedState struct {
	By          string
	At          time.Time
	LastClaimer string
}

func (ClosedState) Phase() Phase { return PhaseClosed }

// StateOf rebuilds the tagged state from t and flags impossible
// combinations of the flattened fields.
func StateOf(t *Ticket) (State, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil ticket", ErrInconsistentState)
	}
	if !t.Open {
		if t.ClosedAt == nil {
			return nil, fmt.Errorf("%w: ticket %s closed without closed_at", ErrInconsistentState, t.ID)
		}
		return ClosedState{By: Deref(t.ClosedBy), At: *t.ClosedAt, LastClaimer: Deref(t.ClaimedBy)}, nil
	}
	if t.ClosedAt != nil {
		return nil, fmt.Errorf("%w: ticket %s open with closed_at", ErrInconsistentState, t.ID)
	}
	if t.ChannelID == nil || *t.ChannelID == "" {
		return nil, fmt.Errorf("%w: ticket %s open without channel", ErrInconsistentState, t.ID)
	}
	open := OpenState{ClaimedBy: Deref(t.ClaimedBy)}
	if t.CloseRequestedAt != nil {
		return CloseRequestedState{
			OpenState: open,
			By:        Deref(t.CloseRequestedBy),
			Reason:    Deref(t.CloseReason),
			At:        *t.CloseRequestedAt,
		}, nil
	}
	return open, nil
}

// OpenView returns the open portion of s and whether s is open at all.
func OpenView(s State) (OpenState, bool) {
	switch st := s.(type) {
	case OpenState:
		return st, true
	case CloseRequestedState:
		return st.OpenState, true
	default:
		return OpenState{}, false
	}
}
