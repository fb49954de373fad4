package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStateOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ticket  Ticket
		want    Phase
		wantErr bool
	}{
		{
			name:   "open unclaimed",
			ticket: Ticket{ID: "t1", Open: true, ChannelID: Ptr("c1")},
			want:   PhaseOpen,
		},
		{
			name:   "open with pending close request",
			ticket: Ticket{ID: "t1", Open: true, ChannelID: Ptr("c1"), ClaimedBy: Ptr("s1"), CloseRequestedAt: &now, CloseRequestedBy: Ptr("s1")},
			want:   PhaseCloseRequested,
		},
		{
			name:   "closed keeps last claimant",
			ticket: Ticket{ID: "t1", Open: false, ClosedAt: &now, ClosedBy: Ptr("s1"), ClaimedBy: Ptr("s1")},
			want:   PhaseClosed,
		},
		{
			name:    "closed without closed_at",
			ticket:  Ticket{ID: "t1", Open: false},
			wantErr: true,
		},
		{
			name:    "open with closed_at",
			ticket:  Ticket{ID: "t1", Open: true, ChannelID: Ptr("c1"), ClosedAt: &now},
			wantErr: true,
		},
		{
			name:    "open without channel",
			ticket:  Ticket{ID: "t1", Open: true},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := StateOf(&tt.ticket)
			if tt.wantErr {
				if !errors.Is(err, ErrInconsistentState) {
					t.Fatalf("err = %v, want ErrInconsistentState", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("StateOf: %v", err)
			}
			if state.Phase() != tt.want {
				t.Errorf("phase = %q, want %q", state.Phase(), tt.want)
			}
		})
	}
}

func TestOpenViewOfCloseRequested(t *testing.T) {
	state := CloseRequestedState{OpenState: OpenState{ClaimedBy: "s1"}, By: "s1"}
	open, ok := OpenView(state)
	if !ok || !open.Claimed() || open.ClaimedBy != "s1" {
		t.Fatalf("OpenView = %+v, %v", open, ok)
	}
	if _, ok := OpenView(ClosedState{}); ok {
		t.Fatal("closed state must not report open")
	}
}

func TestParseTicketType(t *testing.T) {
	if got, err := ParseTicketType(" High-Priority "); err != nil || got != TicketTypeHighPriority {
		t.Fatalf("ParseTicketType = %q, %v", got, err)
	}
	if _, err := ParseTicketType("billing"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestCloneDetachesPointers(t *testing.T) {
	original := &Ticket{ID: "t1", ClaimedBy: Ptr("s1")}
	clone := original.Clone()
	*clone.ClaimedBy = "s2"
	if original.Claimant() != "s1" {
		t.Fatalf("clone mutated original claimant: %q", original.Claimant())
	}
}
