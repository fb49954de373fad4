package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated              EventType = "ticket_created"
	EventTicketClaimed              EventType = "ticket_claimed"
	EventTicketUnclaimed            EventType = "ticket_unclaimed"
	EventTicketCloseRequested       EventType = "ticket_close_requested"
	EventTicketCloseRequestRejected EventType = "ticket_close_request_rejected"
	EventTicketClosed               EventType = "ticket_closed"
	EventTicketReopened             EventType = "ticket_reopened"
	EventTicketTypeSwitched         EventType = "ticket_type_switched"
	EventTicketRated                EventType = "ticket_rated"
	EventTicketAutoClosePrompted    EventType = "ticket_auto_close_prompted"
)

// LifecycleEvents lists every event the engine publishes.
var LifecycleEvents = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketUnclaimed,
	EventTicketCloseRequested,
	EventTicketCloseRequestRejected,
	EventTicketClosed,
	EventTicketReopened,
	EventTicketTypeSwitched,
	EventTicketRated,
	EventTicketAutoClosePrompted,
}

// Event represents a lifecycle transition emitted by the engine. ActorID
// is empty for transitions triggered by the watchdog.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Old       map[string]any `json:"old,omitempty"`
	New       map[string]any `json:"new,omitempty"`
}

// New builds an event with a fresh id.
func New(eventType EventType, ticketID, actorID string, at time.Time, old, next map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: at,
		Old:       old,
		New:       next,
	}
}
