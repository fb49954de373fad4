package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated              TicketChangeType = "CREATED"
	ChangeTypeClaimed              TicketChangeType = "CLAIMED"
	ChangeTypeUnclaimed            TicketChangeType = "UNCLAIMED"
	ChangeTypeCloseRequested       TicketChangeType = "CLOSE_REQUESTED"
	ChangeTypeCloseRequestRejected TicketChangeType = "CLOSE_REQUEST_REJECTED"
	ChangeTypeClosed               TicketChangeType = "CLOSED"
	ChangeTypeReopened             TicketChangeType = "REOPENED"
	ChangeTypeTypeSwitched         TicketChangeType = "TYPE_SWITCHED"
	ChangeTypeRated                TicketChangeType = "RATED"
	ChangeTypeAutoClosePrompted    TicketChangeType = "AUTO_CLOSE_PROMPTED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string           `json:"id" bson:"_id"`
	TicketID    string           `json:"ticket_id" bson:"ticket_id"`
	ChangedByID *string          `json:"changed_by_id,omitempty" bson:"changed_by_id"`
	ChangeType  TicketChangeType `json:"change_type" bson:"change_type"`
	OldValue    map[string]any   `json:"old_value,omitempty" bson:"old_value"`
	NewValue    map[string]any   `json:"new_value,omitempty" bson:"new_value"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
}
