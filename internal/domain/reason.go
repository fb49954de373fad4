package domain

// Reason codes attached to precondition failures so the UI layer can pick
// the right message without re-deriving state.
const (
	ReasonAlreadyClaimed        = "already_claimed"
	ReasonNotClaimed            = "not_claimed"
	ReasonAlreadyClosed         = "already_closed"
	ReasonAlreadyOpen           = "already_open"
	ReasonNotClaimant           = "not_claimant"
	ReasonNotStaff              = "not_staff"
	ReasonNotOwner              = "not_owner"
	ReasonOwnerCannotClose      = "owner_cannot_close"
	ReasonOpenTicketExists      = "open_ticket_exists"
	ReasonBlacklisted           = "blacklisted"
	ReasonMissingRole           = "missing_required_role"
	ReasonNoCloseRequest        = "no_close_request"
	ReasonCloseRequestPending   = "close_request_pending"
	ReasonSameType              = "same_type"
	ReasonSwitchInProgress      = "switch_in_progress"
	ReasonAlreadyRated          = "already_rated"
	ReasonInvalidScore          = "invalid_score"
	ReasonTicketNotFound        = "ticket_not_found"
	ReasonInconsistentState     = "inconsistent_state"
	ReasonAutoPromptAlreadySent = "auto_prompt_already_sent"
)
