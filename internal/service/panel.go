package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
)

// Custom ids carried by the engine's buttons; the dispatch layer routes
// them back to the matching operation.
const (
	ButtonClaim        = "ticket:claim"
	ButtonUnclaim      = "ticket:unclaim"
	ButtonCloseRequest = "ticket:close_request"
	ButtonClose        = "ticket:close"
	ButtonCloseAccept  = "ticket:close_accept"
	ButtonCloseReject  = "ticket:close_reject"
)

const (
	colorOpen    = 0x57f287
	colorClaimed = 0x5865f2
	colorPending = 0xfee75c
	colorClosed  = 0xed4245
)

const descriptionPrompt = "Please describe your partnership proposal and include a permanent invite link to your community."

var channelNameUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// channelName builds a platform-safe channel name for an owner.
func channelName(ticketType domain.TicketType, ownerName string) string {
	name := strings.ToLower(strings.TrimSpace(ownerName))
	name = channelNameUnsafe.ReplaceAllString(strings.ReplaceAll(name, " ", "-"), "")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "user"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return ticketType.ChannelPrefix() + "-" + name
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func typeBlurb(t domain.TicketType) string {
	switch t {
	case domain.TicketTypePartnership:
		return "A partnership manager will review your request shortly."
	case domain.TicketTypeHighPriority:
		return "This ticket has been escalated. A senior staff member will respond as soon as possible."
	default:
		return "Describe your issue and a member of the support team will be with you shortly."
	}
}

func ticketTitle(t *domain.Ticket) string {
	title := t.TicketType.Label() + " Ticket"
	if n := t.Number(); n > 0 {
		title = fmt.Sprintf("%s #%d", title, n)
	}
	return title
}

// anchorMessage renders the pinned control message for t.
func anchorMessage(t *domain.Ticket) platform.OutgoingMessage {
	claimant := "Unclaimed"
	color := colorOpen
	if c := t.Claimant(); c != "" {
		claimant = mention(c)
		color = colorClaimed
	}
	status := "Open"
	if t.CloseRequestedAt != nil {
		status = "Close requested"
		color = colorPending
	}

	embed := platform.Embed{
		Title:       ticketTitle(t),
		Description: typeBlurb(t.TicketType),
		Color:       color,
		Fields: []platform.EmbedField{
			{Name: "Owner", Value: mention(t.UserID), Inline: true},
			{Name: "Claimed by", Value: claimant, Inline: true},
			{Name: "Status", Value: status, Inline: true},
		},
		Footer: "Ticket " + t.ID,
	}

	var buttons []platform.Button
	if t.Claimant() == "" {
		buttons = append(buttons, platform.Button{CustomID: ButtonClaim, Label: "Claim", Style: platform.ButtonPrimary})
	} else {
		buttons = append(buttons, platform.Button{CustomID: ButtonUnclaim, Label: "Unclaim", Style: platform.ButtonSecondary})
	}
	buttons = append(buttons,
		platform.Button{CustomID: ButtonCloseRequest, Label: "Request Close", Style: platform.ButtonSecondary},
		platform.Button{CustomID: ButtonClose, Label: "Close", Style: platform.ButtonDanger},
	)
	return platform.OutgoingMessage{Embeds: []platform.Embed{embed}, Buttons: buttons}
}

func closeRequestMessage(t *domain.Ticket, requestedBy, reason string) platform.OutgoingMessage {
	if reason == "" {
		reason = "No reason given"
	}
	return platform.OutgoingMessage{
		Content:      mention(t.UserID),
		MentionUsers: []string{t.UserID},
		Embeds: []platform.Embed{{
			Title:       "Close Request",
			Description: fmt.Sprintf("%s has requested to close this ticket.", mention(requestedBy)),
			Color:       colorPending,
			Fields:      []platform.EmbedField{{Name: "Reason", Value: reason}},
		}},
		Buttons: []platform.Button{
			{CustomID: ButtonCloseAccept, Label: "Accept & Close", Style: platform.ButtonDanger},
			{CustomID: ButtonCloseReject, Label: "Keep Open", Style: platform.ButtonSecondary},
		},
	}
}

func autoClosePromptMessage(t *domain.Ticket) platform.OutgoingMessage {
	users := []string{t.UserID}
	content := mention(t.UserID)
	if c := t.Claimant(); c != "" && c != t.UserID {
		users = append(users, c)
		content += " " + mention(c)
	}
	return platform.OutgoingMessage{
		Content:      content,
		MentionUsers: users,
		Embeds: []platform.Embed{{
			Title:       "Is this ticket still needed?",
			Description: "There has been no activity here for a while. If your issue is resolved, this ticket can be closed.",
			Color:       colorPending,
		}},
		Buttons: []platform.Button{
			{CustomID: ButtonClose, Label: "Close", Style: platform.ButtonDanger},
		},
	}
}

func closedSummary(t *domain.Ticket, htmlPath string) platform.Embed {
	fields := []platform.EmbedField{
		{Name: "Owner", Value: mention(t.UserID), Inline: true},
		{Name: "Closed by", Value: mention(domain.Deref(t.ClosedBy)), Inline: true},
		{Name: "Type", Value: t.TicketType.Label(), Inline: true},
	}
	if c := t.Claimant(); c != "" {
		fields = append(fields, platform.EmbedField{Name: "Claimed by", Value: mention(c), Inline: true})
	}
	if reason := domain.Deref(t.CloseReason); reason != "" {
		fields = append(fields, platform.EmbedField{Name: "Reason", Value: reason})
	}
	if htmlPath != "" {
		fields = append(fields, platform.EmbedField{Name: "Transcript", Value: htmlPath})
	}
	return platform.Embed{
		Title:  ticketTitle(t) + " Closed",
		Color:  colorClosed,
		Fields: fields,
		Footer: "Ticket " + t.ID,
	}
}
