package service

import (
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// Policy answers role-based eligibility questions. Unconfigured role ids
// never match, and an unconfigured requirement never blocks.
type Policy struct {
	cfg config.TicketsConfig
}

// NewPolicy constructs a policy over the configured guild roles.
func NewPolicy(cfg config.TicketsConfig) Policy {
	return Policy{cfg: cfg}
}

// CanCreate checks the blacklist and the per-type role requirement.
func (p Policy) CanCreate(m *platform.Member, ticketType domain.TicketType) error {
	if m.HasRole(p.cfg.BlacklistRoleID) {
		return apperrors.NewNotAuthorized(domain.ReasonBlacklisted, "you are not allowed to open tickets")
	}
	var required string
	switch ticketType {
	case domain.TicketTypePartnership:
		required = p.cfg.PartnershipRequiredRoleID
	case domain.TicketTypeHighPriority:
		required = p.cfg.HighPriorityRequiredRoleID
	}
	if required != "" && !m.HasRole(required) {
		return apperrors.NewNotAuthorized(domain.ReasonMissingRole, "a required role is missing for this ticket type")
	}
	return nil
}

// IsStaffFor reports whether m may act as staff on tickets of ticketType.
func (p Policy) IsStaffFor(m *platform.Member, ticketType domain.TicketType) bool {
	if p.IsEscalation(m) {
		return true
	}
	switch ticketType {
	case domain.TicketTypePartnership:
		return m.HasRole(p.cfg.PartnerRoleID)
	case domain.TicketTypeHighPriority:
		return false
	default:
		return m.HasRole(p.cfg.SupportRoleID)
	}
}

// IsEscalation reports whether m carries the override-capable role.
func (p Policy) IsEscalation(m *platform.Member) bool {
	return m.HasRole(p.cfg.EscalationRoleID)
}

// RoutingRole is the role pinged when a ticket of ticketType opens.
func (p Policy) RoutingRole(ticketType domain.TicketType) string {
	switch ticketType {
	case domain.TicketTypePartnership:
		return p.cfg.PartnerRoleID
	case domain.TicketTypeHighPriority:
		return p.cfg.EscalationRoleID
	default:
		return p.cfg.SupportRoleID
	}
}
