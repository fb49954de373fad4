// Package permission maps ticket state onto the visibility grants a
// conversation space must carry, and applies the resulting overwrites.
package permission

import (
	"github.com/spec-kit/ticket-engine/internal/domain"
)

// Permission is a bitset of channel rights.
type Permission uint8

const (
	View Permission = 1 << iota
	Send
	ReadHistory
	AttachFiles
)

// Full is the access level of the owner, the claimant and unclaimed staff.
const Full = View | Send | ReadHistory | AttachFiles

// Has reports whether every bit of q is set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// PrincipalKind distinguishes role and member overwrites.
type PrincipalKind string

const (
	KindRole   PrincipalKind = "role"
	KindMember PrincipalKind = "member"
)

// Principal is the target of a single overwrite.
type Principal struct {
	Kind PrincipalKind
	ID   string
}

// Overwrite is the allow/deny pair for one principal.
type Overwrite struct {
	Principal
	Allow Permission
	Deny  Permission
}

// Roles are the guild roles the matrix refers to. The everyone role id is
// the guild id on Discord. Empty ids are skipped.
type Roles struct {
	Everyone   string
	Support    string
	Partner    string
	Escalation string
}

// Matrix computes overwrites for a fixed set of guild roles.
type Matrix struct {
	roles Roles
}

// NewMatrix constructs a matrix for roles.
func NewMatrix(roles Roles) *Matrix {
	return &Matrix{roles: roles}
}

// Roles returns the configured roles.
func (m *Matrix) Roles() Roles {
	return m.roles
}

func fullAccess(p Principal) Overwrite {
	return Overwrite{Principal: p, Allow: Full}
}

func readOnly(p Principal) Overwrite {
	return Overwrite{Principal: p, Allow: View | ReadHistory, Deny: Send | AttachFiles}
}

func denied(p Principal) Overwrite {
	return Overwrite{Principal: p, Deny: View}
}

// staffAccess is full while unclaimed and degrades to read-only once a
// claimant takes over.
func staffAccess(p Principal, claimed bool) Overwrite {
	if claimed {
		return readOnly(p)
	}
	return fullAccess(p)
}

// Compute returns the overwrites a space for the given ticket state must
// carry. The result is a pure function of its inputs and is ordered:
// everyone, roles, owner, claimant.
func (m *Matrix) Compute(ticketType domain.TicketType, claimed bool, ownerID, claimantID string) []Overwrite {
	role := func(id string) Principal { return Principal{Kind: KindRole, ID: id} }

	out := make([]Overwrite, 0, 6)
	add := func(ow Overwrite) {
		if ow.ID == "" {
			return
		}
		for i := range out {
			if out[i].Principal == ow.Principal {
				out[i] = ow
				return
			}
		}
		out = append(out, ow)
	}

	add(denied(role(m.roles.Everyone)))

	switch ticketType {
	case domain.TicketTypePartnership:
		add(denied(role(m.roles.Support)))
		add(staffAccess(role(m.roles.Partner), claimed))
		add(readOnly(role(m.roles.Escalation)))
	case domain.TicketTypeHighPriority:
		add(denied(role(m.roles.Support)))
		add(denied(role(m.roles.Partner)))
		add(staffAccess(role(m.roles.Escalation), claimed))
	default:
		add(staffAccess(role(m.roles.Support), claimed))
		add(denied(role(m.roles.Partner)))
		add(staffAccess(role(m.roles.Escalation), claimed))
	}

	add(fullAccess(Principal{Kind: KindMember, ID: ownerID}))
	if claimed && claimantID != "" {
		add(fullAccess(Principal{Kind: KindMember, ID: claimantID}))
	}
	return out
}

// Diff returns the overwrites that must be written to move a space from
// prev to next, and the principals whose overwrite must be removed.
func Diff(prev, next []Overwrite) (set []Overwrite, remove []Principal) {
	previous := make(map[Principal]Overwrite, len(prev))
	for _, ow := range prev {
		previous[ow.Principal] = ow
	}
	wanted := make(map[Principal]struct{}, len(next))
	for _, ow := range next {
		wanted[ow.Principal] = struct{}{}
		if old, ok := previous[ow.Principal]; ok && old == ow {
			continue
		}
		set = append(set, ow)
	}
	for _, ow := range prev {
		if _, ok := wanted[ow.Principal]; !ok {
			remove = append(remove, ow.Principal)
		}
	}
	return set, remove
}

// Equal reports whether a and b grant the same effective rights,
// regardless of order.
func Equal(a, b []Overwrite) bool {
	set, remove := Diff(a, b)
	return len(set) == 0 && len(remove) == 0
}
