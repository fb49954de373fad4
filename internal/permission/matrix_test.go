package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

var testRoles = Roles{Everyone: "guild", Support: "support", Partner: "partner", Escalation: "escalation"}

func find(t *testing.T, ows []Overwrite, id string) Overwrite {
	t.Helper()
	for _, ow := range ows {
		if ow.ID == id {
			return ow
		}
	}
	t.Fatalf("no overwrite for %q in %+v", id, ows)
	return Overwrite{}
}

func absent(t *testing.T, ows []Overwrite, id string) {
	t.Helper()
	for _, ow := range ows {
		if ow.ID == id {
			t.Fatalf("unexpected overwrite for %q: %+v", id, ow)
		}
	}
}

func canSend(ow Overwrite) bool { return ow.Allow.Has(View|Send) && ow.Deny&Send == 0 }
func canView(ow Overwrite) bool { return ow.Allow.Has(View) && ow.Deny&View == 0 }
func isDenied(ow Overwrite) bool { return ow.Deny.Has(View) }

func TestComputeSupport(t *testing.T) {
	m := NewMatrix(testRoles)

	unclaimed := m.Compute(domain.TicketTypeSupport, false, "owner", "")
	if !isDenied(find(t, unclaimed, "guild")) {
		t.Error("everyone must be denied")
	}
	if !canSend(find(t, unclaimed, "owner")) {
		t.Error("owner must have full access")
	}
	if !canSend(find(t, unclaimed, "support")) || !canSend(find(t, unclaimed, "escalation")) {
		t.Error("support and escalation must have full access while unclaimed")
	}
	if !isDenied(find(t, unclaimed, "partner")) {
		t.Error("partner must be denied")
	}

	claimed := m.Compute(domain.TicketTypeSupport, true, "owner", "staff1")
	support := find(t, claimed, "support")
	if canSend(support) || !canView(support) || !support.Allow.Has(ReadHistory) {
		t.Errorf("support must degrade to read-only, got %+v", support)
	}
	if canSend(find(t, claimed, "escalation")) {
		t.Error("escalation must degrade to read-only when claimed")
	}
	claimant := find(t, claimed, "staff1")
	if claimant.Kind != KindMember || !canSend(claimant) {
		t.Errorf("claimant must keep full member access, got %+v", claimant)
	}
	if !canSend(find(t, claimed, "owner")) {
		t.Error("owner keeps full access when claimed")
	}
}

func TestComputePartnership(t *testing.T) {
	m := NewMatrix(testRoles)

	unclaimed := m.Compute(domain.TicketTypePartnership, false, "owner", "")
	if !canSend(find(t, unclaimed, "partner")) {
		t.Error("partner role must have full access while unclaimed")
	}
	escalation := find(t, unclaimed, "escalation")
	if canSend(escalation) || !canView(escalation) {
		t.Error("escalation is always read-only on partnership tickets")
	}
	if !isDenied(find(t, unclaimed, "support")) {
		t.Error("support must be denied on partnership tickets")
	}

	claimed := m.Compute(domain.TicketTypePartnership, true, "owner", "p1")
	if canSend(find(t, claimed, "partner")) {
		t.Error("partner role degrades when claimed")
	}
	if !canSend(find(t, claimed, "p1")) {
		t.Error("claimant keeps full access")
	}
}

func TestComputeHighPriority(t *testing.T) {
	m := NewMatrix(testRoles)

	unclaimed := m.Compute(domain.TicketTypeHighPriority, false, "owner", "")
	if !canSend(find(t, unclaimed, "escalation")) {
		t.Error("escalation must have full access while unclaimed")
	}
	if !isDenied(find(t, unclaimed, "support")) || !isDenied(find(t, unclaimed, "partner")) {
		t.Error("support and partner must be denied")
	}
	claimed := m.Compute(domain.TicketTypeHighPriority, true, "owner", "e1")
	if canSend(find(t, claimed, "escalation")) {
		t.Error("escalation degrades when claimed")
	}
}

func TestComputeSkipsUnconfiguredRoles(t *testing.T) {
	m := NewMatrix(Roles{Everyone: "guild", Support: "support"})
	ows := m.Compute(domain.TicketTypeSupport, false, "owner", "")
	absent(t, ows, "")
	if len(ows) != 3 {
		t.Fatalf("expected everyone, support, owner; got %+v", ows)
	}
}

func TestSwitchRoundTripMatchesDirectCreation(t *testing.T) {
	m := NewMatrix(testRoles)
	direct := m.Compute(domain.TicketTypeSupport, false, "owner", "")

	current := direct
	for _, next := range []domain.TicketType{domain.TicketTypePartnership, domain.TicketTypeSupport} {
		target := m.Compute(next, false, "owner", "")
		set, remove := Diff(current, target)
		current = applyDiff(current, set, remove)
	}
	if !Equal(current, direct) {
		t.Fatalf("round trip diverged:\n got %+v\nwant %+v", current, direct)
	}
}

func TestDiffRemovesClaimantOnUnclaim(t *testing.T) {
	m := NewMatrix(testRoles)
	claimed := m.Compute(domain.TicketTypeSupport, true, "owner", "staff1")
	unclaimed := m.Compute(domain.TicketTypeSupport, false, "owner", "")

	set, remove := Diff(claimed, unclaimed)
	if len(remove) != 1 || remove[0].ID != "staff1" {
		t.Fatalf("remove = %+v, want claimant only", remove)
	}
	if len(set) != 2 {
		t.Fatalf("set = %+v, want support and escalation restored", set)
	}
}

func applyDiff(current []Overwrite, set []Overwrite, remove []Principal) []Overwrite {
	byPrincipal := map[Principal]Overwrite{}
	for _, ow := range current {
		byPrincipal[ow.Principal] = ow
	}
	for _, ow := range set {
		byPrincipal[ow.Principal] = ow
	}
	for _, p := range remove {
		delete(byPrincipal, p)
	}
	out := make([]Overwrite, 0, len(byPrincipal))
	for _, ow := range byPrincipal {
		out = append(out, ow)
	}
	return out
}

type flakyApplier struct {
	failFor map[string]bool
	set     []string
	cleared []string
}

func (f *flakyApplier) SetOverwrite(_ context.Context, _ string, ow Overwrite) error {
	if f.failFor[ow.ID] {
		return errors.New("rate limited")
	}
	f.set = append(f.set, ow.ID)
	return nil
}

func (f *flakyApplier) ClearOverwrite(_ context.Context, _ string, p Principal) error {
	if f.failFor[p.ID] {
		return errors.New("rate limited")
	}
	f.cleared = append(f.cleared, p.ID)
	return nil
}

func TestSynchronizerContinuesAfterFailure(t *testing.T) {
	applier := &flakyApplier{failFor: map[string]bool{"support": true}}
	sync := NewSynchronizer(applier, nil)
	ows := NewMatrix(testRoles).Compute(domain.TicketTypeSupport, false, "owner", "")

	report := sync.Apply(context.Background(), "chan", ows)
	if report.OK() {
		t.Fatal("expected a failed principal")
	}
	if len(report.Failed) != 1 || report.Failed[0].ID != "support" {
		t.Fatalf("failed = %+v", report.Failed)
	}
	if report.Applied != len(ows)-1 {
		t.Fatalf("applied = %d, want %d", report.Applied, len(ows)-1)
	}
}

func TestSynchronizerSyncWritesOnlyChanges(t *testing.T) {
	applier := &flakyApplier{}
	sync := NewSynchronizer(applier, nil)
	m := NewMatrix(testRoles)

	report := sync.Sync(context.Background(), "chan",
		m.Compute(domain.TicketTypeSupport, false, "owner", ""),
		m.Compute(domain.TicketTypeSupport, true, "owner", "staff1"))
	if report.Applied != 3 || report.Cleared != 0 {
		t.Fatalf("report = %+v, want support, escalation and claimant writes", report)
	}
}
