package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

func newOpenTicket(t *testing.T, repo TicketRepository, owner, channel string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		GuildID:    "guild",
		UserID:     owner,
		ChannelID:  domain.Ptr(channel),
		TicketType: domain.TicketTypeSupport,
		CreatedAt:  time.Now(),
	}
	if err := repo.Create(context.Background(), ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return ticket
}

func TestMemoryCreateEnforcesOneOpenPerOwner(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(context.Background(), &domain.Ticket{
				UserID:    "U1",
				ChannelID: domain.Ptr(fmt.Sprintf("c%d", i)),
				CreatedAt: time.Now(),
			})
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, ErrOpenTicketExists):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("created %d open tickets, want 1", wins.Load())
	}
	if n, _ := repo.CountOpen(context.Background()); n != 1 {
		t.Fatalf("CountOpen = %d", n)
	}
}

func TestMemoryAtomicClaimSingleWinner(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	newOpenTicket(t, repo, "U1", "chan")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AtomicClaim(context.Background(), "chan", fmt.Sprintf("S%d", i))
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, ErrNoMatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("claims = %d, want 1", wins.Load())
	}
}

func TestMemoryAtomicCloseSingleWinner(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	newOpenTicket(t, repo, "U1", "chan")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AtomicClose(context.Background(), "chan", CloseParams{ClosedBy: "S1", At: time.Now()}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("closes = %d, want 1", wins.Load())
	}
}

func TestMemoryCloseDetachesChannelKeepsClaimant(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	ticket := newOpenTicket(t, repo, "U1", "chan")

	if _, err := repo.AtomicClaim(ctx, "chan", "S1"); err != nil {
		t.Fatalf("AtomicClaim: %v", err)
	}
	closed, err := repo.AtomicClose(ctx, "chan", CloseParams{ClosedBy: "S1", Reason: "done", At: time.Now()})
	if err != nil {
		t.Fatalf("AtomicClose: %v", err)
	}
	if closed.Open || closed.ChannelID != nil || closed.ClosedAt == nil {
		t.Fatalf("closed ticket = %+v", closed)
	}
	if closed.Claimant() != "S1" {
		t.Fatal("closed ticket keeps its last claimant")
	}
	if _, err := repo.AtomicClaim(ctx, "chan", "S2"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("claim on closed ticket = %v, want ErrNoMatch", err)
	}
	if _, err := repo.FindByChannel(ctx, "chan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByChannel after close = %v", err)
	}
	if _, err := repo.FindByID(ctx, ticket.ID); err != nil {
		t.Fatalf("record must survive close: %v", err)
	}
}

func TestMemoryNextTicketNumberSequential(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.NextTicketNumber(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[n] {
				t.Errorf("number %d handed out twice", n)
			}
			seen[n] = true
		}()
	}
	wg.Wait()
	for i := int64(1); i <= 50; i++ {
		if !seen[i] {
			t.Fatalf("number %d skipped", i)
		}
	}
}

func TestMemoryAssignNumberOnce(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	ticket := newOpenTicket(t, repo, "U1", "chan")

	if _, err := repo.AssignNumber(ctx, ticket.ID, 7); err != nil {
		t.Fatalf("AssignNumber: %v", err)
	}
	if _, err := repo.AssignNumber(ctx, ticket.ID, 8); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("second AssignNumber = %v, want ErrNoMatch", err)
	}
	got, err := repo.FindByNumber(ctx, 7)
	if err != nil || got.ID != ticket.ID {
		t.Fatalf("FindByNumber = %+v, %v", got, err)
	}
}

func TestMemoryReopenResetsPeriodFields(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	ticket := newOpenTicket(t, repo, "U1", "chan")
	_, _ = repo.AtomicClaim(ctx, "chan", "S1")
	_, _ = repo.MarkPromptSent(ctx, ticket.ID, time.Now())
	_, _ = repo.AssignNumber(ctx, ticket.ID, 42)
	_, _ = repo.AtomicClose(ctx, "chan", CloseParams{ClosedBy: "S1", At: time.Now()})
	_, _ = repo.SetRating(ctx, ticket.ID, "U1", 5, time.Now())

	reopened, err := repo.Reopen(ctx, ticket.ID, ReopenParams{ChannelID: "chan2", At: time.Now()})
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if !reopened.Open || reopened.Channel() != "chan2" || reopened.Number() != 42 {
		t.Fatalf("reopened = %+v", reopened)
	}
	if reopened.ClaimedBy != nil || reopened.ClosedAt != nil || reopened.AutoClosePromptSentAt != nil || reopened.RatingScore != nil {
		t.Fatalf("period fields not reset: %+v", reopened)
	}
	if _, err := repo.Reopen(ctx, ticket.ID, ReopenParams{ChannelID: "chan3", At: time.Now()}); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("reopen of open ticket = %v", err)
	}
}

func TestMemoryReopenRejectedWhileOwnerHasOpenTicket(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	first := newOpenTicket(t, repo, "U1", "chan")
	_, _ = repo.AtomicClose(ctx, "chan", CloseParams{ClosedBy: "S1", At: time.Now()})
	newOpenTicket(t, repo, "U1", "chan2")

	if _, err := repo.Reopen(ctx, first.ID, ReopenParams{ChannelID: "chan3", At: time.Now()}); !errors.Is(err, ErrOpenTicketExists) {
		t.Fatalf("Reopen = %v, want ErrOpenTicketExists", err)
	}
}

func TestMemoryPromptStampOncePerPeriod(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	ticket := &domain.Ticket{UserID: "U1", ChannelID: domain.Ptr("chan"), CreatedAt: old}
	if err := repo.Create(ctx, ticket); err != nil {
		t.Fatal(err)
	}

	stale, _ := repo.ListStale(ctx, time.Now().Add(-24*time.Hour), nil, 10)
	if len(stale) != 1 {
		t.Fatalf("stale = %d, want 1", len(stale))
	}
	at := time.Now()
	if _, err := repo.MarkPromptSent(ctx, ticket.ID, at); err != nil {
		t.Fatalf("MarkPromptSent: %v", err)
	}
	if _, err := repo.MarkPromptSent(ctx, ticket.ID, at); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("second MarkPromptSent = %v", err)
	}
	if stale, _ := repo.ListStale(ctx, time.Now().Add(-24*time.Hour), nil, 10); len(stale) != 0 {
		t.Fatal("prompted ticket must not be listed again")
	}
	if err := repo.ResetPrompt(ctx, ticket.ID, at); err != nil {
		t.Fatalf("ResetPrompt: %v", err)
	}
	if stale, _ := repo.ListStale(ctx, time.Now().Add(-24*time.Hour), nil, 10); len(stale) != 1 {
		t.Fatal("reset ticket must be listed again")
	}
}

func TestMemoryListStalePagesByKeyset(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	tied := time.Now().Add(-72 * time.Hour).Truncate(time.Millisecond)
	owners := []string{"U1", "U2", "U3", "U4", "U5"}
	for i, owner := range owners {
		at := tied
		if i == 0 {
			at = tied.Add(-time.Hour)
		}
		ticket := &domain.Ticket{UserID: owner, ChannelID: domain.Ptr("chan-" + owner), CreatedAt: at}
		if err := repo.Create(ctx, ticket); err != nil {
			t.Fatal(err)
		}
	}

	var seen []domain.Ticket
	var after *StaleCursor
	for page := 0; page < len(owners); page++ {
		got, err := repo.ListStale(ctx, time.Now(), after, 2)
		if err != nil {
			t.Fatalf("ListStale: %v", err)
		}
		seen = append(seen, got...)
		if len(got) < 2 {
			break
		}
		after = CursorOf(&got[len(got)-1])
	}

	if len(seen) != len(owners) {
		t.Fatalf("paged %d tickets, want %d", len(seen), len(owners))
	}
	if seen[0].UserID != "U1" {
		t.Fatalf("oldest first: got %s", seen[0].UserID)
	}
	ids := map[string]bool{}
	for i, ticket := range seen {
		if ids[ticket.ID] {
			t.Fatalf("ticket %s listed twice", ticket.ID)
		}
		ids[ticket.ID] = true
		if i > 0 && seen[i-1].OpenedAt.Equal(ticket.OpenedAt) && seen[i-1].ID > ticket.ID {
			t.Fatalf("tied tickets out of id order at %d", i)
		}
	}
}

func TestMemorySetRatingRules(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	ticket := newOpenTicket(t, repo, "U1", "chan")

	if _, err := repo.SetRating(ctx, ticket.ID, "U1", 5, time.Now()); !errors.Is(err, ErrNoMatch) {
		t.Fatal("open tickets cannot be rated")
	}
	_, _ = repo.AtomicClose(ctx, "chan", CloseParams{ClosedBy: "S1", At: time.Now()})
	if _, err := repo.SetRating(ctx, ticket.ID, "U2", 5, time.Now()); !errors.Is(err, ErrNoMatch) {
		t.Fatal("only the owner may rate")
	}
	if _, err := repo.SetRating(ctx, ticket.ID, "U1", 4, time.Now()); err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	if _, err := repo.SetRating(ctx, ticket.ID, "U1", 3, time.Now()); !errors.Is(err, ErrNoMatch) {
		t.Fatal("a period may be rated once")
	}
}

func TestMemoryCloseRequestLifecycle(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	newOpenTicket(t, repo, "U1", "chan")

	if _, err := repo.ClearCloseRequest(ctx, "chan"); !errors.Is(err, ErrNoMatch) {
		t.Fatal("nothing to clear yet")
	}
	req, err := repo.SetCloseRequest(ctx, "chan", "S1", "resolved", time.Now())
	if err != nil || domain.Deref(req.CloseReason) != "resolved" {
		t.Fatalf("SetCloseRequest = %+v, %v", req, err)
	}
	if _, err := repo.SetCloseRequest(ctx, "chan", "S2", "", time.Now()); !errors.Is(err, ErrNoMatch) {
		t.Fatal("a pending request blocks a second one")
	}
	cleared, err := repo.ClearCloseRequest(ctx, "chan")
	if err != nil || cleared.CloseRequestedAt != nil || cleared.CloseRequestedBy != nil {
		t.Fatalf("ClearCloseRequest = %+v, %v", cleared, err)
	}
}

func TestMemoryCloseClearsPendingRequest(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	created := newOpenTicket(t, repo, "U1", "chan")

	if _, err := repo.SetCloseRequest(ctx, "chan", "S1", "resolved", time.Now()); err != nil {
		t.Fatalf("SetCloseRequest: %v", err)
	}
	closed, err := repo.AtomicClose(ctx, "chan", CloseParams{ClosedBy: "U1", At: time.Now()})
	if err != nil {
		t.Fatalf("AtomicClose: %v", err)
	}
	if closed.CloseRequestedAt != nil || closed.CloseRequestedBy != nil {
		t.Fatalf("close request left behind: at=%v by=%v", closed.CloseRequestedAt, closed.CloseRequestedBy)
	}
	if domain.Deref(closed.CloseReason) != "resolved" {
		t.Fatalf("CloseReason = %q, want the requested reason", domain.Deref(closed.CloseReason))
	}
	stored, _ := repo.FindByID(ctx, created.ID)
	if stored.CloseRequestedBy != nil {
		t.Fatal("stored record still names a requester")
	}
}

func TestMemorySwitchTypeConditional(t *testing.T) {
	repo := NewMemoryStore().Tickets()
	ctx := context.Background()
	ticket := newOpenTicket(t, repo, "U1", "chan")
	_ = repo.SetMessages(ctx, ticket.ID, "anchor", domain.Ptr("prompt"))

	switched, err := repo.SwitchType(ctx, "chan", SwitchParams{
		From: domain.TicketTypeSupport, To: domain.TicketTypePartnership,
	})
	if err != nil || switched.TicketType != domain.TicketTypePartnership {
		t.Fatalf("SwitchType = %+v, %v", switched, err)
	}
	if _, err := repo.SwitchType(ctx, "chan", SwitchParams{From: domain.TicketTypeSupport, To: domain.TicketTypeHighPriority}); !errors.Is(err, ErrNoMatch) {
		t.Fatal("stale From must not match")
	}
	back, err := repo.SwitchType(ctx, "chan", SwitchParams{
		From: domain.TicketTypePartnership, To: domain.TicketTypeSupport, ClearDescriptionPrompt: true,
	})
	if err != nil || back.DescriptionPromptMessageID != nil || domain.Deref(back.MessageID) != "anchor" {
		t.Fatalf("switch back = %+v, %v", back, err)
	}
}

func TestMemoryHistoryByTicket(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.History().Create(ctx, &domain.TicketHistory{TicketID: "a", ChangeType: domain.ChangeTypeCreated})
	_ = store.History().Create(ctx, &domain.TicketHistory{TicketID: "b", ChangeType: domain.ChangeTypeCreated})
	_ = store.History().Create(ctx, &domain.TicketHistory{TicketID: "a", ChangeType: domain.ChangeTypeClaimed})

	got, err := store.History().ListByTicket(ctx, "a")
	if err != nil || len(got) != 2 || got[1].ChangeType != domain.ChangeTypeClaimed {
		t.Fatalf("ListByTicket = %+v, %v", got, err)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatal("ids and timestamps must be assigned")
	}
}
