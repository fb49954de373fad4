package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var got []string
	d.Subscribe(EventTicketClaimed, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.TicketID)
		return errors.New("boom")
	})
	d.Subscribe(EventTicketClaimed, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		t.Error("unrelated handler invoked")
		return nil
	})

	err := d.Publish(context.Background(), New(EventTicketClaimed, "t1", "S1", time.Now(), nil, nil))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 2 || got[0] != "first:t1" || got[1] != "second:t1" {
		t.Fatalf("got %v", got)
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(EventTicketCreated, "t", "", time.Now(), nil, nil)
	b := New(EventTicketCreated, "t", "", time.Now(), nil, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q", a.ID, b.ID)
	}
}
