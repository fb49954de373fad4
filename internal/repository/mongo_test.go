package repository

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsOpenPerUserViolation(t *testing.T) {
	dup := func(msg string) error {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: msg}}}
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "open per user index", err: dup(`E11000 duplicate key error collection: tickets index: one_open_per_user dup key: { user_id: "U1" }`), want: true},
		{name: "wrapped", err: fmt.Errorf("insert: %w", dup("E11000 index: one_open_per_user dup key")), want: true},
		{name: "primary key", err: dup(`E11000 duplicate key error collection: tickets index: _id_ dup key: { _id: "x" }`)},
		{name: "ticket number", err: dup(`E11000 duplicate key error collection: tickets index: ticket_number dup key: { ticket_number: 4 }`)},
		{name: "other write error", err: mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121, Message: "one_open_per_user"}}}},
		{name: "plain error", err: errors.New("one_open_per_user")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOpenPerUserViolation(tt.err); got != tt.want {
				t.Fatalf("isOpenPerUserViolation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreNowMillisecondResolution(t *testing.T) {
	now := storeNow()
	if now.Nanosecond()%1_000_000 != 0 {
		t.Fatalf("storeNow = %v carries sub-millisecond precision", now)
	}
	if now.Location().String() != "UTC" {
		t.Fatalf("storeNow location = %v", now.Location())
	}
}
