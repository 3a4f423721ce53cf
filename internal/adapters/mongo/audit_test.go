package mongo_test

import (
	"context"
	"testing"
	"time"

	mongoadapter "github.com/robertarktes/event-ticketing/internal/adapters/mongo"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAuditLogger_RecordIsIdempotent(t *testing.T) {
	db := testutil.NewMongoDatabase(t, "tickets_test")
	ctx := context.Background()

	audit := mongoadapter.NewAuditLogger(db, observability.NewLogger("error"))
	if err := audit.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	entry := mongoadapter.AuditLog{
		ID:            "msg-1",
		Action:        "booking.created",
		AggregateType: "booking",
		AggregateID:   "b-1",
		OccurredAt:    at,
		RecordedAt:    at,
		Data:          bson.M{"quantity": 2},
	}

	stored, err := audit.Record(ctx, entry)
	if err != nil || !stored {
		t.Fatalf("expected first record to be stored, got %v %v", stored, err)
	}
	stored, err = audit.Record(ctx, entry)
	if err != nil || stored {
		t.Fatalf("expected duplicate to be ignored, got %v %v", stored, err)
	}

	later := entry
	later.ID = "msg-2"
	later.Action = "ticket.verified"
	later.OccurredAt = at.Add(time.Hour)
	if _, err := audit.Record(ctx, later); err != nil {
		t.Fatal(err)
	}

	history, err := audit.History(ctx, "b-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Action != "booking.created" || history[1].Action != "ticket.verified" {
		t.Errorf("unexpected history %+v", history)
	}
}
