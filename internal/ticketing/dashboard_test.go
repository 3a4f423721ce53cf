package ticketing_test

import (
	"context"
	"testing"

	"github.com/robertarktes/event-ticketing/internal/domain"
)

func TestDashboard_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty, err := f.dashboard.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if empty != (domain.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", empty)
	}

	gala := f.createEvent(t, "Gala", 500, 10)
	jazz := f.createEvent(t, "Jazz", 100, 10)
	f.createEvent(t, "Quiet", 10, 10)

	book := func(id domain.Event, qty int) {
		t.Helper()
		if _, err := f.engine.Book(ctx, domain.BookingRequest{EventID: id.ID, GuestName: "G", Quantity: qty}); err != nil {
			t.Fatal(err)
		}
	}
	book(gala, 2)
	book(jazz, 3)
	book(jazz, 1)

	stats, err := f.dashboard.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Stats{TotalRevenue: 1400, TodayTickets: 6, TotalEvents: 3, PopularEvent: "Jazz"}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}
