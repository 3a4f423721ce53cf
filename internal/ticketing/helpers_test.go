package ticketing_test

import (
	"context"
	"testing"
	"time"

	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
	"github.com/robertarktes/event-ticketing/internal/ticketing/ticketingtest"
)

var testNow = time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store     *ticketingtest.Store
	inventory *ticketing.Inventory
	engine    *ticketing.Engine
	verifier  *ticketing.Verifier
	dashboard *ticketing.Dashboard
}

func newFixture(t *testing.T, opts ...ticketing.EngineOption) *fixture {
	t.Helper()
	store := ticketingtest.NewStore()
	clk := clock.NewFixed(testNow)
	logger := observability.NewLogger("error")
	return &fixture{
		store:     store,
		inventory: ticketing.NewInventory(store, clk, logger),
		engine:    ticketing.NewEngine(store, clk, logger, opts...),
		verifier:  ticketing.NewVerifier(store, logger),
		dashboard: ticketing.NewDashboard(store, clk),
	}
}

func (f *fixture) createEvent(t *testing.T, title string, price float64, seats int) domain.Event {
	t.Helper()
	ev, err := f.inventory.CreateEvent(context.Background(), domain.EventFields{
		Title:      title,
		Date:       testNow.Add(7 * 24 * time.Hour),
		Price:      &price,
		TotalSeats: &seats,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func (f *fixture) checkInvariant(t *testing.T) {
	t.Helper()
	if err := f.store.CheckInvariant(); err != nil {
		t.Fatalf("seat invariant violated: %v", err)
	}
}

func intPtr(v int) *int { return &v }
