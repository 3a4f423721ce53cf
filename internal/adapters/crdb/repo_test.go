package crdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/testutil"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

var now = time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)

func newRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	pool := testutil.NewCockroachPool(t)
	return crdb.NewRepository(pool), pool
}

func newEvent(t *testing.T, title string, price float64, seats int) domain.Event {
	t.Helper()
	ev, err := domain.NewEvent(domain.EventFields{
		Title:      title,
		Date:       now.Add(48 * time.Hour),
		Price:      &price,
		TotalSeats: &seats,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func insertEvent(t *testing.T, repo *crdb.Repository, ev domain.Event) {
	t.Helper()
	if err := repo.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("create event: %v", err)
	}
}

func checkInvariant(t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) {
	t.Helper()
	var total, available, booked int
	err := pool.QueryRow(context.Background(), `
		SELECT e.total_seats, e.available_seats, COALESCE((SELECT SUM(quantity) FROM bookings WHERE event_id = e.id), 0)
		FROM events e WHERE e.id = $1
	`, eventID).Scan(&total, &available, &booked)
	if err != nil {
		t.Fatal(err)
	}
	if available+booked != total {
		t.Fatalf("available %d + booked %d != total %d", available, booked, total)
	}
}

func TestRepository_EventLifecycle(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Jazz Night", 25.5, 100)
	insertEvent(t, repo, ev)

	got, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Jazz Night" || got.Price != 25.5 || got.AvailableSeats != 100 {
		t.Errorf("unexpected event %+v", got)
	}
	if !got.Date.Equal(ev.Date) {
		t.Errorf("expected date %v, got %v", ev.Date, got.Date)
	}

	got.Title = "Late Jazz Night"
	if err := repo.UpdateEvent(ctx, got); err != nil {
		t.Fatal(err)
	}
	events, err := repo.ListEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Title != "Late Jazz Night" {
		t.Errorf("unexpected list %+v", events)
	}

	if _, err := repo.GetEvent(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.UpdateEvent(ctx, newEvent(t, "ghost", 1, 1)); !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("expected event not found, got %v", err)
	}
}

func TestRepository_AdjustAvailableSeatsGuardsBounds(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Quartet", 10, 3)
	insertEvent(t, repo, ev)

	if err := repo.AdjustAvailableSeats(ctx, ev.ID, -4); !errors.Is(err, domain.ErrInsufficientSeats) {
		t.Errorf("expected insufficient seats, got %v", err)
	}
	if err := repo.AdjustAvailableSeats(ctx, ev.ID, 1); !errors.Is(err, domain.ErrInsufficientSeats) {
		t.Errorf("expected overflow past total to fail, got %v", err)
	}
	if err := repo.AdjustAvailableSeats(ctx, ev.ID, -3); err != nil {
		t.Fatal(err)
	}
	if err := repo.AdjustAvailableSeats(ctx, uuid.New(), -1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRepository_DuplicateTicketCode(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Opera", 40, 10)
	insertEvent(t, repo, ev)

	req := domain.BookingRequest{EventID: ev.ID, GuestName: "Ada", Quantity: 1}
	first := domain.NewBooking(ev, req, "TKT-AAAAAA", now)
	if err := repo.CreateBooking(ctx, first); err != nil {
		t.Fatal(err)
	}
	exists, err := repo.TicketCodeExists(ctx, "TKT-AAAAAA")
	if err != nil || !exists {
		t.Fatalf("expected code to exist, got %v %v", exists, err)
	}

	second := domain.NewBooking(ev, req, "TKT-AAAAAA", now)
	err = repo.WithTx(ctx, func(ctx context.Context) error {
		return repo.CreateBooking(ctx, second)
	})
	if !errors.Is(err, domain.ErrTicketCodeTaken) {
		t.Errorf("expected ticket code taken, got %v", err)
	}
}

func TestRepository_WithTxRollsBack(t *testing.T) {
	repo, pool := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Ballet", 30, 5)
	insertEvent(t, repo, ev)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.AdjustAvailableSeats(ctx, ev.ID, -2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableSeats != 5 {
		t.Errorf("expected rollback to keep 5 seats, got %d", got.AvailableSeats)
	}
	checkInvariant(t, pool, ev.ID)
}

func TestRepository_ConcurrentBookingsNeverOversell(t *testing.T) {
	repo, pool := newRepo(t)
	ctx := context.Background()

	const seats, guests = 5, 20
	ev := newEvent(t, "Sold Out Show", 15, seats)
	insertEvent(t, repo, ev)

	engine := ticketing.NewEngine(repo, clock.NewFixed(now), observability.NewLogger("error"))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "guest", Quantity: 1})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.Is(err, domain.ErrInsufficientSeats), errors.Is(err, domain.ErrStorage):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded > seats {
		t.Fatalf("oversold: %d bookings for %d seats", succeeded, seats)
	}
	got, err := repo.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableSeats != seats-succeeded {
		t.Errorf("expected %d seats left, got %d", seats-succeeded, got.AvailableSeats)
	}
	checkInvariant(t, pool, ev.ID)
}

func TestRepository_VerifyFlipsOnce(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Rock", 50, 10)
	insertEvent(t, repo, ev)
	b := domain.NewBooking(ev, domain.BookingRequest{EventID: ev.ID, GuestName: "Grace", Quantity: 2}, "TKT-ROCK01", now)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}

	flipped, err := repo.MarkTicketVerified(ctx, "TKT-ROCK01")
	if err != nil || !flipped {
		t.Fatalf("expected first scan to flip, got %v %v", flipped, err)
	}
	flipped, err = repo.MarkTicketVerified(ctx, "TKT-ROCK01")
	if err != nil || flipped {
		t.Fatalf("expected second scan not to flip, got %v %v", flipped, err)
	}

	ticket, err := repo.GetTicket(ctx, "TKT-ROCK01")
	if err != nil {
		t.Fatal(err)
	}
	if !ticket.Verified || ticket.EventTitle != "Rock" || ticket.Quantity != 2 {
		t.Errorf("unexpected ticket %+v", ticket)
	}
	if _, err := repo.GetTicket(ctx, "TKT-NOPE00"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRepository_DeleteEventCascades(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := newEvent(t, "Circus", 20, 10)
	insertEvent(t, repo, ev)
	for i, code := range []string{"TKT-CIRC01", "TKT-CIRC02"} {
		b := domain.NewBooking(ev, domain.BookingRequest{EventID: ev.ID, GuestName: "guest", Quantity: i + 1}, code, now)
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := repo.DeleteEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 bookings removed, got %d", removed)
	}
	if exists, _ := repo.TicketCodeExists(ctx, "TKT-CIRC01"); exists {
		t.Error("expected bookings to be deleted with the event")
	}
	if _, err := repo.DeleteEvent(ctx, ev.ID); !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestRepository_Stats(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	stats, err := repo.Stats(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats != (domain.Stats{}) {
		t.Errorf("expected zero stats on empty store, got %+v", stats)
	}

	jazz := newEvent(t, "Jazz", 100, 10)
	rock := newEvent(t, "Rock", 50, 10)
	insertEvent(t, repo, jazz)
	insertEvent(t, repo, rock)

	bookings := []domain.Booking{
		domain.NewBooking(jazz, domain.BookingRequest{EventID: jazz.ID, GuestName: "a", Quantity: 3}, "TKT-STAT01", now),
		domain.NewBooking(rock, domain.BookingRequest{EventID: rock.ID, GuestName: "b", Quantity: 2}, "TKT-STAT02", now.Add(-48*time.Hour)),
	}
	for _, b := range bookings {
		if err := repo.CreateBooking(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	stats, err = repo.Stats(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Stats{TotalRevenue: 400, TodayTickets: 3, TotalEvents: 2, PopularEvent: "Jazz"}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestRepository_OutboxClaimAndPublish(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	msg := domain.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: "event",
		AggregateID:   uuid.New(),
		EventType:     "event.created",
		Payload:       []byte(`{"title":"Jazz"}`),
	}
	msg.DedupeKey = msg.ID.String()
	if err := repo.InsertOutbox(ctx, msg); err != nil {
		t.Fatal(err)
	}

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		records, err := repo.ClaimUnpublished(ctx, 10)
		if err != nil {
			return err
		}
		if len(records) != 1 || records[0].EventType != "event.created" {
			t.Errorf("unexpected records %+v", records)
		}
		for _, rec := range records {
			if err := repo.MarkPublished(ctx, rec.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(ctx context.Context) error {
		records, err := repo.ClaimUnpublished(ctx, 10)
		if len(records) != 0 {
			t.Errorf("expected nothing left to publish, got %d", len(records))
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}
