package ticketing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

func TestEngine_Book(t *testing.T) {
	ctx := context.Background()

	t.Run("books seats and snapshots price", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 500, 10)

		conf, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Alice", Quantity: 2})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if conf.TotalPrice != 1000 || conf.Quantity != 2 || conf.EventTitle != "Gala" || conf.GuestName != "Alice" {
			t.Fatalf("unexpected confirmation: %+v", conf)
		}
		if conf.TicketCode == "" || conf.BookingID == uuid.Nil {
			t.Fatalf("expected ticket code and booking id, got %+v", conf)
		}

		got, err := f.inventory.GetEvent(ctx, ev.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.AvailableSeats != 8 {
			t.Fatalf("expected 8 seats left, got %d", got.AvailableSeats)
		}

		bookings, err := f.engine.ListBookings(ctx, ev.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(bookings) != 1 || bookings[0].ID != conf.BookingID || bookings[0].TotalPrice != 1000 {
			t.Fatalf("expected the booking to be listed, got %+v", bookings)
		}

		// Price edits do not touch existing bookings.
		newPrice := 900.0
		if _, _, err := f.inventory.UpdateEvent(ctx, ev.ID, domain.EventPatch{Price: &newPrice}); err != nil {
			t.Fatal(err)
		}
		bookings, _ = f.engine.ListBookings(ctx, ev.ID)
		if bookings[0].TotalPrice != 1000 {
			t.Fatalf("expected snapshotted price 1000, got %v", bookings[0].TotalPrice)
		}

		outbox := f.store.Outbox()
		if last := outbox[len(outbox)-1]; last.EventType != "event.updated" {
			t.Fatalf("expected event.updated last in outbox, got %s", last.EventType)
		}
		f.checkInvariant(t)
	})

	t.Run("unknown event", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: uuid.New(), GuestName: "Alice", Quantity: 1})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("not enough seats leaves state unchanged", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 10, 3)

		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Bob", Quantity: 4})
		if !errors.Is(err, domain.ErrInsufficientSeats) {
			t.Fatalf("expected ErrInsufficientSeats, got %v", err)
		}
		if err.Error() != "not enough seats available" {
			t.Fatalf("expected readable reason, got %q", err.Error())
		}
		got, _ := f.inventory.GetEvent(ctx, ev.ID)
		if got.AvailableSeats != 3 {
			t.Fatalf("expected 3 seats, got %d", got.AvailableSeats)
		}
		f.checkInvariant(t)
	})

	t.Run("zero quantity is a capacity error", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 10, 3)
		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Bob", Quantity: 0})
		if !errors.Is(err, domain.ErrInsufficientSeats) {
			t.Fatalf("expected ErrInsufficientSeats, got %v", err)
		}
	})

	t.Run("unknown event wins over zero quantity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: uuid.New(), GuestName: "Bob", Quantity: 0})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("failed insert rolls back the decrement", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 10, 5)
		f.store.FailCreateBooking = domain.Storage(errors.New("disk full"), "insert booking")

		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Bob", Quantity: 2})
		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
		got, _ := f.inventory.GetEvent(ctx, ev.ID)
		if got.AvailableSeats != 5 {
			t.Fatalf("expected decrement rolled back, got %d available", got.AvailableSeats)
		}
		for _, msg := range f.store.Outbox() {
			if msg.EventType == "booking.created" {
				t.Fatalf("expected no booking.created message after rollback")
			}
		}
		f.checkInvariant(t)
	})

	t.Run("retries ticket code collisions", func(t *testing.T) {
		codes := []string{"TKT-AAAAAA", "TKT-AAAAAA", "TKT-BBBBBB"}
		var mu sync.Mutex
		gen := func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			c := codes[0]
			if len(codes) > 1 {
				codes = codes[1:]
			}
			return c, nil
		}
		f := newFixture(t, ticketing.WithTicketCodes(gen))
		ev := f.createEvent(t, "Gala", 10, 5)

		first, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "A", Quantity: 1})
		if err != nil {
			t.Fatal(err)
		}
		second, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "B", Quantity: 1})
		if err != nil {
			t.Fatalf("expected collision to be retried, got %v", err)
		}
		if first.TicketCode != "TKT-AAAAAA" || second.TicketCode != "TKT-BBBBBB" {
			t.Fatalf("unexpected codes %q and %q", first.TicketCode, second.TicketCode)
		}
		f.checkInvariant(t)
	})

	t.Run("retries unique violations raised at insert", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 10, 5)
		f.store.CodeCollisions = 2

		if _, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "A", Quantity: 2}); err != nil {
			t.Fatalf("expected booking after retries, got %v", err)
		}
		got, _ := f.inventory.GetEvent(ctx, ev.ID)
		if got.AvailableSeats != 3 {
			t.Fatalf("expected exactly one decrement, got %d available", got.AvailableSeats)
		}
		f.checkInvariant(t)
	})

	t.Run("gives up when codes keep colliding", func(t *testing.T) {
		gen := func() (string, error) { return "TKT-SAMEXX", nil }
		f := newFixture(t, ticketing.WithTicketCodes(gen), ticketing.WithCodeAttempts(3))
		ev := f.createEvent(t, "Gala", 10, 5)

		if _, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "A", Quantity: 1}); err != nil {
			t.Fatal(err)
		}
		_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "B", Quantity: 1})
		if !errors.Is(err, domain.ErrTicketCodeTaken) {
			t.Fatalf("expected ErrTicketCodeTaken, got %v", err)
		}
		f.checkInvariant(t)
	})
}

func TestEngine_ConcurrentBookingsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const seats, requests = 7, 40
	ev := f.createEvent(t, "Final", 25, seats)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		soldOut   int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Guest", Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInsufficientSeats):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != seats || soldOut != requests-seats {
		t.Fatalf("expected %d successes and %d sold out, got %d and %d", seats, requests-seats, successes, soldOut)
	}
	got, _ := f.inventory.GetEvent(ctx, ev.ID)
	if got.AvailableSeats != 0 {
		t.Fatalf("expected 0 seats left, got %d", got.AvailableSeats)
	}
	f.checkInvariant(t)
}

func TestEngine_CancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("sell out, reject, cancel, restore", func(t *testing.T) {
		f := newFixture(t)
		ev := f.createEvent(t, "Gala", 100, 10)

		conf, err := f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Alice", Quantity: 10})
		if err != nil {
			t.Fatal(err)
		}
		got, _ := f.inventory.GetEvent(ctx, ev.ID)
		if got.AvailableSeats != 0 {
			t.Fatalf("expected sold out, got %d", got.AvailableSeats)
		}

		_, err = f.engine.Book(ctx, domain.BookingRequest{EventID: ev.ID, GuestName: "Bob", Quantity: 1})
		if !errors.Is(err, domain.ErrInsufficientSeats) {
			t.Fatalf("expected ErrInsufficientSeats, got %v", err)
		}

		restored, err := f.engine.CancelBooking(ctx, conf.BookingID)
		if err != nil {
			t.Fatal(err)
		}
		if restored != 10 {
			t.Fatalf("expected 10 restored seats, got %d", restored)
		}
		got, _ = f.inventory.GetEvent(ctx, ev.ID)
		if got.AvailableSeats != 10 {
			t.Fatalf("expected 10 seats after cancel, got %d", got.AvailableSeats)
		}
		bookings, _ := f.engine.ListBookings(ctx, ev.ID)
		if len(bookings) != 0 {
			t.Fatalf("expected no bookings, got %d", len(bookings))
		}
		f.checkInvariant(t)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.CancelBooking(ctx, uuid.New())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
