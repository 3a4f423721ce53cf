// Package ticketingtest provides an in-memory store for exercising the
// ticketing services without a database. Transactions are serialized by a
// single mutex and roll back by restoring a snapshot.
package ticketingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

type txKey struct{}

type state struct {
	events   map[uuid.UUID]domain.Event
	bookings map[uuid.UUID]domain.Booking
	outbox   []domain.OutboxMessage
}

func (s state) clone() state {
	c := state{
		events:   make(map[uuid.UUID]domain.Event, len(s.events)),
		bookings: make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		outbox:   append([]domain.OutboxMessage(nil), s.outbox...),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st state

	// FailCreateBooking, when set, is returned by the next CreateBooking.
	FailCreateBooking error
	// CodeCollisions makes the next n CreateBooking calls fail with
	// domain.ErrTicketCodeTaken, as a unique-constraint race would.
	CodeCollisions int
	// PingErr is returned by Ping.
	PingErr error
}

func NewStore() *Store {
	return &Store{st: state{
		events:   make(map[uuid.UUID]domain.Event),
		bookings: make(map[uuid.UUID]domain.Booking),
	}}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// lock acquires the store mutex unless ctx already holds it through WithTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	defer s.lock(ctx)()
	out := make([]domain.Event, 0, len(s.st.events))
	for _, e := range s.st.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	defer s.lock(ctx)()
	e, ok := s.st.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, nil
}

func (s *Store) GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return s.GetEvent(ctx, id)
}

func (s *Store) CreateEvent(ctx context.Context, e domain.Event) error {
	defer s.lock(ctx)()
	s.st.events[e.ID] = e
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, e domain.Event) error {
	defer s.lock(ctx)()
	if _, ok := s.st.events[e.ID]; !ok {
		return domain.ErrEventNotFound
	}
	s.st.events[e.ID] = e
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) (int, error) {
	defer s.lock(ctx)()
	if _, ok := s.st.events[id]; !ok {
		return 0, domain.ErrEventNotFound
	}
	delete(s.st.events, id)
	removed := 0
	for bid, b := range s.st.bookings {
		if b.EventID == id {
			delete(s.st.bookings, bid)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) AdjustAvailableSeats(ctx context.Context, eventID uuid.UUID, delta int) error {
	defer s.lock(ctx)()
	e, ok := s.st.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	next := e.AvailableSeats + delta
	if next < 0 || next > e.TotalSeats {
		return domain.ErrNotEnoughSeats
	}
	e.AvailableSeats = next
	s.st.events[eventID] = e
	return nil
}

func (s *Store) CreateBooking(ctx context.Context, b domain.Booking) error {
	defer s.lock(ctx)()
	if s.FailCreateBooking != nil {
		err := s.FailCreateBooking
		s.FailCreateBooking = nil
		return err
	}
	if s.CodeCollisions > 0 {
		s.CodeCollisions--
		return errors.Wrap(domain.ErrTicketCodeTaken, "insert booking")
	}
	for _, existing := range s.st.bookings {
		if existing.TicketCode == b.TicketCode {
			return errors.Wrap(domain.ErrTicketCodeTaken, "insert booking")
		}
	}
	if _, ok := s.st.events[b.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	s.st.bookings[b.ID] = b
	return nil
}

func (s *Store) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	defer s.lock(ctx)()
	b, ok := s.st.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	defer s.lock(ctx)()
	if _, ok := s.st.bookings[id]; !ok {
		return domain.ErrBookingNotFound
	}
	delete(s.st.bookings, id)
	return nil
}

func (s *Store) ListBookingsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	defer s.lock(ctx)()
	var out []domain.Booking
	for _, b := range s.st.bookings {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.After(out[j].BookingDate) })
	return out, nil
}

func (s *Store) TicketCodeExists(ctx context.Context, code string) (bool, error) {
	defer s.lock(ctx)()
	for _, b := range s.st.bookings {
		if b.TicketCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkTicketVerified(ctx context.Context, code string) (bool, error) {
	defer s.lock(ctx)()
	for id, b := range s.st.bookings {
		if b.TicketCode == code && !b.Verified {
			b.Verified = true
			s.st.bookings[id] = b
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetTicket(ctx context.Context, code string) (domain.Ticket, error) {
	defer s.lock(ctx)()
	for _, b := range s.st.bookings {
		if b.TicketCode != code {
			continue
		}
		e := s.st.events[b.EventID]
		return domain.Ticket{
			BookingID:  b.ID,
			TicketCode: b.TicketCode,
			GuestName:  b.GuestName,
			EventTitle: e.Title,
			EventDate:  e.Date,
			Quantity:   b.Quantity,
			Verified:   b.Verified,
		}, nil
	}
	return domain.Ticket{}, domain.ErrBookingNotFound
}

func (s *Store) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	defer s.lock(ctx)()
	s.st.outbox = append(s.st.outbox, msg)
	return nil
}

func (s *Store) Stats(ctx context.Context, since time.Time) (domain.Stats, error) {
	defer s.lock(ctx)()
	var st domain.Stats
	st.TotalEvents = len(s.st.events)
	sold := make(map[uuid.UUID]int)
	for _, b := range s.st.bookings {
		st.TotalRevenue += b.TotalPrice
		if !b.BookingDate.Before(since) {
			st.TodayTickets += b.Quantity
		}
		sold[b.EventID] += b.Quantity
	}
	best := 0
	for id, n := range sold {
		title := s.st.events[id].Title
		if n > best || (n == best && title < st.PopularEvent) {
			best = n
			st.PopularEvent = title
		}
	}
	return st, nil
}

// Outbox returns the committed outbox messages in insertion order.
func (s *Store) Outbox() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxMessage(nil), s.st.outbox...)
}

// CheckInvariant verifies available + booked == total for every event.
func (s *Store) CheckInvariant() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	booked := make(map[uuid.UUID]int)
	for _, b := range s.st.bookings {
		booked[b.EventID] += b.Quantity
	}
	for id, e := range s.st.events {
		if e.AvailableSeats < 0 || e.AvailableSeats > e.TotalSeats {
			return errors.Newf("event %s: available %d outside [0, %d]", id, e.AvailableSeats, e.TotalSeats)
		}
		if e.AvailableSeats+booked[id] != e.TotalSeats {
			return errors.Newf("event %s: available %d + booked %d != total %d", id, e.AvailableSeats, booked[id], e.TotalSeats)
		}
	}
	return nil
}
