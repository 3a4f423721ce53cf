// Package ticketing holds the seat-inventory booking core: the event
// inventory, the booking engine, the ticket verifier and the admin
// dashboard. All state lives behind the store interfaces below; every
// inventory change runs inside Store.WithTx.
package ticketing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

// Transactor runs fn in a single serializable transaction. Store calls made
// with the context handed to fn join that transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventStore interface {
	Transactor
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	// GetEventForUpdate locks the event row until the transaction ends.
	GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error)
	CreateEvent(ctx context.Context, e domain.Event) error
	UpdateEvent(ctx context.Context, e domain.Event) error
	// DeleteEvent removes the event and its bookings, returning how many
	// bookings went with it.
	DeleteEvent(ctx context.Context, id uuid.UUID) (int, error)
	InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error
}

type BookingStore interface {
	EventStore
	// AdjustAvailableSeats adds delta to available_seats, failing with
	// domain.ErrNotEnoughSeats if the result leaves [0, total_seats].
	AdjustAvailableSeats(ctx context.Context, eventID uuid.UUID, delta int) error
	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	ListBookingsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error)
	TicketCodeExists(ctx context.Context, code string) (bool, error)
}

type TicketStore interface {
	Transactor
	// MarkTicketVerified flips verified from false to true and reports
	// whether this call did the flip.
	MarkTicketVerified(ctx context.Context, code string) (bool, error)
	GetTicket(ctx context.Context, code string) (domain.Ticket, error)
	InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error
}

type StatsStore interface {
	Stats(ctx context.Context, since time.Time) (domain.Stats, error)
}

func newOutboxMessage(aggregateType string, aggregateID uuid.UUID, eventType string, payload interface{}) (domain.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	id := uuid.New()
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		DedupeKey:     id.String(),
	}, nil
}
