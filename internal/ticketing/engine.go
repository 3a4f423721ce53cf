package ticketing

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultCodeAttempts = 5
)

// Engine converts seat requests into reservations. The capacity check, the
// seat decrement and the booking insert always share one transaction.
type Engine struct {
	store        BookingStore
	clock        clock.Clock
	logger       observability.Logger
	codes        domain.TicketCodeGenerator
	codeAttempts int
}

type EngineOption func(*Engine)

// WithTicketCodes replaces the default TKT-XXXXXX generator.
func WithTicketCodes(gen domain.TicketCodeGenerator) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.codes = gen
		}
	}
}

// WithCodeAttempts bounds how many codes are tried before giving up.
func WithCodeAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.codeAttempts = n
		}
	}
}

func NewEngine(store BookingStore, clk clock.Clock, logger observability.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		clock:        clk,
		logger:       logger,
		codes:        domain.RandomTicketCodes(domain.DefaultTicketCodePrefix, domain.DefaultTicketCodeLength),
		codeAttempts: defaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Book(ctx context.Context, req domain.BookingRequest) (domain.Confirmation, error) {
	ctx, span := tracer.Start(ctx, "engine.Book")
	defer span.End()

	req, err := req.Normalize()
	if err != nil {
		observability.BookingsTotal.WithLabelValues("invalid").Inc()
		return domain.Confirmation{}, err
	}
	span.SetAttributes(
		attribute.String("event.id", req.EventID.String()),
		attribute.Int("booking.quantity", req.Quantity),
	)

	var confirmation domain.Confirmation
	for attempt := 1; ; attempt++ {
		confirmation, err = e.book(ctx, req)
		// A unique-constraint hit aborts the whole transaction, so the
		// retry starts from the event lock again.
		if errors.Is(err, domain.ErrTicketCodeTaken) && attempt < e.codeAttempts {
			e.logger.WithField("attempt", attempt).Warn("ticket code collision on insert, retrying booking")
			continue
		}
		break
	}

	switch {
	case err == nil:
		observability.BookingsTotal.WithLabelValues("success").Inc()
		observability.SeatsSold.Add(float64(req.Quantity))
	case errors.Is(err, domain.ErrInsufficientSeats):
		observability.BookingsTotal.WithLabelValues("sold_out").Inc()
	case errors.Is(err, domain.ErrNotFound):
		observability.BookingsTotal.WithLabelValues("not_found").Inc()
	default:
		observability.BookingsTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		return domain.Confirmation{}, err
	}

	e.logger.WithField("booking_id", confirmation.BookingID).
		WithField("event_id", req.EventID).
		WithField("quantity", req.Quantity).
		Info("booking created")
	return confirmation, nil
}

func (e *Engine) book(ctx context.Context, req domain.BookingRequest) (domain.Confirmation, error) {
	var confirmation domain.Confirmation
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := e.store.GetEventForUpdate(ctx, req.EventID)
		if err != nil {
			return err
		}
		if req.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
		if req.Quantity > ev.AvailableSeats {
			return domain.ErrNotEnoughSeats
		}

		code, err := e.uniqueCode(ctx)
		if err != nil {
			return err
		}
		booking := domain.NewBooking(ev, req, code, e.clock.Now())

		if err := e.store.AdjustAvailableSeats(ctx, ev.ID, -booking.Quantity); err != nil {
			return err
		}
		if err := e.store.CreateBooking(ctx, booking); err != nil {
			return err
		}

		confirmation = booking.Confirmation(ev.Title)
		msg, err := newOutboxMessage("booking", booking.ID, "booking.created", map[string]interface{}{
			"booking_id":  booking.ID,
			"event_id":    ev.ID,
			"guest_name":  booking.GuestName,
			"quantity":    booking.Quantity,
			"total_price": booking.TotalPrice,
			"ticket_code": booking.TicketCode,
		})
		if err != nil {
			return err
		}
		return e.store.InsertOutbox(ctx, msg)
	})
	return confirmation, err
}

func (e *Engine) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < e.codeAttempts; i++ {
		code, err := e.codes()
		if err != nil {
			return "", err
		}
		exists, err := e.store.TicketCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.Wrapf(domain.ErrTicketCodeTaken, "no free ticket code after %d attempts", e.codeAttempts)
}

// CancelBooking deletes the booking and returns its seats to the event.
func (e *Engine) CancelBooking(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "engine.CancelBooking")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id.String()))

	var restored int
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		b, err := e.store.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := e.store.GetEventForUpdate(ctx, b.EventID); err != nil {
			return err
		}
		if err := e.store.AdjustAvailableSeats(ctx, b.EventID, b.Quantity); err != nil {
			return err
		}
		if err := e.store.DeleteBooking(ctx, id); err != nil {
			return err
		}
		restored = b.Quantity

		msg, err := newOutboxMessage("booking", b.ID, "booking.cancelled", map[string]interface{}{
			"booking_id":     b.ID,
			"event_id":       b.EventID,
			"restored_seats": b.Quantity,
			"ticket_code":    b.TicketCode,
		})
		if err != nil {
			return err
		}
		return e.store.InsertOutbox(ctx, msg)
	})
	if err != nil {
		return 0, err
	}
	e.logger.WithField("booking_id", id).WithField("restored_seats", restored).Info("booking cancelled")
	return restored, nil
}

// ListBookings returns the bookings of an event, newest first.
func (e *Engine) ListBookings(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	return e.store.ListBookingsByEvent(ctx, eventID)
}
