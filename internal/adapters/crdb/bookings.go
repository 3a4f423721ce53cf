package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

const bookingColumns = `id, event_id, guest_name, email, phone_number, quantity, total_price, ticket_code, verified, booking_date`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.GuestName, &b.Email, &b.PhoneNumber, &b.Quantity, &b.TotalPrice, &b.TicketCode, &b.Verified, &b.BookingDate)
	return b, err
}

func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO bookings (id, event_id, guest_name, email, phone_number, quantity, total_price, ticket_code, verified, booking_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
	`, b.ID, b.EventID, b.GuestName, b.Email, b.PhoneNumber, b.Quantity, b.TotalPrice, b.TicketCode, b.BookingDate)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrTicketCodeTaken, "insert booking %s", b.TicketCode)
	}
	return domain.Storage(err, "insert booking")
}

func (r *Repository) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, err := scanBooking(r.q(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Booking{}, domain.Storage(err, "get booking")
	}
	return b, nil
}

func (r *Repository) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	result, err := r.q(ctx).Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return domain.Storage(err, "delete booking")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *Repository) ListBookingsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE event_id = $1 ORDER BY booking_date DESC, id DESC
	`, eventID)
	if err != nil {
		return nil, domain.Storage(err, "list bookings")
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.Storage(err, "scan booking")
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage(err, "list bookings")
	}
	return bookings, nil
}

func (r *Repository) TicketCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE ticket_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, domain.Storage(err, "check ticket code")
	}
	return exists, nil
}
