package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

// MarkTicketVerified flips the flag with a single conditional update, so
// of two concurrent scans only one sees a row affected.
func (r *Repository) MarkTicketVerified(ctx context.Context, code string) (bool, error) {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE bookings SET verified = true WHERE ticket_code = $1 AND verified = false
	`, code)
	if err != nil {
		return false, domain.Storage(err, "mark ticket verified")
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) GetTicket(ctx context.Context, code string) (domain.Ticket, error) {
	var t domain.Ticket
	err := r.q(ctx).QueryRow(ctx, `
		SELECT b.id, b.ticket_code, b.guest_name, e.title, e.event_date, b.quantity, b.verified
		FROM bookings b JOIN events e ON e.id = b.event_id
		WHERE b.ticket_code = $1
	`, code).Scan(&t.BookingID, &t.TicketCode, &t.GuestName, &t.EventTitle, &t.EventDate, &t.Quantity, &t.Verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticket{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Ticket{}, domain.Storage(err, "get ticket")
	}
	return t, nil
}
