package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

const eventColumns = `id, title, description, event_date, price, total_seats, available_seats, image_ref, created_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Price, &e.TotalSeats, &e.AvailableSeats, &e.ImageRef, &e.CreatedAt)
	return e, err
}

func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_date ASC, created_at ASC`)
	if err != nil {
		return nil, domain.Storage(err, "list events")
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, domain.Storage(err, "scan event")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage(err, "list events")
	}
	return events, nil
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

func (r *Repository) GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) getEvent(ctx context.Context, query string, id uuid.UUID) (domain.Event, error) {
	e, err := scanEvent(r.q(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, domain.Storage(err, "get event")
	}
	return e, nil
}

func (r *Repository) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO events (id, title, description, event_date, price, total_seats, available_seats, image_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Title, e.Description, e.Date, e.Price, e.TotalSeats, e.AvailableSeats, e.ImageRef, e.CreatedAt)
	return domain.Storage(err, "insert event")
}

func (r *Repository) UpdateEvent(ctx context.Context, e domain.Event) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE events
		SET title = $2, description = $3, event_date = $4, price = $5,
		    total_seats = $6, available_seats = $7, image_ref = $8
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.Date, e.Price, e.TotalSeats, e.AvailableSeats, e.ImageRef)
	if err != nil {
		return domain.Storage(err, "update event")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *Repository) DeleteEvent(ctx context.Context, id uuid.UUID) (int, error) {
	var removed int
	err := r.q(ctx).QueryRow(ctx, `SELECT count(*) FROM bookings WHERE event_id = $1`, id).Scan(&removed)
	if err != nil {
		return 0, domain.Storage(err, "count bookings")
	}
	result, err := r.q(ctx).Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return 0, domain.Storage(err, "delete event")
	}
	if result.RowsAffected() == 0 {
		return 0, domain.ErrEventNotFound
	}
	return removed, nil
}

func (r *Repository) AdjustAvailableSeats(ctx context.Context, eventID uuid.UUID, delta int) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE events SET available_seats = available_seats + $2
		WHERE id = $1 AND available_seats + $2 >= 0 AND available_seats + $2 <= total_seats
	`, eventID, delta)
	if err != nil {
		return domain.Storage(err, "adjust available seats")
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, eventID); err != nil {
			return err
		}
		return domain.ErrNotEnoughSeats
	}
	return nil
}
