package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Stats runs the four dashboard aggregates concurrently outside any
// transaction; the figures are a best-effort snapshot.
func (r *Repository) Stats(ctx context.Context, since time.Time) (domain.Stats, error) {
	var stats domain.Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_price), 0)::FLOAT8 FROM bookings`).Scan(&stats.TotalRevenue)
		return domain.Storage(err, "total revenue")
	})
	g.Go(func() error {
		err := r.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(quantity), 0)::INT8 FROM bookings WHERE booking_date >= $1
		`, since).Scan(&stats.TodayTickets)
		return domain.Storage(err, "today tickets")
	})
	g.Go(func() error {
		err := r.pool.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&stats.TotalEvents)
		return domain.Storage(err, "total events")
	})
	g.Go(func() error {
		err := r.pool.QueryRow(ctx, `
			SELECT e.title FROM bookings b JOIN events e ON e.id = b.event_id
			GROUP BY e.id, e.title
			ORDER BY SUM(b.quantity) DESC, e.title ASC
			LIMIT 1
		`).Scan(&stats.PopularEvent)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return domain.Storage(err, "popular event")
	})

	if err := g.Wait(); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}
