package ticketing

import (
	"context"
	"time"

	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

type Dashboard struct {
	store StatsStore
	clock clock.Clock
}

func NewDashboard(store StatsStore, clk clock.Clock) *Dashboard {
	return &Dashboard{store: store, clock: clk}
}

// Stats aggregates revenue, today's tickets (since UTC midnight), event
// count and the best-selling event.
func (d *Dashboard) Stats(ctx context.Context) (domain.Stats, error) {
	now := d.clock.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return d.store.Stats(ctx, midnight)
}
