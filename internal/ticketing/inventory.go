package ticketing

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ticketing")

// Inventory owns event records and their seat counters.
type Inventory struct {
	store  EventStore
	clock  clock.Clock
	logger observability.Logger
}

func NewInventory(store EventStore, clk clock.Clock, logger observability.Logger) *Inventory {
	return &Inventory{store: store, clock: clk, logger: logger}
}

// ListEvents returns all events, soonest first.
func (i *Inventory) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return i.store.ListEvents(ctx)
}

func (i *Inventory) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return i.store.GetEvent(ctx, id)
}

func (i *Inventory) CreateEvent(ctx context.Context, fields domain.EventFields) (domain.Event, error) {
	ctx, span := tracer.Start(ctx, "inventory.CreateEvent")
	defer span.End()

	ev, err := domain.NewEvent(fields, i.clock.Now())
	if err != nil {
		return domain.Event{}, err
	}
	span.SetAttributes(attribute.String("event.id", ev.ID.String()))

	err = i.store.WithTx(ctx, func(ctx context.Context) error {
		if err := i.store.CreateEvent(ctx, ev); err != nil {
			return err
		}
		return i.enqueue(ctx, ev.ID, "event.created", ev)
	})
	if err != nil {
		return domain.Event{}, err
	}
	i.logger.WithField("event_id", ev.ID).WithField("total_seats", ev.TotalSeats).Info("event created")
	return ev, nil
}

// UpdateEvent applies patch under the event row lock. It returns the
// updated event and the number of fields that changed.
func (i *Inventory) UpdateEvent(ctx context.Context, id uuid.UUID, patch domain.EventPatch) (domain.Event, int, error) {
	ctx, span := tracer.Start(ctx, "inventory.UpdateEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id.String()))

	if err := patch.Validate(); err != nil {
		return domain.Event{}, 0, err
	}

	var (
		updated domain.Event
		changes int
	)
	err := i.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := i.store.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated, changes, err = patch.Apply(current)
		if err != nil {
			return err
		}
		if changes == 0 {
			return nil
		}
		if err := i.store.UpdateEvent(ctx, updated); err != nil {
			return err
		}
		return i.enqueue(ctx, id, "event.updated", updated)
	})
	if err != nil {
		return domain.Event{}, 0, err
	}
	i.logger.WithField("event_id", id).WithField("changes", changes).Info("event updated")
	return updated, changes, nil
}

// DeleteEvent removes the event together with its bookings and returns the
// number of bookings removed.
func (i *Inventory) DeleteEvent(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "inventory.DeleteEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id.String()))

	var removed int
	err := i.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := i.store.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		removed, err = i.store.DeleteEvent(ctx, id)
		if err != nil {
			return err
		}
		return i.enqueue(ctx, id, "event.deleted", map[string]interface{}{
			"event_id":         id,
			"title":            ev.Title,
			"bookings_removed": removed,
		})
	})
	if err != nil {
		return 0, err
	}
	i.logger.WithField("event_id", id).WithField("bookings_removed", removed).Info("event deleted")
	return removed, nil
}

func (i *Inventory) enqueue(ctx context.Context, id uuid.UUID, eventType string, payload interface{}) error {
	msg, err := newOutboxMessage("event", id, eventType, payload)
	if err != nil {
		return err
	}
	return i.store.InsertOutbox(ctx, msg)
}
