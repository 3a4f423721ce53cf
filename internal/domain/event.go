package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventFields are the admin-supplied attributes of a new event. Pointer
// fields distinguish "missing" from zero.
type EventFields struct {
	Title       string
	Description string
	Date        time.Time
	Price       *float64
	TotalSeats  *int
	ImageRef    string
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Price       *float64
	TotalSeats  *int
	ImageRef    *string
}

func NewEvent(f EventFields, now time.Time) (Event, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return Event{}, Invalid("title is required")
	}
	if f.Date.IsZero() {
		return Event{}, Invalid("date is required")
	}
	if f.TotalSeats == nil {
		return Event{}, Invalid("total_seats is required")
	}
	if *f.TotalSeats < 0 {
		return Event{}, Invalid("total_seats must not be negative")
	}
	price := 0.0
	if f.Price != nil {
		price = *f.Price
	}
	if price < 0 {
		return Event{}, Invalid("price must not be negative")
	}
	return Event{
		ID:             uuid.New(),
		Title:          title,
		Description:    f.Description,
		Date:           f.Date.UTC(),
		Price:          price,
		TotalSeats:     *f.TotalSeats,
		AvailableSeats: *f.TotalSeats,
		ImageRef:       f.ImageRef,
		CreatedAt:      now,
	}, nil
}

// SeatsSold is the number of seats held by live bookings.
func (e Event) SeatsSold() int {
	return e.TotalSeats - e.AvailableSeats
}

// Validate checks the patch without looking at the current event.
func (p EventPatch) Validate() error {
	if p.Title == nil && p.Description == nil && p.Date == nil && p.Price == nil && p.TotalSeats == nil && p.ImageRef == nil {
		return Invalid("no fields to update")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Invalid("title must not be empty")
	}
	if p.Date != nil && p.Date.IsZero() {
		return Invalid("date must not be empty")
	}
	if p.Price != nil && *p.Price < 0 {
		return Invalid("price must not be negative")
	}
	if p.TotalSeats != nil && *p.TotalSeats < 0 {
		return Invalid("total_seats must not be negative")
	}
	return nil
}

// Apply returns the patched event and the number of fields whose value
// changed. Available seats follow total seats so that the sold count is
// preserved; shrinking below the sold count fails with ErrCapacityBelowSold.
func (p EventPatch) Apply(e Event) (Event, int, error) {
	if err := p.Validate(); err != nil {
		return e, 0, err
	}
	out := e
	changes := 0
	if p.Title != nil && strings.TrimSpace(*p.Title) != e.Title {
		out.Title = strings.TrimSpace(*p.Title)
		changes++
	}
	if p.Description != nil && *p.Description != e.Description {
		out.Description = *p.Description
		changes++
	}
	if p.Date != nil && !p.Date.Equal(e.Date) {
		out.Date = p.Date.UTC()
		changes++
	}
	if p.Price != nil && *p.Price != e.Price {
		out.Price = *p.Price
		changes++
	}
	if p.ImageRef != nil && *p.ImageRef != e.ImageRef {
		out.ImageRef = *p.ImageRef
		changes++
	}
	if p.TotalSeats != nil && *p.TotalSeats != e.TotalSeats {
		available := *p.TotalSeats - e.SeatsSold()
		if available < 0 {
			return e, 0, ErrCapacityBelowSold
		}
		out.TotalSeats = *p.TotalSeats
		out.AvailableSeats = available
		changes++
	}
	return out, changes, nil
}
