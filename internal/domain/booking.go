package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingRequest struct {
	EventID     uuid.UUID
	GuestName   string
	Quantity    int
	Email       string
	PhoneNumber string
}

// Normalize trims the request and rejects malformed input before any store
// access. Quantity is checked by the engine once the event is known, so an
// unknown event reports not found first.
func (r BookingRequest) Normalize() (BookingRequest, error) {
	r.GuestName = strings.TrimSpace(r.GuestName)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	if r.EventID == uuid.Nil {
		return r, Invalid("event_id is required")
	}
	if r.GuestName == "" {
		return r, Invalid("guest_name is required")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return r, Invalid("email %q is not a valid address", r.Email)
		}
	}
	return r, nil
}

// NewBooking snapshots the event price into the booking total.
func NewBooking(e Event, r BookingRequest, code string, now time.Time) Booking {
	return Booking{
		ID:          uuid.New(),
		EventID:     e.ID,
		GuestName:   r.GuestName,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
		Quantity:    r.Quantity,
		TotalPrice:  float64(r.Quantity) * e.Price,
		TicketCode:  code,
		BookingDate: now,
	}
}

func (b Booking) Confirmation(eventTitle string) Confirmation {
	return Confirmation{
		BookingID:   b.ID,
		EventTitle:  eventTitle,
		GuestName:   b.GuestName,
		Quantity:    b.Quantity,
		TotalPrice:  b.TotalPrice,
		TicketCode:  b.TicketCode,
		BookingDate: b.BookingDate,
	}
}
