package domain

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Date           time.Time `json:"date"`
	Price          float64   `json:"price"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	ImageRef       string    `json:"image_ref"`
	CreatedAt      time.Time `json:"created_at"`
}

type Booking struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	GuestName   string    `json:"guest_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Quantity    int       `json:"quantity"`
	TotalPrice  float64   `json:"total_price"`
	TicketCode  string    `json:"ticket_code"`
	Verified    bool      `json:"verified"`
	BookingDate time.Time `json:"booking_date"`
}

// Confirmation is what a guest receives after a successful booking.
type Confirmation struct {
	BookingID   uuid.UUID `json:"booking_id"`
	EventTitle  string    `json:"event"`
	GuestName   string    `json:"guest_name"`
	Quantity    int       `json:"seats"`
	TotalPrice  float64   `json:"total"`
	TicketCode  string    `json:"ticket_code"`
	BookingDate time.Time `json:"booking_date"`
}

// Ticket is a booking joined with the event it admits to.
type Ticket struct {
	BookingID  uuid.UUID `json:"booking_id"`
	TicketCode string    `json:"ticket_code"`
	GuestName  string    `json:"guest_name"`
	EventTitle string    `json:"event_title"`
	EventDate  time.Time `json:"event_date"`
	Quantity   int       `json:"quantity"`
	Verified   bool      `json:"verified"`
}

// Verification reports a door scan. Ticket.Verified holds the state before
// the scan: false means first scan.
type Verification struct {
	Valid  bool    `json:"valid"`
	Ticket *Ticket `json:"data,omitempty"`
}

type Stats struct {
	TotalRevenue float64 `json:"total_revenue"`
	TodayTickets int     `json:"today_tickets"`
	TotalEvents  int     `json:"total_events"`
	PopularEvent string  `json:"popular_event"`
}

// OutboxMessage is a domain event written in the same transaction as the
// state change it describes.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
}
