package domain

import "github.com/cockroachdb/errors"

// Error kinds. Concrete errors are attached to a kind with errors.Mark so
// callers can branch with errors.Is while the message stays specific.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientSeats    = errors.New("insufficient seats")
	ErrStorage              = errors.New("storage failure")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrTicketCodeTaken      = errors.New("ticket code taken")
	ErrSchemaMismatch       = errors.New("schema mismatch")
)

var (
	ErrEventNotFound     = errors.Mark(errors.New("event not found"), ErrNotFound)
	ErrBookingNotFound   = errors.Mark(errors.New("booking not found"), ErrNotFound)
	ErrNotEnoughSeats    = errors.Mark(errors.New("not enough seats available"), ErrInsufficientSeats)
	ErrInvalidQuantity   = errors.Mark(errors.New("quantity must be at least 1"), ErrInsufficientSeats)
	ErrCapacityBelowSold = errors.Mark(errors.New("total seats cannot be less than seats already sold"), ErrInsufficientSeats)
)

// Invalid returns a validation error with the given reason.
func Invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}

// Storage marks err as a retryable storage failure.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrStorage)
}
