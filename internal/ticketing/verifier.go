package ticketing

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Verifier answers door scans. An unknown code is a normal outcome, not an
// error.
type Verifier struct {
	store  TicketStore
	logger observability.Logger
}

func NewVerifier(store TicketStore, logger observability.Logger) *Verifier {
	return &Verifier{store: store, logger: logger}
}

func (v *Verifier) Verify(ctx context.Context, code string) (domain.Verification, error) {
	ctx, span := tracer.Start(ctx, "verifier.Verify")
	defer span.End()

	code = domain.NormalizeTicketCode(code)
	if code == "" {
		observability.VerificationsTotal.WithLabelValues("invalid").Inc()
		return domain.Verification{Valid: false}, nil
	}
	span.SetAttributes(attribute.String("ticket.code", code))

	var ticket domain.Ticket
	var firstScan bool
	err := v.store.WithTx(ctx, func(ctx context.Context) error {
		flipped, err := v.store.MarkTicketVerified(ctx, code)
		if err != nil {
			return err
		}
		ticket, err = v.store.GetTicket(ctx, code)
		if err != nil {
			return err
		}
		firstScan = flipped
		if !flipped {
			return nil
		}
		msg, err := newOutboxMessage("booking", ticket.BookingID, "ticket.verified", map[string]interface{}{
			"booking_id":  ticket.BookingID,
			"ticket_code": ticket.TicketCode,
			"quantity":    ticket.Quantity,
		})
		if err != nil {
			return err
		}
		return v.store.InsertOutbox(ctx, msg)
	})
	if errors.Is(err, domain.ErrNotFound) {
		observability.VerificationsTotal.WithLabelValues("invalid").Inc()
		return domain.Verification{Valid: false}, nil
	}
	if err != nil {
		return domain.Verification{}, err
	}

	// The response reports the state before this scan.
	ticket.Verified = !firstScan
	if firstScan {
		observability.VerificationsTotal.WithLabelValues("admitted").Inc()
	} else {
		observability.VerificationsTotal.WithLabelValues("already_scanned").Inc()
		v.logger.WithField("ticket_code", code).Warn("ticket scanned again")
	}
	return domain.Verification{Valid: true, Ticket: &ticket}, nil
}
