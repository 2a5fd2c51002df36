package booking

import (
	"errors"

	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// Failure taxonomy of the engine.  Every error returned by Finalize and
// ApplyPaymentVerdict wraps exactly one of these, so callers branch with
// errors.Is and report Code(err).
var (
	// ErrHoldConflict means a seat is claimed by another connection.
	ErrHoldConflict = hold.ErrHoldConflict
	// ErrUnavailable means the showtime (or payment method) is not bookable.
	ErrUnavailable = errors.New("showtime is not available for booking")
	// ErrSeatConflict means a seat is not available at commit time.
	ErrSeatConflict = errors.New("seat is no longer available")
	// ErrInsufficientInventory means a food line cannot be served.
	ErrInsufficientInventory = errors.New("insufficient food inventory")
	// ErrNoPriceRule means pricing is misconfigured for a seat type and format.
	ErrNoPriceRule = errors.New("no price rule for seat type and format")
	// ErrTicketSettled means the ticket already received a payment verdict.
	ErrTicketSettled = errors.New("ticket already settled")
	// ErrInvalidRequest means the request is malformed (no seats, zero quantity).
	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrNotFound means the referenced ticket does not exist.
	ErrNotFound = repository.ErrNotFound
)

// Error codes reported to HTTP and socket clients.
const (
	CodeHoldConflict          = "HOLD_CONFLICT"
	CodeUnavailable           = "UNAVAILABLE"
	CodeSeatConflict          = "SEAT_CONFLICT"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeNoPriceRule           = "NO_PRICE_RULE"
	CodeTicketSettled         = "TICKET_SETTLED"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeInternal              = "INTERNAL"
)

// Code maps an engine error to its taxonomy code.  A nil error maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrHoldConflict):
		return CodeHoldConflict
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrSeatConflict):
		return CodeSeatConflict
	case errors.Is(err, ErrInsufficientInventory):
		return CodeInsufficientInventory
	case errors.Is(err, ErrNoPriceRule):
		return CodeNoPriceRule
	case errors.Is(err, ErrTicketSettled):
		return CodeTicketSettled
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
