package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

// Codes used only by the HTTP layer.  Engine codes come from booking.Code.
const (
	codeScheduleOverlap = "SCHEDULE_OVERLAP"
	codeOutsideWindow   = "OUTSIDE_WINDOW"
	codeHasTickets      = "HAS_TICKETS"
	codeRoomInactive    = "ROOM_INACTIVE"
	codeConflict        = "CONFLICT"
)

// statusFor maps a domain error to an HTTP status and taxonomy code.  The
// order matters where sentinels wrap each other (HAS_TICKETS wraps CONFLICT).
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrHoldConflict):
		return http.StatusConflict, booking.CodeHoldConflict
	case errors.Is(err, booking.ErrSeatConflict):
		return http.StatusConflict, booking.CodeSeatConflict
	case errors.Is(err, booking.ErrInsufficientInventory):
		return http.StatusConflict, booking.CodeInsufficientInventory
	case errors.Is(err, booking.ErrUnavailable):
		return http.StatusUnprocessableEntity, booking.CodeUnavailable
	case errors.Is(err, booking.ErrNoPriceRule):
		return http.StatusInternalServerError, booking.CodeNoPriceRule
	case errors.Is(err, booking.ErrTicketSettled):
		return http.StatusConflict, booking.CodeTicketSettled
	case errors.Is(err, booking.ErrInvalidRequest), errors.Is(err, schedule.ErrInvalidFormat):
		return http.StatusBadRequest, booking.CodeInvalidRequest
	case errors.Is(err, schedule.ErrScheduleOverlap):
		return http.StatusConflict, codeScheduleOverlap
	case errors.Is(err, schedule.ErrOutsideWindow):
		return http.StatusUnprocessableEntity, codeOutsideWindow
	case errors.Is(err, schedule.ErrRoomInactive):
		return http.StatusUnprocessableEntity, codeRoomInactive
	case errors.Is(err, schedule.ErrHasTickets):
		return http.StatusConflict, codeHasTickets
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, booking.CodeNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, booking.CodeInternal
	}
}

// writeError renders err as {"error": ..., "code": ...}.  Internal errors
// are logged and hidden from the client.
func writeError(c echo.Context, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if code == booking.CodeInternal {
		log.Printf("http: %s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, map[string]string{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg, "code": booking.CodeInvalidRequest})
}
