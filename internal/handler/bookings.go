package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// Booker is the part of the booking engine used over HTTP.
type Booker interface {
	Finalize(ctx context.Context, req booking.Request) (*booking.Result, error)
	ApplyPaymentVerdict(ctx context.Context, ticketID uint64, v booking.Verdict) (*model.Ticket, error)
}

// ConnOwners resolves a realtime connection id to its user.
type ConnOwners interface {
	ConnOwner(connID string) (uint64, bool)
}

// BookingHandler finalizes bookings and records payment verdicts.
type BookingHandler struct {
	Engine Booker
	Conns  ConnOwners
}

type ticketView struct {
	ID               uint64    `json:"id"`
	Code             string    `json:"code"`
	ShowtimeID       uint64    `json:"showtimeId"`
	TotalAmount      string    `json:"totalAmount"`
	PaymentStatus    string    `json:"paymentStatus"`
	BookingStatus    string    `json:"bookingStatus"`
	PaymentReference *string   `json:"paymentReference,omitempty"`
	BookedAt         time.Time `json:"bookedAt"`
}

// Book handles POST /v1/showtimes/:id/bookings.  When connectionId is
// given it must be one of the caller's live sockets; the seats that
// connection holds then pass the claim check.
func (h *BookingHandler) Book(c echo.Context) error {
	showtimeID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var body struct {
		SeatIDs         []uint64           `json:"seatIds"`
		Foods           []booking.FoodItem `json:"foods"`
		PaymentMethodID uint64             `json:"paymentMethodId"`
		VoucherUsageID  *uint64            `json:"voucherUsageId"`
		ConnectionID    string             `json:"connectionId"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.SeatIDs) == 0 || body.PaymentMethodID == 0 {
		return badRequest(c, "seatIds and paymentMethodId are required")
	}
	if body.ConnectionID != "" {
		owner, live := uint64(0), false
		if h.Conns != nil {
			owner, live = h.Conns.ConnOwner(body.ConnectionID)
		}
		if !live || owner != userID {
			return badRequest(c, "connectionId does not belong to a live connection of this user")
		}
	}

	res, err := h.Engine.Finalize(c.Request().Context(), booking.Request{
		ShowtimeID:      showtimeID,
		SeatIDs:         body.SeatIDs,
		Foods:           body.Foods,
		PaymentMethodID: body.PaymentMethodID,
		VoucherUsageID:  body.VoucherUsageID,
		UserID:          userID,
		ConnID:          body.ConnectionID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res.Receipt())
}

// PaymentVerdict handles POST /v1/tickets/:id/payment-verdict.
func (h *BookingHandler) PaymentVerdict(c echo.Context) error {
	ticketID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	var body struct {
		Approved  *bool  `json:"approved"`
		Reference string `json:"reference"`
	}
	if err := c.Bind(&body); err != nil || body.Approved == nil {
		return badRequest(c, "approved is required")
	}
	t, err := h.Engine.ApplyPaymentVerdict(c.Request().Context(), ticketID, booking.Verdict{
		Approved:  *body.Approved,
		Reference: body.Reference,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ticketView{
		ID:               t.ID,
		Code:             t.Code,
		ShowtimeID:       t.ShowtimeID,
		TotalAmount:      t.TotalAmount.StringFixed(2),
		PaymentStatus:    t.PaymentStatus,
		BookingStatus:    t.BookingStatus,
		PaymentReference: t.PaymentRef,
		BookedAt:         t.BookingDate,
	})
}
