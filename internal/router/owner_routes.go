package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
)

// RegisterOwner registers OWNER endpoints: room setup, scheduling, and the
// payment verdict callback relayed by the back office.
func RegisterOwner(e *echo.Echo, rooms *handler.RoomHandler, showtimes *handler.ShowtimeHandler, bookings *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner),
	)
	g.POST("/rooms", rooms.CreateRoom)
	g.POST("/rooms/:id/couples", rooms.PairCouple)
	g.POST("/showtimes", showtimes.Create)
	g.PATCH("/showtimes/:id", showtimes.Reschedule)
	g.POST("/tickets/:id/payment-verdict", bookings.PaymentVerdict)
}
