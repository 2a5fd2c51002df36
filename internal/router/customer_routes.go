package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
)

// RegisterCustomer registers customer endpoints.  Booking requires a valid
// JWT with the CUSTOMER role and is rate limited per user.  The socket
// authenticates itself from the token query parameter.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, ws *handler.RealtimeHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.POST("/showtimes/:id/bookings", b.Book, middleware.NewTokenBucket(rl, rdb))

	e.GET("/v1/ws", ws.Connect)
}
