package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
)

// RegisterRoutes registers probes and the metrics endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers unauthenticated browse endpoints.  The room seat
// directory changes only on room setup, so it sits behind the Redis cache;
// the showtime seat map is live and never cached.
func RegisterPublic(e *echo.Echo, s *handler.SeatHandler, st *handler.ShowtimeHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	e.GET("/v1/rooms/:id/seats", s.RoomSeats, middleware.NewRedisCache(cacheCfg, rdb))
	e.GET("/v1/rooms/:id/showtimes", st.ListByRoom)
	e.GET("/v1/showtimes/:id/seats", s.ShowtimeSeats)
}
