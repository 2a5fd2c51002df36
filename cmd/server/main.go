package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // SCHEDULE_TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/database"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/metrics"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/realtime"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/router"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil disables cache and rate limit
	if rdb != nil {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := hold.NewRegistry(cfg.HoldShards)
	defer registry.Close()

	brokerURL := queue.BrokerURL()
	engine := booking.NewEngine(db,
		booking.WithClaims(registry),
		booking.WithPublisher(queue.NewPublisher(brokerURL)),
	)
	hub := realtime.NewHub(registry,
		realtime.WithFinalizer(engine),
		realtime.WithShowtimeCheck(engine.CheckShowtime),
		realtime.WithConfig(realtime.Config{
			SendBuffer:      cfg.Realtime.SendBuffer,
			WriteWait:       cfg.Realtime.WriteWait,
			PongWait:        cfg.Realtime.PongWait,
			MaxMessageSize:  cfg.Realtime.MaxMessageSize,
			FinalizeTimeout: cfg.Realtime.FinalizeTimeout,
		}),
	)
	engine.SetBroadcaster(hub)

	scheduler := schedule.NewService(db, cfg.Schedule.Location, cfg.Schedule.OpensAt, cfg.Schedule.ClosesAt)
	showtimes := repository.NewShowtimeRepo(db)
	retention := &schedule.Retention{Store: showtimes, Claims: registry, Grace: cfg.Retention.Grace}

	go func() {
		if err := queue.NewConsumer(brokerURL, cfg.BookingLogDir).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("booking-consumer: stopped: %v", err)
		}
	}()
	go retention.Run(ctx, cfg.Retention.Interval)
	go hub.RunReaper(ctx, cfg.Realtime.ReapInterval)
	go metrics.Collect(ctx, registry, cfg.MetricsInterval)

	rooms := repository.NewRoomRepo(db)
	seats := repository.NewSeatRepo(db)
	seatHandler := &handler.SeatHandler{
		Rooms:     rooms,
		Seats:     seats,
		ShowSeats: repository.NewShowSeatRepo(db),
		Showtimes: showtimes,
		Claims:    registry,
	}
	bookingHandler := &handler.BookingHandler{Engine: engine, Conns: hub}
	showtimeHandler := &handler.ShowtimeHandler{
		Scheduler: scheduler,
		Rooms:     rooms,
		Showtimes: showtimes,
		Location:  cfg.Schedule.Location,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover(), echomw.RequestID())
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, seatHandler, showtimeHandler, config.LoadCacheConfig(), rdb)
	router.RegisterCustomer(e, bookingHandler, handler.NewRealtimeHandler(hub, cfg.JWTSecret), cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterOwner(e,
		&handler.RoomHandler{Rooms: rooms, Seats: seats},
		showtimeHandler,
		bookingHandler,
		cfg.JWTSecret,
	)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked socket connections are not tracked by the HTTP server, so
	// the hub closes them before the server drains.
	hub.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
