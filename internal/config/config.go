package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Required values are
// enforced at startup; tunables fall back to defaults.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // HS256 secret shared with the identity provider

	DBMaxOpenConns int           // connection pool size
	DBConnLifetime time.Duration // max lifetime of pooled connections

	HoldShards      int           // shard count of the hold registry
	MetricsInterval time.Duration // how often gauges are sampled
	BookingLogDir   string        // directory of booking.log written by the consumer

	Schedule  ScheduleConfig
	Retention RetentionConfig
	Realtime  RealtimeConfig
}

// ScheduleConfig is the daily window in which showtimes may start.
type ScheduleConfig struct {
	Location *time.Location
	OpensAt  time.Duration // offset from local midnight
	ClosesAt time.Duration
}

// RetentionConfig drives the showtime retention job.
type RetentionConfig struct {
	Grace    time.Duration
	Interval time.Duration
}

// RealtimeConfig tunes WebSocket connections.
type RealtimeConfig struct {
	ReapInterval    time.Duration
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	FinalizeTimeout time.Duration
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"), // empty allowed
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),

		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
		DBConnLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		HoldShards:      envInt("HOLD_SHARDS", 64),
		MetricsInterval: envDur("METRICS_INTERVAL", 15*time.Second),
		BookingLogDir:   envStr("BOOKING_LOG_DIR", "logs"),

		Schedule: ScheduleConfig{
			Location: mustLocation("SCHEDULE_TIMEZONE", "UTC"),
			OpensAt:  envClock("SCHEDULE_OPENS_AT", 8*time.Hour+30*time.Minute),
			ClosesAt: envClock("SCHEDULE_CLOSES_AT", 23*time.Hour),
		},
		Retention: RetentionConfig{
			Grace:    envDur("SHOWTIME_RETENTION_GRACE", 24*time.Hour),
			Interval: envDur("SHOWTIME_RETENTION_INTERVAL", time.Hour),
		},
		Realtime: RealtimeConfig{
			ReapInterval:    envDur("REALTIME_REAP_INTERVAL", 30*time.Second),
			SendBuffer:      envInt("REALTIME_SEND_BUFFER", 256),
			WriteWait:       envDur("REALTIME_WRITE_WAIT", 10*time.Second),
			PongWait:        envDur("REALTIME_PONG_WAIT", 60*time.Second),
			MaxMessageSize:  int64(envInt("REALTIME_MAX_MESSAGE_BYTES", 4096)),
			FinalizeTimeout: envDur("REALTIME_FINALIZE_TIMEOUT", 15*time.Second),
		},
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustLocation loads an IANA zone; an unknown zone is fatal.
func mustLocation(key, def string) *time.Location {
	name := envStr(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid time zone for %s: %q", key, name)
	}
	return loc
}

// envClock parses "HH:MM" into an offset from midnight.
func envClock(key string, d time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	off, ok := parseClock(v)
	if !ok {
		log.Fatalf("invalid clock time for %s: %q", key, v)
	}
	return off
}

func parseClock(v string) (time.Duration, bool) {
	hh, mm, found := strings.Cut(v, ":")
	if !found {
		return 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}
