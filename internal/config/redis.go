package config

// Redis backs the booking rate limiter and the seat directory cache.  Both
// degrade to pass-through when the server is unreachable, so startup never
// fails because of Redis.

import (
	"context"
	"crypto/tls"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment.  REDIS_URL
// (redis:// or rediss://) wins over REDIS_HOST/REDIS_PORT and REDIS_ADDR.
func RedisOptions() (*redis.Options, error) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return redis.ParseURL(url)
	}
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// NewRedisClient connects and pings.  It returns nil when Redis is not
// usable; callers then disable caching and rate limiting.
func NewRedisClient() *redis.Client {
	opts, err := RedisOptions()
	if err != nil {
		log.Printf("redis: invalid configuration: %v", err)
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis: %s unreachable, cache and rate limit disabled: %v", opts.Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}
