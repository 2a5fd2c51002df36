// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_hold_attempts_total",
			Help: "Seat hold attempts by outcome",
		},
		[]string{"outcome"},
	)

	bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_finalize_total",
			Help: "Booking finalize attempts by outcome code",
		},
		[]string{"outcome"},
	)

	commitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_commit_duration_seconds",
			Help:    "Duration of the booking transaction",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Currently open realtime connections",
		},
	)

	slowClientKicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_slow_client_disconnects_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	reapedClaims = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hold_claims_reaped_total",
			Help: "Orphaned claims released by the reconciliation sweep",
		},
	)

	activeClaims = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hold_claims_active",
			Help: "Claims currently tracked by the hold registry",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// TrackHold counts a hold attempt; outcome is "held", "noop" or an error code.
func TrackHold(outcome string) { holdAttempts.WithLabelValues(outcome).Inc() }

// TrackBooking counts a finalize attempt and, for commits, its duration.
func TrackBooking(outcome string, took time.Duration) {
	bookings.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		commitDuration.Observe(took.Seconds())
	}
}

// ConnectionOpened and ConnectionClosed track the realtime gauge.
func ConnectionOpened() { activeConnections.Inc() }

func ConnectionClosed() { activeConnections.Dec() }

// SlowClientKicked counts a disconnect caused by back-pressure.
func SlowClientKicked() { slowClientKicks.Inc() }

// ClaimsReaped adds the result of a reconciliation sweep.
func ClaimsReaped(n int) { reapedClaims.Add(float64(n)) }

// Sizer reports the number of live claims.
type Sizer interface {
	Len() int
}

// Collect samples gauges that are cheaper to poll than to maintain,
// every interval, until ctx is done.
func Collect(ctx context.Context, claims Sizer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			activeClaims.Set(float64(claims.Len()))
			goroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}
