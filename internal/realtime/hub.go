// Package realtime is the WebSocket gateway.  Each connection joins at most
// one showtime; each showtime has a topic that fans out claim changes and
// booking outcomes to its viewers.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/metrics"
)

// Finalizer books the seats a connection promoted.
type Finalizer interface {
	Finalize(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// ShowtimeCheck reports an error when a showtime cannot be joined.
type ShowtimeCheck func(ctx context.Context, showtimeID uint64) error

// Config tunes connection handling.
type Config struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	FinalizeTimeout time.Duration
}

// DefaultConfig buffers 256 frames per client, allows 10s per write,
// expects a pong within 60s and accepts messages of up to 4 KiB.  A socket
// finalize may take 15s.
func DefaultConfig() Config {
	return Config{
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageSize:  4096,
		FinalizeTimeout: 15 * time.Second,
	}
}

func (c Config) pingPeriod() time.Duration { return c.PongWait * 9 / 10 }

// Hub owns the live connections and the per-showtime topics.  It is the
// registry's Notifier and the engine's Broadcaster.
//
// Lock order: seat shard (registry) -> mu -> topic.queueMu.  The hub never
// calls into the registry while holding mu.
type Hub struct {
	registry  *hold.Registry
	finalizer Finalizer
	check     ShowtimeCheck
	cfg       Config

	mu     sync.RWMutex
	topics map[uint64]*topic

	connsMu sync.RWMutex
	conns   map[string]*Client

	suspectMu sync.Mutex
	suspects  map[string]struct{}

	quit     chan struct{}
	quitOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithFinalizer enables the socket finalize intent.
func WithFinalizer(f Finalizer) Option { return func(h *Hub) { h.finalizer = f } }

// WithShowtimeCheck validates showtimes on join.
func WithShowtimeCheck(fn ShowtimeCheck) Option { return func(h *Hub) { h.check = fn } }

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option { return func(h *Hub) { h.cfg = cfg } }

// NewHub builds a hub and installs it as the registry's notifier.
func NewHub(reg *hold.Registry, opts ...Option) *Hub {
	h := &Hub{
		registry: reg,
		cfg:      DefaultConfig(),
		topics:   make(map[uint64]*topic),
		conns:    make(map[string]*Client),
		suspects: make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	reg.SetNotifier(h)
	return h
}

// Notify turns a registry change into a topic event.  It runs under the
// seat's shard lock and only enqueues.
func (h *Hub) Notify(ch hold.Change) {
	var ev Event
	exclude := ""
	switch ch.Kind {
	case hold.SeatHeld:
		ev = Event{Type: EventSeatHeld, ShowtimeID: ch.ShowtimeID, SeatID: ch.SeatID}
		exclude = ch.ConnID
	case hold.SeatReleased:
		ev = Event{Type: EventSeatReleased, ShowtimeID: ch.ShowtimeID, SeatID: ch.SeatID}
	default:
		// promotion is private to the requester; others keep seeing the seat taken
		return
	}
	h.publish(ch.ShowtimeID, item{kind: itemEvent, payload: encode(ev), exclude: exclude})
}

// SeatsBooked broadcasts durable status changes to the showtime's viewers.
func (h *Hub) SeatsBooked(showtimeID uint64, seats []booking.SeatUpdate) {
	if len(seats) == 0 {
		return
	}
	ev := Event{Type: EventSeatsBooked, ShowtimeID: showtimeID, Seats: seats}
	h.publish(showtimeID, item{kind: itemEvent, payload: encode(ev)})
}

func (h *Hub) publish(showtimeID uint64, it item) {
	h.mu.RLock()
	if t, ok := h.topics[showtimeID]; ok {
		t.enqueue(it)
	}
	h.mu.RUnlock()
}

func (h *Hub) join(c *Client, showtimeID uint64) {
	h.mu.Lock()
	t, ok := h.topics[showtimeID]
	if !ok {
		t = newTopic(showtimeID, h)
		h.topics[showtimeID] = t
		go t.run()
	}
	t.enqueue(item{kind: itemJoin, client: c})
	h.mu.Unlock()
}

func (h *Hub) leave(c *Client, showtimeID uint64) {
	h.publish(showtimeID, item{kind: itemLeave, client: c})
}

// retire removes an idle topic.  It fails when work arrived meanwhile.
func (h *Hub) retire(t *topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	if len(t.queue) > 0 {
		return false
	}
	delete(h.topics, t.id)
	return true
}

// Topics returns the number of showtimes that currently have a topic.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) register(c *Client) {
	h.connsMu.Lock()
	h.conns[c.id] = c
	h.connsMu.Unlock()
	metrics.ConnectionOpened()
}

func (h *Hub) unregister(c *Client) {
	h.connsMu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.connsMu.Unlock()
	if ok {
		metrics.ConnectionClosed()
	}
}

// IsLive reports whether a connection id belongs to an open connection.
func (h *Hub) IsLive(connID string) bool {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	_, ok := h.conns[connID]
	return ok
}

// ConnOwner returns the user behind a live connection.
func (h *Hub) ConnOwner(connID string) (uint64, bool) {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	c, ok := h.conns[connID]
	if !ok {
		return 0, false
	}
	return c.userID, true
}

func (h *Hub) markSuspect(connID string) {
	h.suspectMu.Lock()
	h.suspects[connID] = struct{}{}
	h.suspectMu.Unlock()
}

func (h *Hub) slowKicked() { metrics.SlowClientKicked() }

// Reap releases the claims of every connection that is no longer live.
func (h *Hub) Reap() int {
	n := h.registry.Reap(h.IsLive)
	h.suspectMu.Lock()
	suspects := len(h.suspects)
	h.suspects = make(map[string]struct{})
	h.suspectMu.Unlock()
	if n > 0 || suspects > 0 {
		log.Printf("realtime: reaped %d orphaned claims (%d connections flagged)", n, suspects)
		metrics.ClaimsReaped(n)
	}
	return n
}

// RunReaper calls Reap every interval until ctx is done.
func (h *Hub) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Reap()
		}
	}
}

// Close disconnects every client and stops the dispatchers.
func (h *Hub) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
	h.connsMu.RLock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.connsMu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}
