package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/metrics"
)

// Client is one WebSocket connection.  showtimeID is only touched by the
// connection's read loop.
type Client struct {
	id     string
	userID uint64
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once

	showtimeID uint64
}

func newClient(id string, userID uint64, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// ID is the connection id used as the claim owner in the hold registry.
func (c *Client) ID() string { return c.id }

// trySend queues a frame without blocking.  It reports false when the
// buffer is full; frames for a closed client are dropped.
func (c *Client) trySend(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// close reports whether this call closed the client.
func (c *Client) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		closed = true
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
	return closed
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Serve runs a connection until it closes.  It blocks.
func (h *Hub) Serve(conn *websocket.Conn, userID uint64) {
	c := newClient(uuid.NewString(), userID, conn, h.cfg.SendBuffer)
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *Client) {
	defer h.disconnect(c)

	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed() {
				log.Printf("realtime: read error on %s: %v", c.id, err)
			}
			return
		}
		var in Intent
		if err := json.Unmarshal(data, &in); err != nil {
			h.reply(c, errorEvent(CodeBadMessage, "malformed message"))
			continue
		}
		h.handle(c, in)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) reply(c *Client, ev Event) {
	if !c.trySend(encode(ev)) && c.close() {
		log.Printf("realtime: kicked slow client %s", c.id)
		h.slowKicked()
	}
}

func (h *Hub) replyError(c *Client, err error) {
	code := booking.Code(err)
	msg := err.Error()
	if code == booking.CodeInternal {
		log.Printf("realtime: %s: %v", c.id, err)
		msg = "internal error"
	}
	h.reply(c, errorEvent(code, msg))
}

// disconnect is the mandatory cleanup of a closed connection.  A failed
// release leaves the claims to the reaper, which no longer sees the
// connection as live.
func (h *Hub) disconnect(c *Client) {
	c.close()
	h.unregister(c)
	if st := c.showtimeID; st != 0 {
		h.leave(c, st)
		h.releaseClaims(c, st)
	}
}

func (h *Hub) releaseClaims(c *Client, showtimeID uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("realtime: cleanup of %s panicked: %v", c.id, r)
			h.markSuspect(c.id)
		}
	}()
	if _, err := h.registry.ReleaseConnection(showtimeID, c.id); err != nil {
		log.Printf("realtime: cleanup of %s failed: %v", c.id, err)
		h.markSuspect(c.id)
	}
}

func (h *Hub) handle(c *Client, in Intent) {
	if in.Type == IntentPing {
		h.reply(c, Event{Type: EventPong})
		return
	}
	if in.Type == IntentJoin {
		h.handleJoin(c, in.ShowtimeID)
		return
	}

	st := c.showtimeID
	if st == 0 {
		h.reply(c, errorEvent(CodeNotJoined, "join a showtime first"))
		return
	}

	switch in.Type {
	case IntentHold:
		if in.SeatID == 0 {
			h.replyError(c, booking.ErrInvalidRequest)
			return
		}
		if _, err := h.registry.Hold(st, in.SeatID, c.id); err != nil {
			if errors.Is(err, hold.ErrHoldConflict) {
				metrics.TrackHold("conflict")
				ev := errorEvent(booking.CodeHoldConflict, err.Error())
				ev.SeatID = in.SeatID
				h.reply(c, ev)
				return
			}
			metrics.TrackHold("error")
			h.replyError(c, err)
			return
		}
		metrics.TrackHold("ok")

	case IntentRelease:
		if _, err := h.registry.Release(st, in.SeatID, c.id); err != nil {
			h.replyError(c, err)
		}

	case IntentPromote:
		seats, err := h.registry.Promote(st, c.id)
		if err != nil {
			h.replyError(c, err)
			return
		}
		h.reply(c, Event{Type: EventPromoted, ShowtimeID: st, SeatIDs: seats})

	case IntentCancelPending:
		if _, err := h.registry.ReleaseProcessing(st, c.id); err != nil {
			h.replyError(c, err)
		}

	case IntentFinalize:
		h.handleFinalize(c, st, in)

	default:
		h.reply(c, errorEvent(CodeBadMessage, "unknown message type"))
	}
}

// handleJoin moves the connection to a showtime.  Claims on the previous
// showtime are released.
func (h *Hub) handleJoin(c *Client, showtimeID uint64) {
	if showtimeID == 0 {
		h.replyError(c, booking.ErrInvalidRequest)
		return
	}
	if h.check != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := h.check(ctx, showtimeID)
		cancel()
		if err != nil {
			h.replyError(c, err)
			return
		}
	}
	if prev := c.showtimeID; prev != 0 && prev != showtimeID {
		h.leave(c, prev)
		h.releaseClaims(c, prev)
	}
	c.showtimeID = showtimeID
	h.join(c, showtimeID)
}

func (h *Hub) handleFinalize(c *Client, st uint64, in Intent) {
	if h.finalizer == nil {
		h.reply(c, errorEvent(booking.CodeInvalidRequest, "finalize is not available on this connection"))
		return
	}
	seats := h.registry.PendingSeats(st, c.id)
	if len(seats) == 0 {
		h.reply(c, errorEvent(booking.CodeInvalidRequest, "no promoted seats to finalize"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.FinalizeTimeout)
	defer cancel()
	res, err := h.finalizer.Finalize(ctx, booking.Request{
		ShowtimeID:      st,
		SeatIDs:         seats,
		Foods:           in.Foods,
		PaymentMethodID: in.PaymentMethodID,
		VoucherUsageID:  in.VoucherUsageID,
		UserID:          c.userID,
		ConnID:          c.id,
	})
	if err != nil {
		// a seat taken durably will never become bookable for this selection
		if errors.Is(err, booking.ErrSeatConflict) {
			_, _ = h.registry.ReleaseProcessing(st, c.id)
		}
		h.replyError(c, err)
		return
	}
	rc := res.Receipt()
	h.reply(c, Event{Type: EventBooked, ShowtimeID: st, Ticket: &rc})
}
