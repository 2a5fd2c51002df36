package realtime

import (
	"encoding/json"

	"github.com/iliyamo/cinema-booking-engine/internal/booking"
	"github.com/iliyamo/cinema-booking-engine/internal/hold"
)

// Client intents.
const (
	IntentJoin          = "join"
	IntentHold          = "hold"
	IntentRelease       = "release"
	IntentPromote       = "promote"
	IntentCancelPending = "cancelPending"
	IntentFinalize      = "finalize"
	IntentPing          = "ping"
)

// Server events.
const (
	EventSnapshot     = "snapshot"
	EventSeatHeld     = "seatHeld"
	EventSeatReleased = "seatReleased"
	EventSeatsBooked  = "seatsBooked"
	EventPromoted     = "promoted"
	EventBooked       = "booked"
	EventError        = "error"
	EventPong         = "pong"
)

// Socket-only error codes.  Engine failures reuse booking.Code.
const (
	CodeBadMessage = "BAD_MESSAGE"
	CodeNotJoined  = "NOT_JOINED"
)

// Intent is a message sent by the client.
type Intent struct {
	Type            string             `json:"type"`
	ShowtimeID      uint64             `json:"showtimeId,omitempty"`
	SeatID          uint64             `json:"seatId,omitempty"`
	Foods           []booking.FoodItem `json:"foods,omitempty"`
	PaymentMethodID uint64             `json:"paymentMethodId,omitempty"`
	VoucherUsageID  *uint64            `json:"voucherUsageId,omitempty"`
}

// Event is a message sent to the client.  Only the fields relevant to the
// event type are populated.
type Event struct {
	Type         string               `json:"type"`
	ShowtimeID   uint64               `json:"showtimeId,omitempty"`
	ConnectionID string               `json:"connectionId,omitempty"`
	SeatID       uint64               `json:"seatId,omitempty"`
	SeatIDs      []uint64             `json:"seatIds,omitempty"`
	Seats        []booking.SeatUpdate `json:"seats,omitempty"`
	Holds        []hold.Entry         `json:"holds,omitempty"`   // snapshot only
	Pending      []hold.Entry         `json:"pending,omitempty"` // snapshot only
	Ticket       *booking.Receipt     `json:"ticket,omitempty"`
	Code         string               `json:"code,omitempty"`
	Message      string               `json:"message,omitempty"`
}

func encode(ev Event) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		// Event only carries plain values; a failure here is a programming error.
		panic(err)
	}
	return b
}

func errorEvent(code, msg string) Event {
	return Event{Type: EventError, Code: code, Message: msg}
}

// snapshotMessage always carries both lists, as [] when empty.  The outer
// fields take precedence over Event's omitempty ones.
type snapshotMessage struct {
	Event
	Holds   []hold.Entry `json:"holds"`
	Pending []hold.Entry `json:"pending"`
}

// encodeSnapshot renders a registry snapshot for connID.
func encodeSnapshot(s hold.Snapshot, connID string) []byte {
	msg := snapshotMessage{
		Event:   Event{Type: EventSnapshot, ShowtimeID: s.ShowtimeID, ConnectionID: connID},
		Holds:   s.Holds,
		Pending: s.Pending,
	}
	if msg.Holds == nil {
		msg.Holds = []hold.Entry{}
	}
	if msg.Pending == nil {
		msg.Pending = []hold.Entry{}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return b
}
