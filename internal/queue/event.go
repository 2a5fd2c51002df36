// Package queue defines message payloads exchanged over the message broker
// together with their publisher and consumer.
package queue

// TicketBookedQueue is the durable queue that receives TicketBookedEvent.
const TicketBookedQueue = "ticket.booked"

// FoodLine is a food item included in a booking.
type FoodLine struct {
	FoodID    uint64 `json:"food_id"`
	Name      string `json:"name"`
	Quantity  uint32 `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// TicketBookedEvent is published after a booking transaction commits.  It
// carries enough information for downstream consumers to log, notify or
// feed analytics without querying the primary database.  Amounts are
// decimal strings.
type TicketBookedEvent struct {
	TicketID    uint64     `json:"ticket_id"`
	TicketCode  string     `json:"ticket_code"`
	UserID      uint64     `json:"user_id"`
	ShowtimeID  uint64     `json:"showtime_id"`
	RoomID      uint64     `json:"room_id"`
	Format      string     `json:"format"`
	StartsAt    string     `json:"starts_at"`
	SeatLabels  []string   `json:"seats"`
	Foods       []FoodLine `json:"foods,omitempty"`
	TotalAmount string     `json:"total_amount"`
	BookedAt    string     `json:"booked_at"`
}
