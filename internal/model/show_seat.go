package model

import "time"

// Durable seat statuses tracked per showtime.  OCCUPIED is only ever
// written by the booking transaction.
const (
	SeatStatusAvailable = "AVAILABLE"
	SeatStatusOccupied  = "OCCUPIED"
	SeatStatusInactive  = "INACTIVE"
)

// ShowSeat links a seat to a particular showtime and records its durable
// status.  There is one show_seat record for every seat in a room when a
// showtime is scheduled.
//
// Fields:
//  ShowtimeID – the showtime to which this seat belongs.
//  SeatID     – the seat being made available.
//  Status     – AVAILABLE, OCCUPIED or INACTIVE.
//  UpdatedAt  – timestamp when the record was last updated.
type ShowSeat struct {
	ShowtimeID uint64    // show_seats.showtime_id
	SeatID     uint64    // show_seats.seat_id
	Status     string    // show_seats.status
	UpdatedAt  time.Time // show_seats.updated_at
}
