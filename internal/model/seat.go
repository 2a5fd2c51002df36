package model

import (
	"strconv"
	"time"
)

// Seat types.  A COUPLE seat is two physical units sold as one; the second
// unit carries the same CoupleID and is hidden from listings.
const (
	SeatTypeNormal = "NORMAL"
	SeatTypeVIP    = "VIP"
	SeatTypeCouple = "COUPLE"
)

// Seat describes a physical seat in a room.  Seats are uniquely
// identified by their room, row label and seat number.
//
// Fields:
//  ID         – primary key identifier.
//  RoomID     – room to which this seat belongs.
//  RowLabel   – letter designating the row.
//  SeatNumber – number of the seat within the row.
//  SeatType   – NORMAL, VIP or COUPLE.
//  CoupleID   – pairing id shared by both units of a couple seat (nil otherwise).
//  IsVisible  – false for the hidden second unit of a couple seat.
//  IsActive   – false when the seat is out of service.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	RoomID     uint64    // seats.room_id
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	SeatType   string    // seats.seat_type
	CoupleID   *uint64   // seats.couple_id (nullable)
	IsVisible  bool      // seats.is_visible
	IsActive   bool      // seats.is_active
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}

// Label returns the printable seat label, e.g. "C7".
func (s Seat) Label() string {
	return s.RowLabel + strconv.FormatUint(uint64(s.SeatNumber), 10)
}
