package model

import "time"

// Room represents a screening room.  Seats belong to exactly one room and
// the seat inventory is generated once, when the room layout is configured.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the room.
//  SeatRows  – number of seating rows.
//  SeatCols  – number of seats per row.
//  IsActive  – whether showtimes may be scheduled in the room.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Room struct {
	ID        uint64    // rooms.id
	Name      string    // rooms.name
	SeatRows  uint32    // rooms.seat_rows
	SeatCols  uint32    // rooms.seat_cols
	IsActive  bool      // rooms.is_active
	CreatedAt time.Time // rooms.created_at
	UpdatedAt time.Time // rooms.updated_at
}
