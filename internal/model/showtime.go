package model

import "time"

// Showtime statuses.
const (
	ShowtimeScheduled = "SCHEDULED"
	ShowtimeCancelled = "CANCELLED"
)

// Showtime represents a scheduled screening of a movie in a particular
// room.  EndTime is derived from the movie duration plus the turnover
// buffer and is never supplied by clients.
//
// Fields:
//  ID        – primary key identifier.
//  MovieID   – movie being screened.
//  RoomID    – room where the showtime takes place.
//  Format    – projection format (2D, 3D, IMAX, 4DX); drives pricing.
//  ShowDate  – calendar date of the showtime (local).
//  StartTime – when the showtime begins (UTC).
//  EndTime   – when the room is free again (UTC).
//  Status    – SCHEDULED or CANCELLED.
//  IsDeleted – soft-delete flag set by the retention job.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Showtime struct {
	ID        uint64    // showtimes.id
	MovieID   uint64    // showtimes.movie_id
	RoomID    uint64    // showtimes.room_id
	Format    string    // showtimes.format
	ShowDate  time.Time // showtimes.show_date
	StartTime time.Time // showtimes.start_time
	EndTime   time.Time // showtimes.end_time
	Status    string    // showtimes.status
	IsDeleted bool      // showtimes.is_deleted
	CreatedAt time.Time // showtimes.created_at
	UpdatedAt time.Time // showtimes.updated_at
}

// Movie holds the subset of movie data the scheduler needs.
type Movie struct {
	ID          uint64 // movies.id
	Title       string // movies.title
	DurationMin uint32 // movies.duration_min
}
