package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

var (
	// ErrNotFound means the showtime, movie or room does not exist.
	ErrNotFound = repository.ErrNotFound
	// ErrHasTickets means the showtime cannot move because it has bookings.
	ErrHasTickets = fmt.Errorf("%w: showtime already has tickets", repository.ErrConflict)
	// ErrRoomInactive means the room is closed for scheduling.
	ErrRoomInactive = errors.New("room is not active")
	// ErrInvalidFormat means the projection format is unknown.
	ErrInvalidFormat = errors.New("unknown showtime format")
)

// Formats lists the accepted projection formats.
var Formats = map[string]bool{"2D": true, "3D": true, "IMAX": true, "4DX": true}

// CreateInput describes a new showtime.
type CreateInput struct {
	MovieID uint64
	RoomID  uint64
	Format  string
	Start   time.Time
}

// Service creates and moves showtimes.
type Service struct {
	db        *sql.DB
	showtimes *repository.ShowtimeRepo
	showSeats *repository.ShowSeatRepo
	movies    *repository.MovieRepo
	rooms     *repository.RoomRepo
	planner   *Planner

	// Plan and insert are serialised per room so two requests cannot
	// both pass the overlap check for the same gap.
	roomLocks [32]sync.Mutex
}

// NewService wires the scheduler over db.
func NewService(db *sql.DB, loc *time.Location, opensAt, closesAt time.Duration) *Service {
	showtimes := repository.NewShowtimeRepo(db)
	return &Service{
		db:        db,
		showtimes: showtimes,
		showSeats: repository.NewShowSeatRepo(db),
		movies:    repository.NewMovieRepo(db),
		rooms:     repository.NewRoomRepo(db),
		planner:   NewPlanner(showtimes, loc, opensAt, closesAt),
	}
}

func (s *Service) lockRoom(roomID uint64) func() {
	m := &s.roomLocks[roomID%uint64(len(s.roomLocks))]
	m.Lock()
	return m.Unlock
}

// Create validates and stores a showtime and generates its show_seats.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Showtime, error) {
	if !Formats[in.Format] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, in.Format)
	}
	movie, err := s.movies.GetByID(ctx, in.MovieID)
	if err != nil {
		return nil, fmt.Errorf("movie %d: %w", in.MovieID, err)
	}
	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("room %d: %w", in.RoomID, err)
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: room %d", ErrRoomInactive, room.ID)
	}

	defer s.lockRoom(room.ID)()
	slot, err := s.planner.Plan(ctx, room.ID, in.Start, time.Duration(movie.DurationMin)*time.Minute, 0)
	if err != nil {
		return nil, err
	}

	st := &model.Showtime{
		MovieID:   movie.ID,
		RoomID:    room.ID,
		Format:    in.Format,
		ShowDate:  slot.ShowDate,
		StartTime: slot.Start,
		EndTime:   slot.End,
		Status:    model.ShowtimeScheduled,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.showtimes.CreateTx(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := s.showSeats.CreateForShowtimeTx(ctx, tx, st.ID, room.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

// Reschedule moves a showtime to a new start (and optionally format).
// It is refused once tickets exist for the showtime.
func (s *Service) Reschedule(ctx context.Context, id uint64, start time.Time, format string) (*model.Showtime, error) {
	st, err := s.showtimes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("showtime %d: %w", id, err)
	}
	if st.IsDeleted {
		return nil, fmt.Errorf("showtime %d: %w", id, ErrNotFound)
	}
	if format != "" {
		if !Formats[format] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
		}
		st.Format = format
	}
	movie, err := s.movies.GetByID(ctx, st.MovieID)
	if err != nil {
		return nil, fmt.Errorf("movie %d: %w", st.MovieID, err)
	}

	defer s.lockRoom(st.RoomID)()
	slot, err := s.planner.Plan(ctx, st.RoomID, start, time.Duration(movie.DurationMin)*time.Minute, st.ID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	booked, err := s.showtimes.HasTicketsTx(ctx, tx, st.ID)
	if err != nil {
		return nil, err
	}
	if booked {
		return nil, ErrHasTickets
	}
	st.ShowDate, st.StartTime, st.EndTime = slot.ShowDate, slot.Start, slot.End
	if err := s.showtimes.UpdateScheduleTx(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}
