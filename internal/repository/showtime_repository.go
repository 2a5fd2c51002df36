// This file defines repository methods for showtimes and the read-only
// movie lookup the scheduler needs.  All times are stored in UTC.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// ShowtimeRepo manages persistence for showtimes.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo {
	return &ShowtimeRepo{db: db}
}

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *ShowtimeRepo) DB() *sql.DB {
	return r.db
}

const showtimeColumns = `id, movie_id, room_id, format, show_date, start_time, end_time, status, is_deleted, created_at, updated_at`

func scanShowtime(s scanner, st *model.Showtime) error {
	return s.Scan(
		&st.ID, &st.MovieID, &st.RoomID, &st.Format, &st.ShowDate, &st.StartTime, &st.EndTime,
		&st.Status, &st.IsDeleted, &st.CreatedAt, &st.UpdatedAt,
	)
}

// dbTime normalises a timestamp before it is written or compared.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// CreateTx inserts a new showtime using the provided transaction.  The
// generated ID is populated on st.  Status defaults to SCHEDULED when empty.
func (r *ShowtimeRepo) CreateTx(ctx context.Context, tx *sql.Tx, st *model.Showtime) error {
	if st.Status == "" {
		st.Status = model.ShowtimeScheduled
	}
	const q = `INSERT INTO showtimes (movie_id, room_id, format, show_date, start_time, end_time, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		st.MovieID, st.RoomID, st.Format, dbTime(st.ShowDate), dbTime(st.StartTime), dbTime(st.EndTime), st.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	st.ID = uint64(id)
	return nil
}

// GetByID retrieves a showtime by id, deleted or not.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	return getShowtime(r.db.QueryRowContext(ctx, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ?`, id))
}

// GetByIDTx is GetByID inside a transaction.
func (r *ShowtimeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	return getShowtime(tx.QueryRowContext(ctx, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ?`, id))
}

func getShowtime(row *sql.Row) (*model.Showtime, error) {
	var st model.Showtime
	if err := scanShowtime(row, &st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// FindOverlapping returns the non-deleted showtimes of a room whose
// [start, end) interval intersects [start, end).  A showtime that ends
// exactly when the candidate starts does not overlap.  excludeID (when
// non-zero) leaves one showtime out, which is how a reschedule avoids
// colliding with itself.
func (r *ShowtimeRepo) FindOverlapping(ctx context.Context, roomID, excludeID uint64, start, end time.Time) ([]model.Showtime, error) {
	const q = `SELECT ` + showtimeColumns + `
	           FROM showtimes
	           WHERE room_id = ? AND is_deleted = 0 AND id <> ?
	             AND start_time < ? AND end_time > ?
	           ORDER BY start_time`
	rows, err := r.db.QueryContext(ctx, q, roomID, excludeID, dbTime(end), dbTime(start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	overlaps := make([]model.Showtime, 0)
	for rows.Next() {
		var st model.Showtime
		if err := scanShowtime(rows, &st); err != nil {
			return nil, err
		}
		overlaps = append(overlaps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overlaps, nil
}

// UpdateScheduleTx moves a showtime to a new slot.  It returns ErrNotFound
// when the showtime is missing or deleted.
func (r *ShowtimeRepo) UpdateScheduleTx(ctx context.Context, tx *sql.Tx, st *model.Showtime) error {
	const q = `UPDATE showtimes
	           SET format = ?, show_date = ?, start_time = ?, end_time = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ? AND is_deleted = 0`
	res, err := tx.ExecContext(ctx, q, st.Format, dbTime(st.ShowDate), dbTime(st.StartTime), dbTime(st.EndTime), st.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired returns the ids of non-deleted showtimes that ended before cutoff.
func (r *ShowtimeRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	const q = `SELECT id FROM showtimes WHERE is_deleted = 0 AND end_time < ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, dbTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SoftDelete marks a showtime deleted.  It reports whether a row changed.
func (r *ShowtimeRepo) SoftDelete(ctx context.Context, id uint64) (bool, error) {
	const q = `UPDATE showtimes SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_deleted = 0`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HasTicketsTx reports whether any ticket references the showtime.
func (r *ShowtimeRepo) HasTicketsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE showtime_id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MovieRepo is a read-only view of the movie catalog.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo constructs a MovieRepo with the given DB handle.
func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// GetByID returns a movie or ErrNotFound.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	var m model.Movie
	err := r.db.QueryRowContext(ctx, `SELECT id, title, duration_min FROM movies WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.DurationMin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
