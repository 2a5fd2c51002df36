package repository // repository defines data access for seats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// SeatRepo provides methods to work with the seat catalog of a room.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, room_id, row_label, seat_number, seat_type, couple_id, is_visible, is_active, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(s scanner, seat *model.Seat) error {
	var couple sql.NullInt64
	if err := s.Scan(
		&seat.ID, &seat.RoomID, &seat.RowLabel, &seat.SeatNumber, &seat.SeatType,
		&couple, &seat.IsVisible, &seat.IsActive, &seat.CreatedAt, &seat.UpdatedAt,
	); err != nil {
		return err
	}
	if couple.Valid {
		id := uint64(couple.Int64)
		seat.CoupleID = &id
	} else {
		seat.CoupleID = nil
	}
	return nil
}

// CreateBulk inserts multiple seats in a single statement.  Generated ids
// are not populated; reload with ListByRoom when they are needed.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (room_id, row_label, seat_number, seat_type, couple_id, is_visible, is_active) VALUES `
	args := make([]interface{}, 0, len(seats)*7)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		var couple interface{}
		if s.CoupleID != nil {
			couple = *s.CoupleID
		}
		args = append(args, s.RoomID, s.RowLabel, s.SeatNumber, s.SeatType, couple, s.IsVisible, s.IsActive)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GenerateLayout creates a rows x cols grid of NORMAL seats for a room.
// Rows are labelled A, B, ... Z, AA, AB and so on.
func (r *SeatRepo) GenerateLayout(ctx context.Context, roomID uint64, rows, cols uint32) error {
	seats := make([]model.Seat, 0, rows*cols)
	for i := uint32(0); i < rows; i++ {
		label := RowLabel(int(i))
		for j := uint32(1); j <= cols; j++ {
			seats = append(seats, model.Seat{
				RoomID:     roomID,
				RowLabel:   label,
				SeatNumber: j,
				SeatType:   model.SeatTypeNormal,
				IsVisible:  true,
				IsActive:   true,
			})
		}
	}
	return r.CreateBulk(ctx, seats)
}

// RowLabel converts a zero-based row index to a spreadsheet-style label.
func RowLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}

// PairCouple turns two adjacent seats of the same room into one COUPLE
// seat.  The first seat stays visible and the second becomes the hidden
// unit.  Both share couple_id, which is set to the visible seat's id.
func (r *SeatRepo) PairCouple(ctx context.Context, visibleID, hiddenID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var roomA, roomB uint64
	if err = tx.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ?`, visibleID).Scan(&roomA); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return err
	}
	if err = tx.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ?`, hiddenID).Scan(&roomB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return err
	}
	if roomA != roomB || visibleID == hiddenID {
		err = fmt.Errorf("%w: seats %d and %d cannot be paired", ErrConflict, visibleID, hiddenID)
		return err
	}
	const q = `UPDATE seats SET seat_type = ?, couple_id = ?, is_visible = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err = tx.ExecContext(ctx, q, model.SeatTypeCouple, visibleID, true, visibleID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, q, model.SeatTypeCouple, visibleID, false, hiddenID); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListByRoom returns every seat of a room ordered by row then number.
// Hidden couple units are included only when withHidden is true.
func (r *SeatRepo) ListByRoom(ctx context.Context, roomID uint64, withHidden bool) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE room_id = ?`
	if !withHidden {
		q += ` AND is_visible = 1`
	}
	q += ` ORDER BY LENGTH(row_label), row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := scanSeat(rows, &s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
