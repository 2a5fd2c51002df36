package repository // repository for show seat persistence

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// SeatState is a seat joined with its durable status for one showtime.
type SeatState struct {
	Seat   model.Seat
	Status string
}

// ShowSeatRepo encapsulates database operations for show_seats.  Every
// method that takes a *sql.Tx runs exclusively on that transaction so the
// caller controls commit and rollback.
type ShowSeatRepo struct {
	db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
	return &ShowSeatRepo{db: db}
}

// CreateForShowtimeTx creates one show_seat row for every seat of the
// room.  Inactive seats start out INACTIVE, every other seat AVAILABLE.
func (r *ShowSeatRepo) CreateForShowtimeTx(ctx context.Context, tx *sql.Tx, showtimeID, roomID uint64) error {
	const q = `INSERT INTO show_seats (showtime_id, seat_id, status)
	           SELECT ?, id, CASE WHEN is_active = 1 THEN ? ELSE ? END
	           FROM seats WHERE room_id = ?`
	_, err := tx.ExecContext(ctx, q, showtimeID, model.SeatStatusAvailable, model.SeatStatusInactive, roomID)
	return err
}

const seatStateSelect = `SELECT s.id, s.room_id, s.row_label, s.seat_number, s.seat_type, s.couple_id,
	        s.is_visible, s.is_active, s.created_at, s.updated_at, ss.status
	 FROM show_seats ss
	 JOIN seats s ON s.id = ss.seat_id
	 WHERE ss.showtime_id = ?`

func scanSeatStates(rows *sql.Rows) ([]SeatState, error) {
	defer rows.Close()
	result := make([]SeatState, 0)
	for rows.Next() {
		var st SeatState
		var couple sql.NullInt64
		if err := rows.Scan(
			&st.Seat.ID, &st.Seat.RoomID, &st.Seat.RowLabel, &st.Seat.SeatNumber, &st.Seat.SeatType, &couple,
			&st.Seat.IsVisible, &st.Seat.IsActive, &st.Seat.CreatedAt, &st.Seat.UpdatedAt, &st.Status,
		); err != nil {
			return nil, err
		}
		if couple.Valid {
			id := uint64(couple.Int64)
			st.Seat.CoupleID = &id
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByShowtime returns the seat map of a showtime ordered by row and
// number.  Hidden couple units are omitted.
func (r *ShowSeatRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]SeatState, error) {
	q := seatStateSelect + ` AND s.is_visible = 1 ORDER BY LENGTH(s.row_label), s.row_label, s.seat_number`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, err
	}
	return scanSeatStates(rows)
}

// LoadTx reads the given seats and their status inside the transaction.
// Seats that do not belong to the showtime are simply absent from the
// result.
func (r *ShowSeatRepo) LoadTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]SeatState, error) {
	if len(seatIDs) == 0 {
		return []SeatState{}, nil
	}
	q := seatStateSelect + ` AND ss.seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{showtimeID}, idArgs(seatIDs)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSeatStates(rows)
}

// LoadCouplesTx reads every unit sharing one of the couple ids.
func (r *ShowSeatRepo) LoadCouplesTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, coupleIDs []uint64) ([]SeatState, error) {
	if len(coupleIDs) == 0 {
		return []SeatState{}, nil
	}
	q := seatStateSelect + ` AND s.couple_id IN (` + placeholders(len(coupleIDs)) + `)`
	args := append([]interface{}{showtimeID}, idArgs(coupleIDs)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSeatStates(rows)
}

// OccupyTx flips AVAILABLE seats to OCCUPIED and returns how many rows
// changed.  A count lower than len(seatIDs) means some seat was taken
// concurrently and the caller must roll back.
func (r *ShowSeatRepo) OccupyTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) (int64, error) {
	return r.transitionTx(ctx, tx, showtimeID, seatIDs, model.SeatStatusAvailable, model.SeatStatusOccupied)
}

// FreeTx flips OCCUPIED seats back to AVAILABLE.
func (r *ShowSeatRepo) FreeTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) (int64, error) {
	return r.transitionTx(ctx, tx, showtimeID, seatIDs, model.SeatStatusOccupied, model.SeatStatusAvailable)
}

func (r *ShowSeatRepo) transitionTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, from, to string) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE show_seats SET status = ?, updated_at = CURRENT_TIMESTAMP
	      WHERE showtime_id = ? AND status = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{to, showtimeID, from}, idArgs(seatIDs)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
