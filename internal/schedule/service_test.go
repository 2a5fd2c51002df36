package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

func TestService_CreateAndReschedule(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	roomID := dbtest.Exec(t, db, `INSERT INTO rooms (name, seat_rows, seat_cols) VALUES ('Room 1', 2, 3)`)
	require.NoError(t, repository.NewSeatRepo(db).GenerateLayout(ctx, roomID, 2, 3))
	movieID := dbtest.Exec(t, db, `INSERT INTO movies (title, duration_min) VALUES ('Heat', 120)`)

	svc := NewService(db, time.UTC, 8*time.Hour+30*time.Minute, 23*time.Hour)

	first, err := svc.Create(ctx, CreateInput{MovieID: movieID, RoomID: roomID, Format: "2D", Start: at(18, 0)})
	require.NoError(t, err)
	assert.Equal(t, at(20, 10), first.EndTime)

	var seats int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM show_seats WHERE showtime_id = ?`, first.ID).Scan(&seats))
	assert.Equal(t, 6, seats)

	_, err = svc.Create(ctx, CreateInput{MovieID: movieID, RoomID: roomID, Format: "2D", Start: at(19, 0)})
	assert.ErrorIs(t, err, ErrScheduleOverlap)

	second, err := svc.Create(ctx, CreateInput{MovieID: movieID, RoomID: roomID, Format: "3D", Start: at(20, 10)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{MovieID: movieID, RoomID: roomID, Format: "5D", Start: at(10, 0)})
	assert.ErrorIs(t, err, ErrInvalidFormat)
	_, err = svc.Create(ctx, CreateInput{MovieID: 404, RoomID: roomID, Format: "2D", Start: at(10, 0)})
	assert.ErrorIs(t, err, ErrNotFound)

	// Moving the first show later collides with the second but not with itself.
	_, err = svc.Reschedule(ctx, first.ID, at(18, 30), "")
	assert.ErrorIs(t, err, ErrScheduleOverlap)
	moved, err := svc.Reschedule(ctx, first.ID, at(17, 30), "IMAX")
	require.NoError(t, err)
	assert.Equal(t, at(19, 40), moved.EndTime)
	assert.Equal(t, "IMAX", moved.Format)

	methodID := dbtest.Exec(t, db, `INSERT INTO payment_methods (code) VALUES ('CARD')`)
	dbtest.Exec(t, db, `INSERT INTO tickets (code, user_id, showtime_id, payment_method_id, total_amount, booking_date)
	                    VALUES ('t-1', 1, ?, ?, '10.00', ?)`, second.ID, methodID, at(9, 0))
	_, err = svc.Reschedule(ctx, second.ID, at(21, 0), "")
	assert.ErrorIs(t, err, ErrHasTickets)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestService_RejectsInactiveRoom(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	roomID := dbtest.Exec(t, db, `INSERT INTO rooms (name, seat_rows, seat_cols, is_active) VALUES ('Closed', 1, 1, 0)`)
	movieID := dbtest.Exec(t, db, `INSERT INTO movies (title, duration_min) VALUES ('Heat', 120)`)

	svc := NewService(db, time.UTC, 8*time.Hour+30*time.Minute, 23*time.Hour)
	_, err := svc.Create(ctx, CreateInput{MovieID: movieID, RoomID: roomID, Format: "2D", Start: at(10, 0)})
	assert.ErrorIs(t, err, ErrRoomInactive)
}
