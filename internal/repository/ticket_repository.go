package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// TicketRepo provides operations for tickets and their line items.  A
// ticket groups the seats and food items booked under one transaction,
// so every write method takes the caller's transaction.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreateTx inserts a ticket within the scope of an existing transaction and
// populates the generated ID.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	const q = `INSERT INTO tickets
	           (code, user_id, showtime_id, payment_method_id, voucher_usage_id, total_amount,
	            payment_status, booking_status, booking_date)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var voucher interface{}
	if t.VoucherUsageID != nil {
		voucher = *t.VoucherUsageID
	}
	res, err := tx.ExecContext(ctx, q,
		t.Code, t.UserID, t.ShowtimeID, t.PaymentMethodID, voucher, t.TotalAmount,
		t.PaymentStatus, t.BookingStatus, dbTime(t.BookingDate),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// CreateSeatsBulkTx inserts ticket_seats rows in a single statement.
// Passing an empty slice has no effect.
func (r *TicketRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, seats []model.TicketSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO ticket_seats (ticket_id, seat_id, price) VALUES `
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, s.TicketID, s.SeatID, s.Price)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// CreateFoodsBulkTx inserts ticket_foods rows in a single statement.
func (r *TicketRepo) CreateFoodsBulkTx(ctx context.Context, tx *sql.Tx, foods []model.TicketFood) error {
	if len(foods) == 0 {
		return nil
	}
	query := `INSERT INTO ticket_foods (ticket_id, food_id, unit_price, quantity) VALUES `
	args := make([]interface{}, 0, len(foods)*4)
	for i, f := range foods {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, f.TicketID, f.FoodID, f.UnitPrice, f.Quantity)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

const ticketSelect = `SELECT id, code, user_id, showtime_id, payment_method_id, voucher_usage_id, total_amount,
	        payment_status, booking_status, payment_ref, booking_date
	 FROM tickets WHERE id = ?`

func scanTicket(row *sql.Row) (*model.Ticket, error) {
	var t model.Ticket
	var voucher sql.NullInt64
	var ref sql.NullString
	err := row.Scan(
		&t.ID, &t.Code, &t.UserID, &t.ShowtimeID, &t.PaymentMethodID, &voucher, &t.TotalAmount,
		&t.PaymentStatus, &t.BookingStatus, &ref, &t.BookingDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if voucher.Valid {
		id := uint64(voucher.Int64)
		t.VoucherUsageID = &id
	}
	if ref.Valid {
		s := ref.String
		t.PaymentRef = &s
	}
	return &t, nil
}

// GetByID returns a ticket or ErrNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx, ticketSelect, id))
}

// GetByIDTx is GetByID inside a transaction.
func (r *TicketRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Ticket, error) {
	return scanTicket(tx.QueryRowContext(ctx, ticketSelect, id))
}

// SeatsTx lists the seat line items of a ticket.
func (r *TicketRepo) SeatsTx(ctx context.Context, tx *sql.Tx, ticketID uint64) ([]model.TicketSeat, error) {
	rows, err := tx.QueryContext(ctx, `SELECT ticket_id, seat_id, price FROM ticket_seats WHERE ticket_id = ? ORDER BY seat_id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]model.TicketSeat, 0)
	for rows.Next() {
		var s model.TicketSeat
		if err := rows.Scan(&s.TicketID, &s.SeatID, &s.Price); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// FoodsTx lists the food line items of a ticket.
func (r *TicketRepo) FoodsTx(ctx context.Context, tx *sql.Tx, ticketID uint64) ([]model.TicketFood, error) {
	rows, err := tx.QueryContext(ctx, `SELECT ticket_id, food_id, unit_price, quantity FROM ticket_foods WHERE ticket_id = ? ORDER BY food_id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	foods := make([]model.TicketFood, 0)
	for rows.Next() {
		var f model.TicketFood
		if err := rows.Scan(&f.TicketID, &f.FoodID, &f.UnitPrice, &f.Quantity); err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}
	return foods, rows.Err()
}

// SettleTx moves a PENDING ticket to its final payment and booking status.
// It reports false when the ticket was no longer pending.
func (r *TicketRepo) SettleTx(ctx context.Context, tx *sql.Tx, id uint64, paymentStatus, bookingStatus string, ref *string) (bool, error) {
	const q = `UPDATE tickets SET payment_status = ?, booking_status = ?, payment_ref = ?
	           WHERE id = ? AND payment_status = ?`
	var refArg interface{}
	if ref != nil {
		refArg = *ref
	}
	res, err := tx.ExecContext(ctx, q, paymentStatus, bookingStatus, refArg, id, model.PaymentPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
