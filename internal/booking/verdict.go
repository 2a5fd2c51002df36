package booking

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// Verdict is the opaque pass/fail reported by the payment collaborator.
type Verdict struct {
	Approved  bool
	Reference string
}

// ApplyPaymentVerdict settles a PENDING ticket.  An approval confirms the
// ticket and stores the reference.  A decline cancels it in a compensating
// transaction that frees the seats (couple partners included), restocks
// the food and restores the voucher usage, then broadcasts the seats as
// available again.  A ticket is settled at most once; later verdicts fail
// with ErrTicketSettled.
func (e *Engine) ApplyPaymentVerdict(ctx context.Context, ticketID uint64, v Verdict) (*model.Ticket, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := e.tickets.GetByIDTx(ctx, tx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket %d: %w", ticketID, err)
	}
	if t.PaymentStatus != model.PaymentPending {
		return nil, fmt.Errorf("%w: ticket %d is %s", ErrTicketSettled, t.ID, t.PaymentStatus)
	}

	var ref *string
	if v.Reference != "" {
		r := v.Reference
		ref = &r
	}
	payment, booking := model.PaymentPaid, model.BookingConfirmed
	if !v.Approved {
		payment, booking = model.PaymentFailed, model.BookingCancelled
	}
	ok, err := e.tickets.SettleTx(ctx, tx, t.ID, payment, booking, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ticket %d", ErrTicketSettled, t.ID)
	}
	t.PaymentStatus, t.BookingStatus, t.PaymentRef = payment, booking, ref

	var visible, freed []uint64
	if !v.Approved {
		visible, freed, err = e.compensate(ctx, tx, t)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	if !v.Approved {
		if e.claims != nil {
			if err := e.claims.Unbook(t.ShowtimeID, freed); err != nil {
				log.Printf("booking: unbook showtime=%d: %v", t.ShowtimeID, err)
			}
		}
		if e.broadcaster != nil {
			e.broadcaster.SeatsBooked(t.ShowtimeID, seatUpdates(visible, StatusAvailable))
		}
	}
	return t, nil
}

// compensate reverses every write Finalize made for the ticket.
func (e *Engine) compensate(ctx context.Context, tx *sql.Tx, t *model.Ticket) ([]uint64, []uint64, error) {
	seats, err := e.tickets.SeatsTx(ctx, tx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	visible := make([]uint64, 0, len(seats))
	for _, s := range seats {
		visible = append(visible, s.SeatID)
	}

	states, err := e.showSeats.LoadTx(ctx, tx, t.ShowtimeID, visible)
	if err != nil {
		return nil, nil, err
	}
	coupleIDs := make([]uint64, 0)
	for _, s := range states {
		if s.Seat.SeatType == model.SeatTypeCouple && s.Seat.CoupleID != nil {
			coupleIDs = append(coupleIDs, *s.Seat.CoupleID)
		}
	}
	freed := append([]uint64(nil), visible...)
	partners, err := e.showSeats.LoadCouplesTx(ctx, tx, t.ShowtimeID, uniqueSorted(coupleIDs))
	if err != nil {
		return nil, nil, err
	}
	for _, p := range partners {
		if !p.Seat.IsVisible {
			freed = append(freed, p.Seat.ID)
		}
	}
	if _, err := e.showSeats.FreeTx(ctx, tx, t.ShowtimeID, freed); err != nil {
		return nil, nil, err
	}

	foods, err := e.tickets.FoodsTx(ctx, tx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range foods {
		if err := e.foods.RestockTx(ctx, tx, f.FoodID, f.Quantity); err != nil {
			return nil, nil, err
		}
	}
	if t.VoucherUsageID != nil {
		if err := e.vouchers.RestoreTx(ctx, tx, *t.VoucherUsageID); err != nil {
			return nil, nil, err
		}
	}
	return visible, freed, nil
}
