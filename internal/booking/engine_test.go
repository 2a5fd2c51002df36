package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events map[uint64][][]SeatUpdate
}

func (b *recordingBroadcaster) SeatsBooked(showtimeID uint64, seats []SeatUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = map[uint64][][]SeatUpdate{}
	}
	b.events[showtimeID] = append(b.events[showtimeID], seats)
}

func (b *recordingBroadcaster) all(showtimeID uint64) [][]SeatUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[showtimeID]
}

type chanPublisher chan queue.TicketBookedEvent

func (p chanPublisher) PublishTicketBooked(_ context.Context, ev queue.TicketBookedEvent) error {
	p <- ev
	return nil
}

type fixture struct {
	db          *sql.DB
	engine      *Engine
	registry    *hold.Registry
	broadcaster *recordingBroadcaster
	showtimeID  uint64
	seat        map[string]uint64
	card        uint64
	cash        uint64
	popcorn     uint64
	nachos      uint64
	voucherID   uint64
	usage       uint64
	bigUsage    uint64
	userID      uint64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	f := &fixture{db: db, userID: 7, seat: map[string]uint64{}}

	roomID := dbtest.Exec(t, db, `INSERT INTO rooms (name, seat_rows, seat_cols) VALUES ('Room 1', 2, 5)`)
	seats := repository.NewSeatRepo(db)
	require.NoError(t, seats.GenerateLayout(ctx, roomID, 2, 5))
	all, err := seats.ListByRoom(ctx, roomID, true)
	require.NoError(t, err)
	for _, s := range all {
		f.seat[s.Label()] = s.ID
	}
	require.NoError(t, seats.PairCouple(ctx, f.seat["B4"], f.seat["B5"]))
	dbtest.Exec(t, db, `UPDATE seats SET seat_type = 'VIP' WHERE id = ?`, f.seat["A5"])
	dbtest.Exec(t, db, `UPDATE seats SET is_active = 0 WHERE id = ?`, f.seat["B1"])

	movieID := dbtest.Exec(t, db, `INSERT INTO movies (title, duration_min) VALUES ('Dune', 120)`)
	f.showtimeID = insertShowtime(t, db, movieID, roomID, "2D", time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC))

	dbtest.Exec(t, db, `INSERT INTO price_rules (seat_type, format, price) VALUES ('NORMAL', '2D', '10.00')`)
	dbtest.Exec(t, db, `INSERT INTO price_rules (seat_type, format, price) VALUES ('VIP', '2D', '15.00')`)
	dbtest.Exec(t, db, `INSERT INTO price_rules (seat_type, format, price) VALUES ('COUPLE', '2D', '25.00')`)
	f.card = dbtest.Exec(t, db, `INSERT INTO payment_methods (code, is_active) VALUES ('CARD', 1)`)
	f.cash = dbtest.Exec(t, db, `INSERT INTO payment_methods (code, is_active) VALUES ('CASH', 0)`)
	f.popcorn = dbtest.Exec(t, db, `INSERT INTO foods (name, price, stock, is_active) VALUES ('Popcorn', '4.50', 5, 1)`)
	f.nachos = dbtest.Exec(t, db, `INSERT INTO foods (name, price, stock, is_active) VALUES ('Nachos', '6.00', 5, 0)`)
	f.voucherID = dbtest.Exec(t, db, `INSERT INTO vouchers (code, discount_value) VALUES ('FIVE', '5.00')`)
	f.usage = dbtest.Exec(t, db, `INSERT INTO voucher_usages (voucher_id, user_id) VALUES (?, ?)`, f.voucherID, f.userID)
	big := dbtest.Exec(t, db, `INSERT INTO vouchers (code, discount_value) VALUES ('FIFTY', '50.00')`)
	f.bigUsage = dbtest.Exec(t, db, `INSERT INTO voucher_usages (voucher_id, user_id) VALUES (?, ?)`, big, f.userID)

	f.registry = hold.NewRegistry(4)
	f.broadcaster = &recordingBroadcaster{}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithClaims(f.registry),
		WithBroadcaster(f.broadcaster),
	}
	f.engine = NewEngine(db, append(base, opts...)...)
	return f
}

func insertShowtime(t *testing.T, db *sql.DB, movieID, roomID uint64, format string, start time.Time) uint64 {
	t.Helper()
	ctx := context.Background()
	st := &model.Showtime{
		MovieID:   movieID,
		RoomID:    roomID,
		Format:    format,
		ShowDate:  time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		StartTime: start,
		EndTime:   start.Add(130 * time.Minute),
	}
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repository.NewShowtimeRepo(db).CreateTx(ctx, tx, st))
	require.NoError(t, repository.NewShowSeatRepo(db).CreateForShowtimeTx(ctx, tx, st.ID, roomID))
	require.NoError(t, tx.Commit())
	return st.ID
}

func (f *fixture) request(labels ...string) Request {
	req := Request{ShowtimeID: f.showtimeID, PaymentMethodID: f.card, UserID: f.userID}
	for _, l := range labels {
		req.SeatIDs = append(req.SeatIDs, f.seat[l])
	}
	return req
}

func (f *fixture) status(t *testing.T, label string) string {
	t.Helper()
	var s string
	require.NoError(t, f.db.QueryRow(`SELECT status FROM show_seats WHERE showtime_id = ? AND seat_id = ?`,
		f.showtimeID, f.seat[label]).Scan(&s))
	return s
}

func (f *fixture) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func (f *fixture) stock(t *testing.T, foodID uint64) int {
	return f.count(t, `SELECT stock FROM foods WHERE id = ?`, foodID)
}

func TestFinalize_CommitsEveryRecord(t *testing.T) {
	pub := make(chanPublisher, 1)
	f := newFixture(t, WithPublisher(pub))
	req := f.request("A2", "A1", "A1")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 1}, {FoodID: f.popcorn, Quantity: 1}}
	req.VoucherUsageID = &f.usage

	res, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)

	// 10 + 10 + 2 x 4.50 - 5
	assert.Equal(t, "24.00", res.Ticket.TotalAmount.StringFixed(2))
	assert.Equal(t, "5.00", res.Discount.StringFixed(2))
	assert.Equal(t, []string{"A1", "A2"}, res.SeatLabels)
	assert.Equal(t, model.PaymentPending, res.Ticket.PaymentStatus)
	assert.NotEmpty(t, res.Ticket.Code)
	require.Len(t, res.Foods, 1)
	assert.EqualValues(t, 2, res.Foods[0].Quantity)

	assert.Equal(t, model.SeatStatusOccupied, f.status(t, "A1"))
	assert.Equal(t, model.SeatStatusOccupied, f.status(t, "A2"))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A3"))
	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM ticket_seats WHERE ticket_id = ?`, res.Ticket.ID))
	assert.Equal(t, 3, f.stock(t, f.popcorn))
	assert.Equal(t, 1, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))

	stored, err := repository.NewTicketRepo(f.db).GetByID(context.Background(), res.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "24.00", stored.TotalAmount.StringFixed(2))
	require.NotNil(t, stored.VoucherUsageID)
	assert.Equal(t, f.usage, *stored.VoucherUsageID)

	e, ok := f.registry.Claimant(f.showtimeID, f.seat["A1"])
	require.True(t, ok)
	assert.Equal(t, hold.PhaseBooked, e.Phase)

	events := f.broadcaster.all(f.showtimeID)
	require.Len(t, events, 1)
	assert.Equal(t, []SeatUpdate{
		{SeatID: f.seat["A1"], Status: StatusBooked},
		{SeatID: f.seat["A2"], Status: StatusBooked},
	}, events[0])

	select {
	case ev := <-pub:
		assert.Equal(t, res.Ticket.ID, ev.TicketID)
		assert.Equal(t, []string{"A1", "A2"}, ev.SeatLabels)
		assert.Equal(t, "24.00", ev.TotalAmount)
	case <-time.After(2 * time.Second):
		t.Fatal("ticket.booked event not published")
	}
}

func TestFinalize_SeatAlreadyOccupied(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Finalize(context.Background(), f.request("A1"))
	require.NoError(t, err)

	_, err = f.engine.Finalize(context.Background(), f.request("A1", "A2"))
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, CodeSeatConflict, Code(err))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM tickets`))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A2"))
	assert.Len(t, f.broadcaster.all(f.showtimeID), 1)
}

func TestFinalize_ConcurrentBookingsOfOneSeat(t *testing.T) {
	f := newFixture(t)
	const buyers = 8

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := f.request("A3")
			req.ConnID = fmt.Sprintf("conn-%d", i)
			_, errs[i] = f.engine.Finalize(context.Background(), req)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrSeatConflict)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM ticket_seats WHERE seat_id = ?`, f.seat["A3"]))
}

func TestFinalize_VoucherDiscountFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	req := f.request("A1")
	req.VoucherUsageID = &f.bigUsage

	res, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Ticket.TotalAmount.IsZero())
	assert.Equal(t, "10.00", res.Discount.StringFixed(2))
}

func TestFinalize_ForeignVoucherIsIgnored(t *testing.T) {
	f := newFixture(t)
	req := f.request("A1")
	req.VoucherUsageID = &f.usage
	req.UserID = 99

	res, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Ticket.TotalAmount.StringFixed(2))
	assert.Nil(t, res.Ticket.VoucherUsageID)
	assert.Equal(t, 0, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
}

func TestFinalize_InactiveVoucherIsIgnored(t *testing.T) {
	f := newFixture(t)
	dbtest.Exec(t, f.db, `UPDATE vouchers SET is_active = 0 WHERE id = ?`, f.voucherID)
	req := f.request("A1")
	req.VoucherUsageID = &f.usage

	res, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Ticket.TotalAmount.StringFixed(2))
	assert.True(t, res.Discount.IsZero())
	assert.Nil(t, res.Ticket.VoucherUsageID)
	assert.Equal(t, 0, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM voucher_usages WHERE id = ? AND status = 'ACTIVE'`, f.usage))
}

func TestFinalize_VoucherUsageLimit(t *testing.T) {
	f := newFixture(t)
	second := dbtest.Exec(t, f.db, `INSERT INTO voucher_usages (voucher_id, user_id) VALUES (?, ?)`, f.voucherID, f.userID)

	req := f.request("A1")
	req.VoucherUsageID = &f.usage
	_, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)

	req = f.request("A2")
	req.VoucherUsageID = &second
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, CodeUnavailable, Code(err))

	assert.Equal(t, 1, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM tickets`))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A2"))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM voucher_usages WHERE id = ? AND status = 'ACTIVE'`, second))
}

// The triggers below run inside the booking transaction, after the seats
// were read and before the conditional updates, the way a competing commit
// on another connection would interleave.

func TestFinalize_SeatTakenAfterRead(t *testing.T) {
	f := newFixture(t)
	dbtest.Exec(t, f.db, fmt.Sprintf(`CREATE TRIGGER take_seat AFTER INSERT ON ticket_seats
		BEGIN
			UPDATE show_seats SET status = 'OCCUPIED' WHERE showtime_id = %d AND seat_id = %d;
		END`, f.showtimeID, f.seat["A1"]))

	req := f.request("A1", "A2")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 2}}
	req.VoucherUsageID = &f.usage
	_, err := f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, CodeSeatConflict, Code(err))

	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tickets`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM ticket_seats`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM ticket_foods`))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A2"))
	assert.Equal(t, 5, f.stock(t, f.popcorn))
	assert.Equal(t, 0, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM voucher_usages WHERE id = ? AND status = 'ACTIVE'`, f.usage))
	assert.Empty(t, f.broadcaster.all(f.showtimeID))
}

func TestFinalize_VoucherRedeemedAfterRead(t *testing.T) {
	f := newFixture(t)
	dbtest.Exec(t, f.db, fmt.Sprintf(`CREATE TRIGGER spend_usage AFTER INSERT ON tickets
		BEGIN
			UPDATE voucher_usages SET status = 'USED' WHERE id = %d;
		END`, f.usage))

	req := f.request("A1")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 1}}
	req.VoucherUsageID = &f.usage
	_, err := f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, CodeUnavailable, Code(err))

	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tickets`))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A1"))
	assert.Equal(t, 5, f.stock(t, f.popcorn))
	assert.Equal(t, 0, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM voucher_usages WHERE id = ? AND status = 'ACTIVE'`, f.usage))
	assert.Empty(t, f.broadcaster.all(f.showtimeID))
}

func TestFinalize_InsufficientInventoryRollsBack(t *testing.T) {
	f := newFixture(t)

	req := f.request("A1")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 6}}
	_, err := f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	req.Foods = []FoodItem{{FoodID: f.nachos, Quantity: 1}}
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	req.Foods = []FoodItem{{FoodID: 404, Quantity: 1}}
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tickets`))
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "A1"))
	assert.Equal(t, 5, f.stock(t, f.popcorn))
	assert.Empty(t, f.broadcaster.all(f.showtimeID))
}

func TestFinalize_NoPriceRule(t *testing.T) {
	f := newFixture(t)
	var roomID, movieID uint64
	require.NoError(t, f.db.QueryRow(`SELECT room_id, movie_id FROM showtimes WHERE id = ?`, f.showtimeID).Scan(&roomID, &movieID))
	imax := insertShowtime(t, f.db, movieID, roomID, "IMAX", time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC))

	req := f.request("A1")
	req.ShowtimeID = imax
	_, err := f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoPriceRule)
	assert.Equal(t, CodeNoPriceRule, Code(err))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tickets`))
}

func TestFinalize_Unavailable(t *testing.T) {
	f := newFixture(t)

	req := f.request("A1")
	req.ShowtimeID = 999
	_, err := f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)

	req = f.request("A1")
	req.PaymentMethodID = f.cash
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)

	late := NewEngine(f.db, WithClock(func() time.Time { return time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC) }))
	_, err = late.Finalize(context.Background(), f.request("A1"))
	assert.ErrorIs(t, err, ErrUnavailable)

	dbtest.Exec(t, f.db, `UPDATE showtimes SET status = 'CANCELLED' WHERE id = ?`, f.showtimeID)
	_, err = f.engine.Finalize(context.Background(), f.request("A1"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, CodeUnavailable, Code(err))
}

func TestFinalize_InactiveAndUnknownSeats(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Finalize(context.Background(), f.request("B1"))
	assert.ErrorIs(t, err, ErrSeatConflict)

	req := f.request("A1")
	req.SeatIDs = append(req.SeatIDs, 9999)
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrSeatConflict)

	_, err = f.engine.Finalize(context.Background(), Request{ShowtimeID: f.showtimeID, PaymentMethodID: f.card, UserID: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = f.request("A1")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 0}}
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFinalize_CoupleSeatTakesHiddenPartner(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Finalize(context.Background(), f.request("B5"))
	assert.ErrorIs(t, err, ErrSeatConflict, "hidden unit cannot be booked directly")

	res, err := f.engine.Finalize(context.Background(), f.request("B4"))
	require.NoError(t, err)
	require.Len(t, res.Seats, 1)
	assert.Equal(t, "25.00", res.Seats[0].Price.StringFixed(2))
	assert.Equal(t, model.SeatStatusOccupied, f.status(t, "B4"))
	assert.Equal(t, model.SeatStatusOccupied, f.status(t, "B5"))

	events := f.broadcaster.all(f.showtimeID)
	require.Len(t, events, 1)
	assert.Equal(t, []SeatUpdate{{SeatID: f.seat["B4"], Status: StatusBooked}}, events[0])
}

func TestFinalize_CoupleWithTakenPartnerConflicts(t *testing.T) {
	f := newFixture(t)
	dbtest.Exec(t, f.db, `UPDATE show_seats SET status = 'OCCUPIED' WHERE showtime_id = ? AND seat_id = ?`, f.showtimeID, f.seat["B5"])

	_, err := f.engine.Finalize(context.Background(), f.request("B4"))
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Equal(t, model.SeatStatusAvailable, f.status(t, "B4"))
}

func TestFinalize_RespectsEphemeralHolds(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Hold(f.showtimeID, f.seat["A1"], "conn-x")
	require.NoError(t, err)

	req := f.request("A1")
	req.ConnID = "conn-y"
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrHoldConflict)
	assert.Equal(t, CodeHoldConflict, Code(err))

	req.ConnID = ""
	_, err = f.engine.Finalize(context.Background(), req)
	assert.ErrorIs(t, err, ErrHoldConflict)

	_, err = f.registry.Promote(f.showtimeID, "conn-x")
	require.NoError(t, err)
	req.ConnID = "conn-x"
	_, err = f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)

	e, ok := f.registry.Claimant(f.showtimeID, f.seat["A1"])
	require.True(t, ok)
	assert.Equal(t, hold.PhaseBooked, e.Phase)
	assert.Empty(t, f.registry.PendingSeats(f.showtimeID, "conn-x"))
}

func TestApplyPaymentVerdict_DeclineCompensates(t *testing.T) {
	f := newFixture(t)
	req := f.request("A1", "B4")
	req.Foods = []FoodItem{{FoodID: f.popcorn, Quantity: 2}}
	req.VoucherUsageID = &f.usage
	res, err := f.engine.Finalize(context.Background(), req)
	require.NoError(t, err)

	ticket, err := f.engine.ApplyPaymentVerdict(context.Background(), res.Ticket.ID, Verdict{Approved: false, Reference: "gw-1"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, ticket.PaymentStatus)
	assert.Equal(t, model.BookingCancelled, ticket.BookingStatus)

	for _, l := range []string{"A1", "B4", "B5"} {
		assert.Equal(t, model.SeatStatusAvailable, f.status(t, l), l)
	}
	assert.Equal(t, 5, f.stock(t, f.popcorn))
	assert.Equal(t, 0, f.count(t, `SELECT used_count FROM vouchers WHERE id = ?`, f.voucherID))
	_, ok := f.registry.Claimant(f.showtimeID, f.seat["B5"])
	assert.False(t, ok)

	events := f.broadcaster.all(f.showtimeID)
	require.Len(t, events, 2)
	assert.Equal(t, []SeatUpdate{
		{SeatID: f.seat["A1"], Status: StatusAvailable},
		{SeatID: f.seat["B4"], Status: StatusAvailable},
	}, events[1])

	_, err = f.engine.ApplyPaymentVerdict(context.Background(), res.Ticket.ID, Verdict{Approved: true})
	assert.ErrorIs(t, err, ErrTicketSettled)

	// The freed seats can be sold again.
	_, err = f.engine.Finalize(context.Background(), f.request("B4"))
	require.NoError(t, err)
}

func TestApplyPaymentVerdict_Approve(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Finalize(context.Background(), f.request("A1"))
	require.NoError(t, err)

	ticket, err := f.engine.ApplyPaymentVerdict(context.Background(), res.Ticket.ID, Verdict{Approved: true, Reference: "gw-42"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, ticket.PaymentStatus)
	assert.Equal(t, model.BookingConfirmed, ticket.BookingStatus)

	stored, err := repository.NewTicketRepo(f.db).GetByID(context.Background(), res.Ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "gw-42", *stored.PaymentRef)
	assert.Equal(t, model.SeatStatusOccupied, f.status(t, "A1"))

	_, err = f.engine.ApplyPaymentVerdict(context.Background(), res.Ticket.ID, Verdict{Approved: false})
	assert.ErrorIs(t, err, ErrTicketSettled)

	_, err = f.engine.ApplyPaymentVerdict(context.Background(), 12345, Verdict{Approved: true})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
}

func TestCode(t *testing.T) {
	cases := map[error]string{
		nil:                                    "",
		fmt.Errorf("x: %w", ErrHoldConflict):   CodeHoldConflict,
		fmt.Errorf("x: %w", ErrSeatConflict):   CodeSeatConflict,
		fmt.Errorf("x: %w", ErrUnavailable):    CodeUnavailable,
		ErrInsufficientInventory:               CodeInsufficientInventory,
		ErrNoPriceRule:                         CodeNoPriceRule,
		ErrTicketSettled:                       CodeTicketSettled,
		errors.New("driver: connection reset"): CodeInternal,
	}
	for err, want := range cases {
		assert.Equal(t, want, Code(err), "%v", err)
	}
}

func TestCheckShowtime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.engine.CheckShowtime(ctx, f.showtimeID))
	assert.ErrorIs(t, f.engine.CheckShowtime(ctx, 9999), ErrUnavailable)

	dbtest.Exec(t, f.db, `UPDATE showtimes SET is_deleted = 1 WHERE id = ?`, f.showtimeID)
	assert.ErrorIs(t, f.engine.CheckShowtime(ctx, f.showtimeID), ErrUnavailable)
}
