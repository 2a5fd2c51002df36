// Package booking implements the booking transaction engine: it prices an
// order and writes the ticket, its line items, the seat status flips, the
// inventory decrements and the voucher redemption in one transaction.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/metrics"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// Seat statuses carried by SeatUpdate.
const (
	StatusBooked    = "booked"
	StatusAvailable = "available"
)

// SeatUpdate is one entry of a seatsBooked broadcast.
type SeatUpdate struct {
	SeatID uint64 `json:"seatId"`
	Status string `json:"status"`
}

// Claims is the part of the hold registry the engine depends on.
type Claims interface {
	Claimant(showtimeID, seatID uint64) (hold.Entry, bool)
	MarkBooked(showtimeID uint64, seatIDs []uint64, connID string) error
	Unbook(showtimeID uint64, seatIDs []uint64) error
}

// Broadcaster fans committed seat changes out to a showtime's viewers.
type Broadcaster interface {
	SeatsBooked(showtimeID uint64, seats []SeatUpdate)
}

// EventPublisher emits the ticket.booked integration event.
type EventPublisher interface {
	PublishTicketBooked(ctx context.Context, ev queue.TicketBookedEvent) error
}

// FoodItem is one requested food line.
type FoodItem struct {
	FoodID   uint64 `json:"foodId"`
	Quantity uint32 `json:"quantity"`
}

// Request is the input of Finalize.  ConnID is the realtime connection
// that holds the seats, empty when the booking does not come through one.
type Request struct {
	ShowtimeID      uint64
	SeatIDs         []uint64
	Foods           []FoodItem
	PaymentMethodID uint64
	VoucherUsageID  *uint64
	UserID          uint64
	ConnID          string
}

// Result is a committed booking.
type Result struct {
	Ticket     model.Ticket
	Seats      []model.TicketSeat
	Foods      []model.TicketFood
	SeatLabels []string
	Discount   decimal.Decimal
}

// Engine executes bookings.  The zero-valued collaborators (claims,
// broadcaster, publisher) are optional.
type Engine struct {
	db        *sql.DB
	showtimes *repository.ShowtimeRepo
	showSeats *repository.ShowSeatRepo
	tickets   *repository.TicketRepo
	foods     *repository.FoodRepo
	vouchers  *repository.VoucherRepo
	prices    *repository.PriceRuleRepo
	methods   *repository.PaymentMethodRepo

	claims      Claims
	broadcaster Broadcaster
	publisher   EventPublisher
	now         func() time.Time
	publishWait time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClaims enables the ephemeral pre-check and the post-commit registry update.
func WithClaims(c Claims) Option { return func(e *Engine) { e.claims = c } }

// WithBroadcaster sets the realtime fan-out.
func WithBroadcaster(b Broadcaster) Option { return func(e *Engine) { e.broadcaster = b } }

// WithPublisher sets the broker publisher.
func WithPublisher(p EventPublisher) Option { return func(e *Engine) { e.publisher = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine builds an Engine over db.
func NewEngine(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		showtimes:   repository.NewShowtimeRepo(db),
		showSeats:   repository.NewShowSeatRepo(db),
		tickets:     repository.NewTicketRepo(db),
		foods:       repository.NewFoodRepo(db),
		vouchers:    repository.NewVoucherRepo(db),
		prices:      repository.NewPriceRuleRepo(db),
		methods:     repository.NewPaymentMethodRepo(db),
		now:         time.Now,
		publishWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetBroadcaster installs the fan-out after construction; the realtime
// hub and the engine reference each other.
func (e *Engine) SetBroadcaster(b Broadcaster) { e.broadcaster = b }

// CheckShowtime reports ErrUnavailable unless the showtime exists and is
// still open for booking.  The realtime gateway uses it to vet joins.
func (e *Engine) CheckShowtime(ctx context.Context, showtimeID uint64) error {
	st, err := e.showtimes.GetByID(ctx, showtimeID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: showtime %d not found", ErrUnavailable, showtimeID)
	}
	if err != nil {
		return err
	}
	if st.IsDeleted || st.Status != model.ShowtimeScheduled || !e.now().Before(st.StartTime) {
		return fmt.Errorf("%w: showtime %d is not open for booking", ErrUnavailable, showtimeID)
	}
	return nil
}

// Finalize books the requested seats and food for the user.
func (e *Engine) Finalize(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, err := e.finalize(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = Code(err)
	}
	metrics.TrackBooking(outcome, time.Since(started))
	return res, err
}

func (e *Engine) finalize(ctx context.Context, req Request) (*Result, error) {
	seatIDs := uniqueSorted(req.SeatIDs)
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: no seats requested", ErrInvalidRequest)
	}
	foodLines, err := mergeFoods(req.Foods)
	if err != nil {
		return nil, err
	}

	if e.claims != nil {
		for _, id := range seatIDs {
			c, ok := e.claims.Claimant(req.ShowtimeID, id)
			if ok && c.Phase != hold.PhaseBooked && c.ConnID != req.ConnID {
				return nil, fmt.Errorf("%w: seat %d", ErrHoldConflict, id)
			}
		}
	}

	now := e.now().UTC()
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

	st, err := e.showtimes.GetByIDTx(ctx, tx, req.ShowtimeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: showtime %d not found", ErrUnavailable, req.ShowtimeID)
	}
	if err != nil {
		return nil, err
	}
	if st.IsDeleted || st.Status != model.ShowtimeScheduled || !now.Before(st.StartTime) {
		return nil, fmt.Errorf("%w: showtime %d is not open for booking", ErrUnavailable, st.ID)
	}

	pm, err := e.methods.GetByIDTx(ctx, tx, req.PaymentMethodID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !pm.IsActive) {
		return nil, fmt.Errorf("%w: payment method %d is not accepted", ErrUnavailable, req.PaymentMethodID)
	}
	if err != nil {
		return nil, err
	}

	requested, occupy, err := e.resolveSeats(ctx, tx, st.ID, seatIDs)
	if err != nil {
		return nil, err
	}

	foodsByID, err := e.foods.GetByIDsTx(ctx, tx, foodIDs(foodLines))
	if err != nil {
		return nil, err
	}
	ticketFoods := make([]model.TicketFood, 0, len(foodLines))
	eventFoods := make([]queue.FoodLine, 0, len(foodLines))
	foodTotal := decimal.Zero
	for _, line := range foodLines {
		f, ok := foodsByID[line.FoodID]
		if !ok || !f.IsActive || line.Quantity > f.Stock {
			return nil, fmt.Errorf("%w: food %d x%d", ErrInsufficientInventory, line.FoodID, line.Quantity)
		}
		ticketFoods = append(ticketFoods, model.TicketFood{FoodID: f.ID, UnitPrice: f.Price, Quantity: line.Quantity})
		eventFoods = append(eventFoods, queue.FoodLine{FoodID: f.ID, Name: f.Name, Quantity: line.Quantity, UnitPrice: f.Price.String()})
		foodTotal = foodTotal.Add(f.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	prices, err := e.prices.PricesForFormatTx(ctx, tx, st.Format)
	if err != nil {
		return nil, err
	}
	ticketSeats := make([]model.TicketSeat, 0, len(requested))
	labels := make([]string, 0, len(requested))
	seatTotal := decimal.Zero
	for _, s := range requested {
		price, ok := prices[s.Seat.SeatType]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoPriceRule, s.Seat.SeatType, st.Format)
		}
		ticketSeats = append(ticketSeats, model.TicketSeat{SeatID: s.Seat.ID, Price: price})
		labels = append(labels, s.Seat.Label())
		seatTotal = seatTotal.Add(price)
	}

	total := seatTotal.Add(foodTotal)
	discount := decimal.Zero
	var usage *model.VoucherUsage
	if req.VoucherUsageID != nil {
		u, err := e.vouchers.GetUsageTx(ctx, tx, *req.VoucherUsageID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// a usage of another user or of a deactivated voucher gives no discount
		if err == nil && u.Status == model.VoucherUsageActive && u.UserID == req.UserID && u.VoucherActive {
			usage = u
			discount = decimal.Min(u.DiscountValue, total)
			total = total.Sub(discount)
		}
	}
	if total.IsNegative() {
		total = decimal.Zero
	}

	ticket := model.Ticket{
		Code:            uuid.NewString(),
		UserID:          req.UserID,
		ShowtimeID:      st.ID,
		PaymentMethodID: pm.ID,
		TotalAmount:     total,
		PaymentStatus:   model.PaymentPending,
		BookingStatus:   model.BookingPending,
		BookingDate:     now.Truncate(time.Second),
	}
	if usage != nil {
		id := usage.ID
		ticket.VoucherUsageID = &id
	}
	if err := e.tickets.CreateTx(ctx, tx, &ticket); err != nil {
		return nil, err
	}
	for i := range ticketSeats {
		ticketSeats[i].TicketID = ticket.ID
	}
	for i := range ticketFoods {
		ticketFoods[i].TicketID = ticket.ID
	}
	if err := e.tickets.CreateSeatsBulkTx(ctx, tx, ticketSeats); err != nil {
		return nil, err
	}
	if err := e.tickets.CreateFoodsBulkTx(ctx, tx, ticketFoods); err != nil {
		return nil, err
	}

	n, err := e.showSeats.OccupyTx(ctx, tx, st.ID, occupy)
	if err != nil {
		return nil, err
	}
	if n != int64(len(occupy)) {
		return nil, fmt.Errorf("%w: %d of %d seats could be occupied", ErrSeatConflict, n, len(occupy))
	}
	for _, f := range ticketFoods {
		ok, err := e.foods.DecrementStockTx(ctx, tx, f.FoodID, f.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: food %d x%d", ErrInsufficientInventory, f.FoodID, f.Quantity)
		}
	}
	if usage != nil {
		ok, err := e.vouchers.RedeemTx(ctx, tx, usage, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: voucher usage %d cannot be redeemed", ErrUnavailable, usage.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	res := &Result{Ticket: ticket, Seats: ticketSeats, Foods: ticketFoods, SeatLabels: labels, Discount: discount}
	e.afterCommit(st, occupy, seatIDs, req.ConnID, res, eventFoods)
	return res, nil
}

// resolveSeats loads the requested seats and the hidden partners of any
// couple seats.  It returns the requested seats in id order and the full
// list of ids whose status must flip.
func (e *Engine) resolveSeats(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]repository.SeatState, []uint64, error) {
	states, err := e.showSeats.LoadTx(ctx, tx, showtimeID, seatIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(states) != len(seatIDs) {
		return nil, nil, fmt.Errorf("%w: %d of %d seats belong to showtime %d", ErrSeatConflict, len(states), len(seatIDs), showtimeID)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Seat.ID < states[j].Seat.ID })

	requested := make(map[uint64]bool, len(states))
	coupleIDs := make([]uint64, 0)
	for _, s := range states {
		if !bookable(s) || !s.Seat.IsVisible {
			return nil, nil, fmt.Errorf("%w: seat %d is %s", ErrSeatConflict, s.Seat.ID, s.Status)
		}
		requested[s.Seat.ID] = true
		if s.Seat.SeatType == model.SeatTypeCouple && s.Seat.CoupleID != nil {
			coupleIDs = append(coupleIDs, *s.Seat.CoupleID)
		}
	}

	occupy := append([]uint64(nil), seatIDs...)
	partners, err := e.showSeats.LoadCouplesTx(ctx, tx, showtimeID, uniqueSorted(coupleIDs))
	if err != nil {
		return nil, nil, err
	}
	for _, p := range partners {
		if requested[p.Seat.ID] {
			continue
		}
		if !bookable(p) {
			return nil, nil, fmt.Errorf("%w: couple partner %d is %s", ErrSeatConflict, p.Seat.ID, p.Status)
		}
		occupy = append(occupy, p.Seat.ID)
	}
	return states, occupy, nil
}

func bookable(s repository.SeatState) bool {
	return s.Seat.IsActive && s.Status == model.SeatStatusAvailable
}

func (e *Engine) afterCommit(st *model.Showtime, occupy, visible []uint64, connID string, res *Result, foods []queue.FoodLine) {
	if e.claims != nil {
		if err := e.claims.MarkBooked(st.ID, occupy, connID); err != nil {
			log.Printf("booking: mark booked showtime=%d: %v", st.ID, err)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.SeatsBooked(st.ID, seatUpdates(visible, StatusBooked))
	}
	if e.publisher != nil {
		ev := queue.TicketBookedEvent{
			TicketID:    res.Ticket.ID,
			TicketCode:  res.Ticket.Code,
			UserID:      res.Ticket.UserID,
			ShowtimeID:  st.ID,
			RoomID:      st.RoomID,
			Format:      st.Format,
			StartsAt:    st.StartTime.UTC().Format(time.RFC3339),
			SeatLabels:  res.SeatLabels,
			Foods:       foods,
			TotalAmount: res.Ticket.TotalAmount.StringFixed(2),
			BookedAt:    res.Ticket.BookingDate.UTC().Format(time.RFC3339),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.publishWait)
			defer cancel()
			if err := e.publisher.PublishTicketBooked(ctx, ev); err != nil {
				log.Printf("booking: publish ticket.booked ticket=%d: %v", ev.TicketID, err)
			}
		}()
	}
}

func seatUpdates(ids []uint64, status string) []SeatUpdate {
	out := make([]SeatUpdate, 0, len(ids))
	for _, id := range ids {
		out = append(out, SeatUpdate{SeatID: id, Status: status})
	}
	return out
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// mergeFoods sums quantities of repeated food ids and rejects zero quantities.
func mergeFoods(items []FoodItem) ([]FoodItem, error) {
	idx := make(map[uint64]int, len(items))
	out := make([]FoodItem, 0, len(items))
	for _, it := range items {
		if it.Quantity == 0 {
			return nil, fmt.Errorf("%w: food %d has zero quantity", ErrInvalidRequest, it.FoodID)
		}
		if i, ok := idx[it.FoodID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.FoodID] = len(out)
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FoodID < out[j].FoodID })
	return out, nil
}

func foodIDs(items []FoodItem) []uint64 {
	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.FoodID)
	}
	return ids
}
