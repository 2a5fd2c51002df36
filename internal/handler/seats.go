package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/hold"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// Seat map states as shown to clients.  Durable status wins over claims.
const (
	mapAvailable = "available"
	mapHeld      = "held"
	mapPending   = "pending"
	mapBooked    = "booked"
	mapInactive  = "inactive"
)

// SeatHandler serves the room seat directory and per-showtime seat maps.
type SeatHandler struct {
	Rooms     *repository.RoomRepo
	Seats     *repository.SeatRepo
	ShowSeats *repository.ShowSeatRepo
	Showtimes *repository.ShowtimeRepo
	Claims    *hold.Registry
}

type seatView struct {
	ID       uint64  `json:"id"`
	Row      string  `json:"row"`
	Number   uint32  `json:"number"`
	Label    string  `json:"label"`
	Type     string  `json:"type"`
	CoupleID *uint64 `json:"coupleId,omitempty"`
	Active   bool    `json:"active"`
	Status   string  `json:"status,omitempty"`
}

func newSeatView(s model.Seat) seatView {
	return seatView{
		ID:       s.ID,
		Row:      s.RowLabel,
		Number:   s.SeatNumber,
		Label:    s.Label(),
		Type:     s.SeatType,
		CoupleID: s.CoupleID,
		Active:   s.IsActive,
	}
}

// RoomSeats handles GET /v1/rooms/:id/seats.  Hidden couple units are
// never listed.
func (h *SeatHandler) RoomSeats(c echo.Context) error {
	roomID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		return writeError(c, err)
	}
	seats, err := h.Seats.ListByRoom(ctx, roomID, false)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]seatView, 0, len(seats))
	for _, s := range seats {
		out = append(out, newSeatView(s))
	}
	return c.JSON(http.StatusOK, map[string]any{"roomId": roomID, "seats": out})
}

// ShowtimeSeats handles GET /v1/showtimes/:id/seats: durable status with
// the live claims laid over available seats.
func (h *SeatHandler) ShowtimeSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx := c.Request().Context()
	st, err := h.Showtimes.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if st.IsDeleted {
		return writeError(c, repository.ErrNotFound)
	}
	states, err := h.ShowSeats.ListByShowtime(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	claimed := map[uint64]hold.Phase{}
	if h.Claims != nil {
		snap := h.Claims.Snapshot(id)
		for _, e := range snap.Holds {
			claimed[e.SeatID] = e.Phase
		}
		for _, e := range snap.Pending {
			claimed[e.SeatID] = e.Phase
		}
	}

	out := make([]seatView, 0, len(states))
	for _, s := range states {
		v := newSeatView(s.Seat)
		v.Status = mapStatus(s.Status, claimed[s.Seat.ID])
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"showtimeId": id,
		"roomId":     st.RoomID,
		"seats":      out,
	})
}

func mapStatus(durable string, phase hold.Phase) string {
	switch durable {
	case model.SeatStatusOccupied:
		return mapBooked
	case model.SeatStatusInactive:
		return mapInactive
	}
	switch phase {
	case hold.PhaseHeld:
		return mapHeld
	case hold.PhaseProcessing:
		return mapPending
	case hold.PhaseBooked:
		return mapBooked
	}
	return mapAvailable
}

// RoomHandler covers room setup: creating a room with its seat grid and
// pairing couple seats.
type RoomHandler struct {
	Rooms *repository.RoomRepo
	Seats *repository.SeatRepo
}

// CreateRoom handles POST /v1/rooms.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
		Rows uint32 `json:"rows"`
		Cols uint32 `json:"cols"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Name == "" || body.Rows == 0 || body.Cols == 0 || body.Rows > 26*27 || body.Cols > 99 {
		return badRequest(c, "name, rows (1-702) and cols (1-99) are required")
	}
	ctx := c.Request().Context()
	room := &model.Room{Name: body.Name, SeatRows: body.Rows, SeatCols: body.Cols, IsActive: true}
	if err := h.Rooms.Create(ctx, room); err != nil {
		return writeError(c, err)
	}
	if err := h.Seats.GenerateLayout(ctx, room.ID, body.Rows, body.Cols); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id": room.ID, "name": room.Name, "rows": room.SeatRows, "cols": room.SeatCols,
	})
}

// PairCouple handles POST /v1/rooms/:id/couples.
func (h *RoomHandler) PairCouple(c echo.Context) error {
	roomID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body struct {
		VisibleSeatID uint64 `json:"visibleSeatId"`
		HiddenSeatID  uint64 `json:"hiddenSeatId"`
	}
	if err := c.Bind(&body); err != nil || body.VisibleSeatID == 0 || body.HiddenSeatID == 0 {
		return badRequest(c, "visibleSeatId and hiddenSeatId are required")
	}
	ctx := c.Request().Context()
	seats, err := h.Seats.ListByRoom(ctx, roomID, true)
	if err != nil {
		return writeError(c, err)
	}
	found := 0
	for _, s := range seats {
		if s.ID == body.VisibleSeatID || s.ID == body.HiddenSeatID {
			found++
		}
	}
	if found != 2 {
		return writeError(c, fmt.Errorf("%w: both seats must belong to room %d", repository.ErrNotFound, roomID))
	}
	if err := h.Seats.PairCouple(ctx, body.VisibleSeatID, body.HiddenSeatID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
