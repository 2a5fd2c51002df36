package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

// ShowtimeHandler exposes scheduling to owners and the daily listing of a
// room to everyone.
type ShowtimeHandler struct {
	Scheduler *schedule.Service
	Rooms     *repository.RoomRepo
	Showtimes *repository.ShowtimeRepo
	Location  *time.Location // the cinema's local time; dates are local
}

type showtimeView struct {
	ID        uint64    `json:"id"`
	MovieID   uint64    `json:"movieId"`
	RoomID    uint64    `json:"roomId"`
	Format    string    `json:"format"`
	ShowDate  string    `json:"showDate"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`
}

func newShowtimeView(st *model.Showtime) showtimeView {
	return showtimeView{
		ID:        st.ID,
		MovieID:   st.MovieID,
		RoomID:    st.RoomID,
		Format:    st.Format,
		ShowDate:  st.ShowDate.Format(time.DateOnly),
		StartTime: st.StartTime,
		EndTime:   st.EndTime,
		Status:    st.Status,
	}
}

// Create handles POST /v1/showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var body struct {
		MovieID   uint64 `json:"movieId"`
		RoomID    uint64 `json:"roomId"`
		Format    string `json:"format"`
		StartTime string `json:"startTime"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.MovieID == 0 || body.RoomID == 0 {
		return badRequest(c, "movieId and roomId are required")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(body.StartTime))
	if err != nil {
		return badRequest(c, "startTime must be RFC3339")
	}
	st, err := h.Scheduler.Create(c.Request().Context(), schedule.CreateInput{
		MovieID: body.MovieID,
		RoomID:  body.RoomID,
		Format:  strings.ToUpper(strings.TrimSpace(body.Format)),
		Start:   start,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newShowtimeView(st))
}

// Reschedule handles PATCH /v1/showtimes/:id.  An empty format keeps the
// current one.
func (h *ShowtimeHandler) Reschedule(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var body struct {
		Format    string `json:"format"`
		StartTime string `json:"startTime"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(body.StartTime))
	if err != nil {
		return badRequest(c, "startTime must be RFC3339")
	}
	st, err := h.Scheduler.Reschedule(c.Request().Context(), id, start, strings.ToUpper(strings.TrimSpace(body.Format)))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newShowtimeView(st))
}

// ListByRoom handles GET /v1/rooms/:id/showtimes?date=YYYY-MM-DD.  The
// date defaults to today in the cinema's location.
func (h *ShowtimeHandler) ListByRoom(c echo.Context) error {
	roomID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	day := time.Now().In(loc)
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = d
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		return writeError(c, err)
	}
	// every showtime intersecting the local day, in start order
	list, err := h.Showtimes.FindOverlapping(ctx, roomID, 0, from, to)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]showtimeView, 0, len(list))
	for i := range list {
		out = append(out, newShowtimeView(&list[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"roomId": roomID, "date": from.Format(time.DateOnly), "items": out})
}
