// Package schedule places showtimes in rooms.  It enforces the daily
// opening window and keeps non-deleted showtimes of one room from
// overlapping, then persists the result together with the per-showtime
// seat inventory.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// TurnoverBuffer is added after the movie so the room can be cleaned.
const TurnoverBuffer = 10 * time.Minute

var (
	// ErrScheduleOverlap means the slot intersects another showtime in the room.
	ErrScheduleOverlap = errors.New("showtime overlaps an existing showtime in the room")
	// ErrOutsideWindow means the start is outside the daily opening window.
	ErrOutsideWindow = errors.New("showtime starts outside the opening window")
)

// OverlapFinder is the query Plan needs from the showtime store.
type OverlapFinder interface {
	FindOverlapping(ctx context.Context, roomID, excludeID uint64, start, end time.Time) ([]model.Showtime, error)
}

// Slot is a validated placement.
type Slot struct {
	Start    time.Time
	End      time.Time
	ShowDate time.Time
}

// Planner validates candidate slots.
type Planner struct {
	store   OverlapFinder
	loc     *time.Location
	opensAt time.Duration
	closeAt time.Duration
}

// NewPlanner builds a Planner.  opensAt and closesAt are wall-clock times
// of day in loc, e.g. 8h30m and 23h; both ends are allowed start times.
func NewPlanner(store OverlapFinder, loc *time.Location, opensAt, closesAt time.Duration) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{store: store, loc: loc, opensAt: opensAt, closeAt: closesAt}
}

// Plan computes end = start + duration + TurnoverBuffer and checks the
// window and the room.  excludeID (non-zero on reschedule) is the
// showtime being moved, which must not collide with itself.
func (p *Planner) Plan(ctx context.Context, roomID uint64, start time.Time, duration time.Duration, excludeID uint64) (Slot, error) {
	local := start.In(p.loc)
	// wall-clock time, which differs from time since midnight on DST days
	clock := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if clock < p.opensAt || clock > p.closeAt {
		return Slot{}, fmt.Errorf("%w: %s", ErrOutsideWindow, local.Format("15:04"))
	}

	slot := Slot{
		Start:    start.UTC(),
		End:      start.Add(duration + TurnoverBuffer).UTC(),
		ShowDate: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
	}
	overlaps, err := p.store.FindOverlapping(ctx, roomID, excludeID, slot.Start, slot.End)
	if err != nil {
		return Slot{}, err
	}
	if len(overlaps) > 0 {
		o := overlaps[0]
		return Slot{}, fmt.Errorf("%w: showtime %d runs %s-%s", ErrScheduleOverlap, o.ID,
			o.StartTime.In(p.loc).Format("15:04"), o.EndTime.In(p.loc).Format("15:04"))
	}
	return slot, nil
}
