package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

/* -------- OverlapFinder -------- */

type MockOverlapFinder struct {
	mock.Mock
}

func (m *MockOverlapFinder) FindOverlapping(ctx context.Context, roomID, excludeID uint64, start, end time.Time) ([]model.Showtime, error) {
	args := m.Called(ctx, roomID, excludeID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Showtime), args.Error(1)
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func newPlanner(store OverlapFinder) *Planner {
	return NewPlanner(store, time.UTC, 8*time.Hour+30*time.Minute, 23*time.Hour)
}

func TestPlan_RejectsOverlapAndAcceptsAdjacent(t *testing.T) {
	ctx := context.Background()
	existing := model.Showtime{ID: 1, RoomID: 5, StartTime: at(18, 0), EndTime: at(20, 10)}
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(5), uint64(0), at(19, 0), at(21, 10)).
		Return([]model.Showtime{existing}, nil)
	store.On("FindOverlapping", ctx, uint64(5), uint64(0), at(20, 10), at(22, 20)).
		Return([]model.Showtime{}, nil)

	p := newPlanner(store)

	_, err := p.Plan(ctx, 5, at(19, 0), 2*time.Hour, 0)
	assert.ErrorIs(t, err, ErrScheduleOverlap)

	slot, err := p.Plan(ctx, 5, at(20, 10), 2*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, at(22, 20), slot.End)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), slot.ShowDate)

	store.AssertExpectations(t)
}

func TestPlan_PassesExcludeID(t *testing.T) {
	ctx := context.Background()
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(5), uint64(9), at(18, 30), at(20, 40)).
		Return([]model.Showtime{}, nil)

	_, err := newPlanner(store).Plan(ctx, 5, at(18, 30), 2*time.Hour, 9)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestPlan_Window(t *testing.T) {
	ctx := context.Background()
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(1), uint64(0), mock.Anything, mock.Anything).
		Return([]model.Showtime{}, nil)
	p := newPlanner(store)

	cases := []struct {
		start time.Time
		ok    bool
	}{
		{at(8, 29), false},
		{at(8, 30), true},
		{at(12, 0), true},
		{at(23, 0), true},
		{at(23, 1), false},
		{at(2, 0), false},
	}
	for _, c := range cases {
		_, err := p.Plan(ctx, 1, c.start, 90*time.Minute, 0)
		if c.ok {
			assert.NoError(t, err, c.start.Format("15:04"))
		} else {
			assert.ErrorIs(t, err, ErrOutsideWindow, c.start.Format("15:04"))
		}
	}
	store.AssertNumberOfCalls(t, "FindOverlapping", 3)
}

func TestPlan_WindowUsesConfiguredLocation(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("ICT", 7*60*60)
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(1), uint64(0), mock.Anything, mock.Anything).
		Return([]model.Showtime{}, nil)
	p := NewPlanner(store, loc, 8*time.Hour+30*time.Minute, 23*time.Hour)

	// 02:00 UTC is 09:00 in ICT.
	slot, err := p.Plan(ctx, 1, at(2, 0), time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), slot.ShowDate)

	// 17:00 UTC is 00:00 the next day in ICT.
	_, err = p.Plan(ctx, 1, at(17, 0), time.Hour, 0)
	assert.ErrorIs(t, err, ErrOutsideWindow)
}

func TestPlan_WindowOnDSTTransitionDays(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(1), uint64(0), mock.Anything, mock.Anything).
		Return([]model.Showtime{}, nil)
	p := NewPlanner(store, loc, 8*time.Hour+30*time.Minute, 23*time.Hour)

	cases := []struct {
		name  string
		start time.Time
		ok    bool
	}{
		{"spring forward 09:00", time.Date(2026, 3, 8, 9, 0, 0, 0, loc), true},
		{"spring forward 08:30", time.Date(2026, 3, 8, 8, 30, 0, 0, loc), true},
		{"spring forward 08:00", time.Date(2026, 3, 8, 8, 0, 0, 0, loc), false},
		{"spring forward 23:00", time.Date(2026, 3, 8, 23, 0, 0, 0, loc), true},
		{"fall back 22:30", time.Date(2026, 11, 1, 22, 30, 0, 0, loc), true},
		{"fall back 23:00", time.Date(2026, 11, 1, 23, 0, 0, 0, loc), true},
		{"fall back 23:30", time.Date(2026, 11, 1, 23, 30, 0, 0, loc), false},
		{"fall back 08:30", time.Date(2026, 11, 1, 8, 30, 0, 0, loc), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slot, err := p.Plan(ctx, 1, tc.start.UTC(), time.Hour, 0)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrOutsideWindow)
				return
			}
			require.NoError(t, err)
			y, m, d := tc.start.Date()
			assert.Equal(t, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), slot.ShowDate)
		})
	}
}

func TestPlan_StoreErrorPropagates(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("db down")
	store := new(MockOverlapFinder)
	store.On("FindOverlapping", ctx, uint64(1), uint64(0), mock.Anything, mock.Anything).Return(nil, boom)

	_, err := newPlanner(store).Plan(ctx, 1, at(10, 0), time.Hour, 0)
	assert.ErrorIs(t, err, boom)
}

/* -------- Retention -------- */

type MockExpiredStore struct {
	mock.Mock
}

func (m *MockExpiredStore) ListExpired(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockExpiredStore) SoftDelete(ctx context.Context, id uint64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type forgetCounter struct{ ids []uint64 }

func (f *forgetCounter) Forget(id uint64) int {
	f.ids = append(f.ids, id)
	return 0
}

func TestRetention_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := at(12, 0)
	store := new(MockExpiredStore)
	store.On("ListExpired", ctx, now.Add(-24*time.Hour)).Return([]uint64{3, 4}, nil)
	store.On("SoftDelete", ctx, uint64(3)).Return(true, nil)
	store.On("SoftDelete", ctx, uint64(4)).Return(false, nil)
	forget := &forgetCounter{}

	r := &Retention{Store: store, Claims: forget, Grace: 24 * time.Hour, Now: func() time.Time { return now }}
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{3, 4}, forget.ids)
	store.AssertExpectations(t)
}
