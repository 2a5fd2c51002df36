package schedule

import (
	"context"
	"log"
	"time"
)

// ExpiredStore lists and retires finished showtimes.
type ExpiredStore interface {
	ListExpired(ctx context.Context, cutoff time.Time) ([]uint64, error)
	SoftDelete(ctx context.Context, id uint64) (bool, error)
}

// Forgetter drops the in-memory state of a retired showtime.
type Forgetter interface {
	Forget(showtimeID uint64) int
}

// Retention soft-deletes showtimes that ended more than Grace ago.
type Retention struct {
	Store  ExpiredStore
	Claims Forgetter
	Grace  time.Duration
	Now    func() time.Time
}

// RunOnce retires every expired showtime and returns how many it deleted.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ids, err := r.Store.ListExpired(ctx, now().Add(-r.Grace))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		ok, err := r.Store.SoftDelete(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
		if r.Claims != nil {
			r.Claims.Forget(id)
		}
	}
	return n, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Retention) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				log.Printf("showtime-retention: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("showtime-retention: retired %d showtimes", n)
			}
		}
	}
}
