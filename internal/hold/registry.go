// Package hold implements the in-memory registry of transient seat claims.
//
// A claim maps (showtime, seat) to the connection that owns it.  Claims are
// never persisted and live at most as long as the owning connection.  The
// registry only advises: the durable seat status written by the booking
// transaction is always authoritative.
package hold

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Phase is the lifecycle stage of a claim.
type Phase string

const (
	PhaseHeld       Phase = "held"
	PhaseProcessing Phase = "processing"
	PhaseBooked     Phase = "booked"
)

var (
	// ErrHoldConflict is returned when the seat is claimed by another connection.
	ErrHoldConflict = errors.New("seat is already held by another connection")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("hold registry closed")
)

// Kind identifies the mutation reported to the Notifier.
type Kind int

const (
	SeatHeld Kind = iota + 1
	SeatReleased
	SeatPromoted
)

// Change describes a single claim mutation.
type Change struct {
	Kind       Kind
	ShowtimeID uint64
	SeatID     uint64
	ConnID     string
}

// Notifier receives every claim mutation.  Notify is called while the
// seat's shard lock is held, so successive changes to one seat arrive in
// the order they were applied.  Implementations must not block and must not
// call back into the registry.
type Notifier interface {
	Notify(Change)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Change)

// Notify calls f(c).
func (f NotifierFunc) Notify(c Change) { f(c) }

// Entry is one claim as seen by Snapshot and Claimant.
type Entry struct {
	SeatID uint64 `json:"seatId"`
	ConnID string `json:"connectionId"`
	Phase  Phase  `json:"phase"`
}

// Snapshot is the claim state of a showtime at one point in time.  Holds
// contains held claims, Pending contains processing and booked entries.
type Snapshot struct {
	ShowtimeID uint64  `json:"showtimeId"`
	Holds      []Entry `json:"holds"`
	Pending    []Entry `json:"pending"`
}

type seatKey struct {
	showtimeID uint64
	seatID     uint64
}

type ownerKey struct {
	showtimeID uint64
	connID     string
}

type claim struct {
	connID string
	phase  Phase
}

type shard struct {
	mu     sync.Mutex
	claims map[seatKey]claim
}

type ownerShard struct {
	mu    sync.Mutex
	seats map[ownerKey]map[uint64]struct{}
}

type notifierHolder struct{ n Notifier }

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 64

// Registry arbitrates seat claims.  Every operation on a given
// (showtime, seat) key runs under that key's shard lock; operations on
// keys in different shards never contend.  Each connection's claims are
// also indexed per (showtime, connection) so that promote and release do
// not scan the whole registry.
//
// Lock order is always seat shard, then owner shard.
type Registry struct {
	shards   []*shard
	owners   []*ownerShard
	notifier atomic.Pointer[notifierHolder]
	closed   atomic.Bool
}

// NewRegistry builds an empty registry with n shards (DefaultShards when n <= 0).
func NewRegistry(n int) *Registry {
	if n <= 0 {
		n = DefaultShards
	}
	r := &Registry{
		shards: make([]*shard, n),
		owners: make([]*ownerShard, n),
	}
	for i := 0; i < n; i++ {
		r.shards[i] = &shard{claims: make(map[seatKey]claim)}
		r.owners[i] = &ownerShard{seats: make(map[ownerKey]map[uint64]struct{})}
	}
	return r
}

// SetNotifier installs the mutation observer.  Passing nil removes it.
func (r *Registry) SetNotifier(n Notifier) {
	if n == nil {
		r.notifier.Store(nil)
		return
	}
	r.notifier.Store(&notifierHolder{n: n})
}

func (r *Registry) notify(c Change) {
	if h := r.notifier.Load(); h != nil {
		h.n.Notify(c)
	}
}

func (r *Registry) shardFor(k seatKey) *shard {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], k.showtimeID)
	binary.LittleEndian.PutUint64(b[8:], k.seatID)
	return r.shards[xxhash.Sum64(b[:])%uint64(len(r.shards))]
}

func (r *Registry) ownerShardFor(k ownerKey) *ownerShard {
	d := xxhash.New()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], k.showtimeID)
	_, _ = d.Write(b[:])
	_, _ = d.WriteString(k.connID)
	return r.owners[d.Sum64()%uint64(len(r.owners))]
}

// index and unindex must be called with the seat's shard lock held.
func (r *Registry) index(showtimeID, seatID uint64, connID string) {
	ok := ownerKey{showtimeID, connID}
	osh := r.ownerShardFor(ok)
	osh.mu.Lock()
	set := osh.seats[ok]
	if set == nil {
		set = make(map[uint64]struct{})
		osh.seats[ok] = set
	}
	set[seatID] = struct{}{}
	osh.mu.Unlock()
}

func (r *Registry) unindex(showtimeID, seatID uint64, connID string) {
	ok := ownerKey{showtimeID, connID}
	osh := r.ownerShardFor(ok)
	osh.mu.Lock()
	if set := osh.seats[ok]; set != nil {
		delete(set, seatID)
		if len(set) == 0 {
			delete(osh.seats, ok)
		}
	}
	osh.mu.Unlock()
}

// owned returns a sorted copy of the seats indexed for the connection.
func (r *Registry) owned(showtimeID uint64, connID string) []uint64 {
	ok := ownerKey{showtimeID, connID}
	osh := r.ownerShardFor(ok)
	osh.mu.Lock()
	seats := make([]uint64, 0, len(osh.seats[ok]))
	for id := range osh.seats[ok] {
		seats = append(seats, id)
	}
	osh.mu.Unlock()
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
	return seats
}

// Hold claims a seat for connID.  It returns true when a new claim was
// recorded and false when the connection already owned the seat (a no-op).
// ErrHoldConflict is returned when another connection owns the seat or the
// seat has been booked.
func (r *Registry) Hold(showtimeID, seatID uint64, connID string) (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	k := seatKey{showtimeID, seatID}
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if c, ok := sh.claims[k]; ok {
		if c.connID == connID && c.phase != PhaseBooked {
			return false, nil
		}
		return false, ErrHoldConflict
	}
	sh.claims[k] = claim{connID: connID, phase: PhaseHeld}
	r.index(showtimeID, seatID, connID)
	r.notify(Change{Kind: SeatHeld, ShowtimeID: showtimeID, SeatID: seatID, ConnID: connID})
	return true, nil
}

// Release drops connID's held claim on the seat.  Claims owned by other
// connections and pending entries are left untouched.
func (r *Registry) Release(showtimeID, seatID uint64, connID string) (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	k := seatKey{showtimeID, seatID}
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.claims[k]
	if !ok || c.connID != connID || c.phase != PhaseHeld {
		return false, nil
	}
	r.dropLocked(sh, k, c)
	return true, nil
}

// dropLocked removes a claim and reports the release.  sh.mu must be held.
func (r *Registry) dropLocked(sh *shard, k seatKey, c claim) {
	delete(sh.claims, k)
	r.unindex(k.showtimeID, k.seatID, c.connID)
	r.notify(Change{Kind: SeatReleased, ShowtimeID: k.showtimeID, SeatID: k.seatID, ConnID: c.connID})
}

// Promote turns every seat connID holds in the showtime into a processing
// pending entry and returns the promoted seats.  Calling it again without
// new holds returns an empty slice.
func (r *Registry) Promote(showtimeID uint64, connID string) ([]uint64, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	promoted := make([]uint64, 0)
	for _, seatID := range r.owned(showtimeID, connID) {
		k := seatKey{showtimeID, seatID}
		sh := r.shardFor(k)
		sh.mu.Lock()
		if c, ok := sh.claims[k]; ok && c.connID == connID && c.phase == PhaseHeld {
			sh.claims[k] = claim{connID: connID, phase: PhaseProcessing}
			r.notify(Change{Kind: SeatPromoted, ShowtimeID: showtimeID, SeatID: seatID, ConnID: connID})
			promoted = append(promoted, seatID)
		}
		sh.mu.Unlock()
	}
	return promoted, nil
}

// ReleaseProcessing reverses Promote: every processing entry owned by
// connID is released.  Booked entries are immune.
func (r *Registry) ReleaseProcessing(showtimeID uint64, connID string) ([]uint64, error) {
	return r.releaseOwned(showtimeID, connID, func(p Phase) bool { return p == PhaseProcessing })
}

// ReleaseConnection drops every held and processing claim connID owns in
// the showtime.  It is the disconnect cleanup path.
func (r *Registry) ReleaseConnection(showtimeID uint64, connID string) ([]uint64, error) {
	return r.releaseOwned(showtimeID, connID, func(p Phase) bool { return p != PhaseBooked })
}

func (r *Registry) releaseOwned(showtimeID uint64, connID string, match func(Phase) bool) ([]uint64, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	released := make([]uint64, 0)
	for _, seatID := range r.owned(showtimeID, connID) {
		k := seatKey{showtimeID, seatID}
		sh := r.shardFor(k)
		sh.mu.Lock()
		if c, ok := sh.claims[k]; ok && c.connID == connID && match(c.phase) {
			r.dropLocked(sh, k, c)
			released = append(released, seatID)
		}
		sh.mu.Unlock()
	}
	return released, nil
}

// MarkBooked records that the seats were durably booked by connID (which
// may be empty for bookings that did not come through a connection).  Any
// ephemeral claim on those seats, whoever owns it, is replaced: the durable
// commit wins.
func (r *Registry) MarkBooked(showtimeID uint64, seatIDs []uint64, connID string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	for _, seatID := range seatIDs {
		k := seatKey{showtimeID, seatID}
		sh := r.shardFor(k)
		sh.mu.Lock()
		if c, ok := sh.claims[k]; ok && c.phase != PhaseBooked {
			r.unindex(showtimeID, seatID, c.connID)
		}
		sh.claims[k] = claim{connID: connID, phase: PhaseBooked}
		sh.mu.Unlock()
	}
	return nil
}

// Unbook removes booked entries, used when a booking is reversed by a
// declined payment.  Seats claimed in any other phase are left alone.
func (r *Registry) Unbook(showtimeID uint64, seatIDs []uint64) error {
	if r.closed.Load() {
		return ErrClosed
	}
	for _, seatID := range seatIDs {
		k := seatKey{showtimeID, seatID}
		sh := r.shardFor(k)
		sh.mu.Lock()
		if c, ok := sh.claims[k]; ok && c.phase == PhaseBooked {
			delete(sh.claims, k)
		}
		sh.mu.Unlock()
	}
	return nil
}

// Claimant reports the current claim on a seat, if any.
func (r *Registry) Claimant(showtimeID, seatID uint64) (Entry, bool) {
	k := seatKey{showtimeID, seatID}
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.claims[k]
	if !ok {
		return Entry{}, false
	}
	return Entry{SeatID: seatID, ConnID: c.connID, Phase: c.phase}, true
}

// PendingSeats returns the processing seats connID owns in the showtime.
func (r *Registry) PendingSeats(showtimeID uint64, connID string) []uint64 {
	seats := make([]uint64, 0)
	for _, seatID := range r.owned(showtimeID, connID) {
		if e, ok := r.Claimant(showtimeID, seatID); ok && e.ConnID == connID && e.Phase == PhaseProcessing {
			seats = append(seats, seatID)
		}
	}
	return seats
}

// Snapshot collects the claims of a showtime.  Shards are visited one at a
// time, so the result is per-seat consistent rather than a global cut.
func (r *Registry) Snapshot(showtimeID uint64) Snapshot {
	snap := Snapshot{ShowtimeID: showtimeID, Holds: []Entry{}, Pending: []Entry{}}
	for _, sh := range r.shards {
		sh.mu.Lock()
		for k, c := range sh.claims {
			if k.showtimeID != showtimeID {
				continue
			}
			e := Entry{SeatID: k.seatID, ConnID: c.connID, Phase: c.phase}
			if c.phase == PhaseHeld {
				snap.Holds = append(snap.Holds, e)
			} else {
				snap.Pending = append(snap.Pending, e)
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(snap.Holds, func(i, j int) bool { return snap.Holds[i].SeatID < snap.Holds[j].SeatID })
	sort.Slice(snap.Pending, func(i, j int) bool { return snap.Pending[i].SeatID < snap.Pending[j].SeatID })
	return snap
}

// Reap releases every held or processing claim whose connection is no
// longer live.  It is the reconciliation sweep for cleanups that could not
// complete on disconnect and returns the number of claims released.
func (r *Registry) Reap(isLive func(connID string) bool) int {
	if r.closed.Load() {
		return 0
	}
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for k, c := range sh.claims {
			if c.phase == PhaseBooked || isLive(c.connID) {
				continue
			}
			r.dropLocked(sh, k, c)
			n++
		}
		sh.mu.Unlock()
	}
	return n
}

// Forget drops every entry of a showtime without notifying.  It is used
// once a showtime is retired.
func (r *Registry) Forget(showtimeID uint64) int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for k, c := range sh.claims {
			if k.showtimeID != showtimeID {
				continue
			}
			delete(sh.claims, k)
			if c.phase != PhaseBooked {
				r.unindex(k.showtimeID, k.seatID, c.connID)
			}
			n++
		}
		sh.mu.Unlock()
	}
	return n
}

// Len returns the number of claims across all showtimes.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.claims)
		sh.mu.Unlock()
	}
	return n
}

// Close tears the registry down.  Subsequent mutations return ErrClosed.
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	for i := range r.shards {
		r.shards[i].mu.Lock()
		r.shards[i].claims = make(map[seatKey]claim)
		r.shards[i].mu.Unlock()
		r.owners[i].mu.Lock()
		r.owners[i].seats = make(map[ownerKey]map[uint64]struct{})
		r.owners[i].mu.Unlock()
	}
}
