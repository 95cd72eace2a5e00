// Package dwell turns a stream of (identity, position) observations into
// accumulated per-zone time and a productive-time metric per identity.
package dwell

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/LdDl/zonewatch/zones"
)

// DefaultHistoryCap bounds the per-identity movement history.
const DefaultHistoryCap = 20

// Position is one tracked subject observation for a tick.
type Position struct {
	ID int64
	X  float64
	Y  float64
}

// Movement is one movement-history sample. Zone is empty when the subject
// was outside all zones at that instant.
type Movement struct {
	Zone string
	At   time.Time
}

// state is the per-identity dwell state. At most one current zone per
// identity; entryTime is set if and only if currentZone is not empty.
type state struct {
	currentZone string
	entryTime   time.Time
	timeInZone  map[string]float64
	productive  float64
	lastSeen    time.Time
	history     []Movement
}

// Tracker maintains per-identity dwell state over a zone index. All state is
// guarded by one mutex so concurrent queries and scans never observe a
// partially applied tick.
type Tracker struct {
	mu         sync.Mutex
	index      zones.Index
	historyCap int
	states     map[int64]*state
	lastUpdate time.Time
	started    bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHistoryCap overrides the movement-history capacity.
func WithHistoryCap(n int) Option {
	return func(dt *Tracker) {
		if n > 0 {
			dt.historyCap = n
		}
	}
}

// NewTracker creates a dwell tracker over the given zone index.
func NewTracker(index zones.Index, opts ...Option) *Tracker {
	dt := &Tracker{
		index:      index,
		historyCap: DefaultHistoryCap,
		states:     make(map[int64]*state),
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Update consumes one tick of tracked positions. The first call seeds the
// internal clock, so its elapsed time is zero. Accumulated time-in-zone is
// flushed when an identity exits a zone; productive time additionally accrues
// continuously while the identity stays inside a productive zone.
// The internal clock advances to now unconditionally.
func (dt *Tracker) Update(tracked []Position, now time.Time) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if !dt.started {
		dt.lastUpdate = now
		dt.started = true
	}
	elapsed := now.Sub(dt.lastUpdate).Seconds()

	for _, pos := range tracked {
		zoneID, inside := dt.index.Resolve(r2.Vec{X: pos.X, Y: pos.Y})
		if !inside {
			zoneID = ""
		}

		st, known := dt.states[pos.ID]
		if !known {
			st = &state{timeInZone: make(map[string]float64)}
			dt.states[pos.ID] = st
			if zoneID != "" {
				st.currentZone = zoneID
				st.entryTime = now
			}
		} else if zoneID != st.currentZone {
			// Zone changed (including to/from outside): flush the previous dwell.
			if st.currentZone != "" && !st.entryTime.IsZero() {
				spent := now.Sub(st.entryTime).Seconds()
				st.timeInZone[st.currentZone] += spent
				if dt.isProductive(st.currentZone) {
					st.productive += spent
				}
			}
			if zoneID != "" {
				st.currentZone = zoneID
				st.entryTime = now
			} else {
				st.currentZone = ""
				st.entryTime = time.Time{}
			}
		} else if zoneID != "" {
			// Same zone: productive time accrues without waiting for an exit.
			if dt.isProductive(zoneID) {
				st.productive += elapsed
			}
		}

		st.lastSeen = now
		st.history = append(st.history, Movement{Zone: zoneID, At: now})
		if len(st.history) > dt.historyCap {
			st.history = st.history[1:]
		}
	}

	dt.lastUpdate = now
}

// isProductive fails open: a zone id the index can resolve but not describe
// (stale id referencing a deleted zone) is never productive.
func (dt *Tracker) isProductive(zoneID string) bool {
	meta, ok := dt.index.Metadata(zoneID)
	return ok && meta.Productive
}

// CurrentZone returns the identity's current zone, or false when the identity
// is unknown or outside all zones.
func (dt *Tracker) CurrentZone(id int64) (string, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	st, ok := dt.states[id]
	if !ok || st.currentZone == "" {
		return "", false
	}
	return st.currentZone, true
}

// Occupancy returns the number of identities currently inside each zone.
func (dt *Tracker) Occupancy() map[string]int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	occupancy := make(map[string]int)
	for _, st := range dt.states {
		if st.currentZone != "" {
			occupancy[st.currentZone]++
		}
	}
	return occupancy
}

// TimeInZone returns the accumulated seconds the identity spent in the zone.
// Only flushed dwells count; the currently open dwell is not included.
func (dt *Tracker) TimeInZone(id int64, zoneID string) float64 {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	st, ok := dt.states[id]
	if !ok {
		return 0
	}
	return st.timeInZone[zoneID]
}

// ProductiveTime returns the identity's cumulative productive seconds.
func (dt *Tracker) ProductiveTime(id int64) float64 {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	st, ok := dt.states[id]
	if !ok {
		return 0
	}
	return st.productive
}

// Evict drops dwell state for identities absent from the tracked input for
// longer than grace, and returns how many were dropped. Disappearance never
// evicts implicitly; the driving loop decides when to call this.
func (dt *Tracker) Evict(now time.Time, grace time.Duration) int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	evicted := 0
	for id, st := range dt.states {
		if now.Sub(st.lastSeen) > grace {
			delete(dt.states, id)
			evicted++
		}
	}
	return evicted
}

// PersonView is a copied snapshot of one identity's scan-relevant state.
type PersonView struct {
	ID          int64
	CurrentZone string
	EntryTime   time.Time
	History     []Movement
}

// View is an atomic snapshot of all dwell state relevant to an anomaly scan.
type View struct {
	People []PersonView
}

// View copies the current zone, entry time and movement history of every
// identity under one lock acquisition, ordered by identity. Mutating the
// result never affects the tracker.
func (dt *Tracker) View() View {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	ids := make([]int64, 0, len(dt.states))
	for id := range dt.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	people := make([]PersonView, 0, len(ids))
	for _, id := range ids {
		st := dt.states[id]
		history := make([]Movement, len(st.history))
		copy(history, st.history)
		people = append(people, PersonView{
			ID:          id,
			CurrentZone: st.currentZone,
			EntryTime:   st.entryTime,
			History:     history,
		})
	}
	return View{People: people}
}
