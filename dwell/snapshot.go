package dwell

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Snapshot is the serializable form of all accumulated dwell state. Keys are
// stringified identities even though identities are integers internally;
// this is the on-disk contract reporting consumers depend on.
type Snapshot struct {
	TimeInZones    map[string]map[string]float64 `json:"time_in_zones"`
	ProductiveTime map[string]float64            `json:"daily_productive_time"`
}

// Snapshot captures the accumulated time-in-zone and productive-time maps.
// Open dwells (zones not yet exited) are not included.
func (dt *Tracker) Snapshot() Snapshot {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	snap := Snapshot{
		TimeInZones:    make(map[string]map[string]float64, len(dt.states)),
		ProductiveTime: make(map[string]float64, len(dt.states)),
	}
	for id, st := range dt.states {
		key := strconv.FormatInt(id, 10)
		if len(st.timeInZone) > 0 {
			perZone := make(map[string]float64, len(st.timeInZone))
			for zoneID, seconds := range st.timeInZone {
				perZone[zoneID] = seconds
			}
			snap.TimeInZones[key] = perZone
		}
		if st.productive > 0 {
			snap.ProductiveTime[key] = st.productive
		}
	}
	return snap
}

// Restore merges a snapshot back into the tracker's accumulated maps.
// Current-zone state and movement history are runtime-only and stay intact.
func (dt *Tracker) Restore(snap Snapshot) error {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	for key, perZone := range snap.TimeInZones {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "Can't parse identity %q in snapshot", key)
		}
		st := dt.stateLocked(id)
		for zoneID, seconds := range perZone {
			st.timeInZone[zoneID] += seconds
		}
	}
	for key, seconds := range snap.ProductiveTime {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "Can't parse identity %q in snapshot", key)
		}
		dt.stateLocked(id).productive += seconds
	}
	return nil
}

func (dt *Tracker) stateLocked(id int64) *state {
	st, ok := dt.states[id]
	if !ok {
		st = &state{timeInZone: make(map[string]float64)}
		dt.states[id] = st
	}
	return st
}

// Encode writes the snapshot as JSON.
func (s Snapshot) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(s); err != nil {
		return errors.Wrap(err, "Can't encode dwell snapshot")
	}
	return nil
}

// DecodeSnapshot reads a JSON snapshot.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, errors.Wrap(err, "Can't decode dwell snapshot")
	}
	if s.TimeInZones == nil {
		s.TimeInZones = make(map[string]map[string]float64)
	}
	if s.ProductiveTime == nil {
		s.ProductiveTime = make(map[string]float64)
	}
	return s, nil
}
