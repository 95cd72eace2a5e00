package tracker

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

const defaultTraceLen = 150

// Track is a single tracked subject. Identity is assigned once by the
// tracker, monotonically increasing, and never reused after retirement.
type Track struct {
	// ID is the persistent identity of the subject
	ID int64
	// Box is the last accepted bounding box (smoothed if a filter is attached)
	Box Rect
	// Confidence of the last matched detection
	Confidence float64
	// MissedFrames is the number of consecutive frames without a match
	MissedFrames int

	trace    []Point
	maxTrace int
	filter   *kalman_filter.KalmanBBox
}

func newTrack(id int64, det Detection, smoothed bool, dt float64) *Track {
	t := &Track{
		ID:         id,
		Box:        det.Box,
		Confidence: det.Confidence,
		trace:      make([]Point, 0, defaultTraceLen),
		maxTrace:   defaultTraceLen,
	}
	t.trace = append(t.trace, det.Box.Center())
	if smoothed {
		// Kalman filter props for full bbox dynamics: [cx, cy, w, h] + velocities
		uCx := 1.0
		uCy := 1.0
		uW := 0.0
		uH := 0.0
		stdDevA := 2.0
		stdDevMCx := 0.1
		stdDevMCy := 0.1
		stdDevMW := 0.1
		stdDevMH := 0.1
		t.filter = kalman_filter.NewKalmanBBox(
			dt, uCx, uCy, uW, uH,
			stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
			kalman_filter.WithStateBBox(det.Box.CX, det.Box.CY, det.Box.W, det.Box.H),
		)
	}
	return t
}

// observe accepts a matched detection: the box takes the measurement
// (smoothed through the filter when one is attached) and misses reset.
func (t *Track) observe(det Detection) error {
	if t.filter != nil {
		t.filter.Predict()
		err := t.filter.Update(det.Box.CX, det.Box.CY, det.Box.W, det.Box.H)
		if err != nil {
			return errors.Wrap(err, "Can't update track filter")
		}
		cx, cy, w, h := t.filter.GetState()
		t.Box = Rect{CX: cx, CY: cy, W: w, H: h}
	} else {
		t.Box = det.Box
	}
	t.Confidence = det.Confidence
	t.MissedFrames = 0
	t.trace = append(t.trace, t.Box.Center())
	if len(t.trace) > t.maxTrace {
		t.trace = t.trace[1:]
	}
	return nil
}

// coast marks one unmatched frame. With a filter attached the box coasts
// on the prediction so a reappearing subject can still overlap it.
func (t *Track) coast() {
	t.MissedFrames++
	if t.filter != nil {
		t.filter.Predict()
		cx, cy, w, h := t.filter.GetState()
		t.Box = Rect{CX: cx, CY: cy, W: w, H: h}
	}
}

// Trace returns the track's center history. Be careful: this is not a copy
// of the trace, but a reference to it.
func (t *Track) Trace() []Point {
	return t.trace
}

// Velocity returns current velocity estimates (vx, vy, vw, vh).
// It is only meaningful for smoothed tracks; raw tracks report zeros.
func (t *Track) Velocity() (float64, float64, float64, float64) {
	if t.filter == nil {
		return 0, 0, 0, 0
	}
	return t.filter.GetVelocity()
}
