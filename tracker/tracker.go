package tracker

import (
	"sort"

	hungarian "github.com/arthurkushman/go-hungarian"
)

// MatchingAlgorithm selects how detections are associated with tracks.
type MatchingAlgorithm uint16

const (
	// MatchingHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingHungarian MatchingAlgorithm = iota
	// MatchingGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingGreedy
)

// Detection is one raw detector output for a frame: a bounding box and its
// confidence in [0, 1]. Identity is assigned by the tracker, never upstream.
type Detection struct {
	Box        Rect
	Confidence float64
}

// TrackedDetection is a detection annotated with its persistent identity.
type TrackedDetection struct {
	ID         int64
	Box        Rect
	Confidence float64
}

// Tracker associates per-frame detections with persistent identities via
// IoU-based assignment. maxDisappeared and minIoU are fixed at construction.
type Tracker struct {
	maxDisappeared int
	minIoU         float64
	algorithm      MatchingAlgorithm
	smoothed       bool
	dt             float64

	nextID int64
	tracks map[int64]*Track
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMatching selects the assignment algorithm. Default is Hungarian.
func WithMatching(algorithm MatchingAlgorithm) Option {
	return func(tr *Tracker) {
		tr.algorithm = algorithm
	}
}

// WithSmoothing attaches a Kalman filter to every track so boxes are
// smoothed on update and coast on prediction while unmatched.
// dt is the time step between frames (e.g. 1.0/25.0 for 25 fps).
func WithSmoothing(dt float64) Option {
	return func(tr *Tracker) {
		tr.smoothed = true
		tr.dt = dt
	}
}

// New creates a tracker. A track is retired once it stays unmatched for more
// than maxDisappeared consecutive frames. Matched pairs whose IoU falls below
// minIoU are rejected and treated as unmatched on both sides.
func New(maxDisappeared int, minIoU float64, opts ...Option) *Tracker {
	tr := &Tracker{
		maxDisappeared: maxDisappeared,
		minIoU:         minIoU,
		algorithm:      MatchingHungarian,
		dt:             1.0,
		nextID:         1,
		tracks:         make(map[int64]*Track),
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// NewDefault creates a tracker with maxDisappeared=30 and minIoU=0.3.
func NewDefault() *Tracker {
	return New(30, 0.3)
}

// Len returns the number of active tracks.
func (tr *Tracker) Len() int {
	return len(tr.tracks)
}

// ActiveTracks returns active tracks ordered by identity.
func (tr *Tracker) ActiveTracks() []*Track {
	out := make([]*Track, 0, len(tr.tracks))
	for _, id := range tr.sortedIDs() {
		out = append(out, tr.tracks[id])
	}
	return out
}

// Track returns the active track with the given identity, if any.
func (tr *Tracker) Track(id int64) (*Track, bool) {
	t, ok := tr.tracks[id]
	return t, ok
}

// Update consumes one frame's worth of detections and returns them annotated
// with persistent identities. Identity flows directly from the assignment
// result: a detection carries either the identity of the track it was matched
// to or a freshly registered one, never a positional re-derivation.
//
// Cost-matrix rows are ordered by ascending track identity, so equal-IoU ties
// resolve toward the lowest existing identity.
func (tr *Tracker) Update(detections []Detection) ([]TrackedDetection, error) {
	// No detections: every active track misses this frame.
	if len(detections) == 0 {
		tr.missAll()
		return []TrackedDetection{}, nil
	}

	assigned := make([]int64, len(detections))

	// Nothing tracked yet: register everything.
	if len(tr.tracks) == 0 {
		for i, det := range detections {
			assigned[i] = tr.register(det).ID
		}
		return tr.annotate(detections, assigned), nil
	}

	ids := tr.sortedIDs()
	iouMatrix := tr.iouMatrix(ids, detections)

	var matches [][2]int
	switch tr.algorithm {
	case MatchingGreedy:
		matches = greedyMatch(iouMatrix, tr.minIoU)
	default:
		matches = hungarianMatch(iouMatrix, len(ids), len(detections))
	}

	matchedTracks := make(map[int64]struct{})
	matchedDetections := make(map[int]struct{})
	for _, m := range matches {
		trackIdx, detIdx := m[0], m[1]
		// A matched pair below the IoU threshold is unmatched on both sides.
		if iouMatrix[trackIdx][detIdx] < tr.minIoU {
			continue
		}
		id := ids[trackIdx]
		if err := tr.tracks[id].observe(detections[detIdx]); err != nil {
			return nil, err
		}
		assigned[detIdx] = id
		matchedTracks[id] = struct{}{}
		matchedDetections[detIdx] = struct{}{}
	}

	// Unmatched tracks miss this frame and retire past the disappearance window.
	for _, id := range ids {
		if _, found := matchedTracks[id]; found {
			continue
		}
		track := tr.tracks[id]
		track.coast()
		if track.MissedFrames > tr.maxDisappeared {
			delete(tr.tracks, id)
		}
	}

	// Unmatched detections register as new tracks with fresh identities.
	for i, det := range detections {
		if _, found := matchedDetections[i]; !found {
			assigned[i] = tr.register(det).ID
		}
	}

	return tr.annotate(detections, assigned), nil
}

func (tr *Tracker) register(det Detection) *Track {
	t := newTrack(tr.nextID, det, tr.smoothed, tr.dt)
	tr.tracks[t.ID] = t
	tr.nextID++
	return t
}

func (tr *Tracker) missAll() {
	for id, track := range tr.tracks {
		track.coast()
		if track.MissedFrames > tr.maxDisappeared {
			delete(tr.tracks, id)
		}
	}
}

func (tr *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(tr.tracks))
	for id := range tr.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// iouMatrix builds the cost matrix: rows are tracks (ascending identity),
// columns are detections in input order.
func (tr *Tracker) iouMatrix(ids []int64, detections []Detection) [][]float64 {
	matrix := make([][]float64, len(ids))
	for i, id := range ids {
		row := make([]float64, len(detections))
		trackBox := tr.tracks[id].Box
		for j, det := range detections {
			row[j] = IoU(trackBox, det.Box)
		}
		matrix[i] = row
	}
	return matrix
}

func (tr *Tracker) annotate(detections []Detection, assigned []int64) []TrackedDetection {
	out := make([]TrackedDetection, len(detections))
	for i, det := range detections {
		out[i] = TrackedDetection{
			ID:         assigned[i],
			Box:        det.Box,
			Confidence: det.Confidence,
		}
	}
	return out
}

// hungarianMatch solves the assignment as maximum-weight bipartite matching.
// The matrix is padded with zeros to square shape; pairs landing in the
// padding are discarded by the bounds check.
func hungarianMatch(iouMatrix [][]float64, numTracks, numDetections int) [][2]int {
	if numTracks == 0 || numDetections == 0 {
		return nil
	}
	padded := iouMatrix
	if numTracks != numDetections {
		size := max(numTracks, numDetections)
		padded = make([][]float64, size)
		for i := 0; i < size; i++ {
			padded[i] = make([]float64, size)
			if i < numTracks {
				copy(padded[i], iouMatrix[i])
			}
		}
	}
	assignments := hungarian.SolveMax(padded)
	matches := make([][2]int, 0, min(numTracks, numDetections))
	for trackIdx, row := range assignments {
		for detIdx := range row {
			if trackIdx < numTracks && detIdx < numDetections {
				matches = append(matches, [2]int{trackIdx, detIdx})
			}
			break
		}
	}
	return matches
}

// greedyMatch assigns each track (row order) its best unclaimed detection
// with IoU at or above the threshold.
func greedyMatch(iouMatrix [][]float64, minIoU float64) [][2]int {
	matches := make([][2]int, 0, len(iouMatrix))
	claimed := make(map[int]struct{})
	for i := range iouMatrix {
		bestIoU := -1.0
		bestIdx := -1
		for j, val := range iouMatrix[i] {
			if _, found := claimed[j]; found {
				continue
			}
			if val > bestIoU && val >= minIoU {
				bestIoU = val
				bestIdx = j
			}
		}
		if bestIdx != -1 {
			matches = append(matches, [2]int{i, bestIdx})
			claimed[bestIdx] = struct{}{}
		}
	}
	return matches
}
