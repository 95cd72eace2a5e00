package tracker

// Rect is an axis-aligned bounding box in center form:
// (CX, CY) is the box center, W and H are full width and height.
type Rect struct {
	CX float64
	CY float64
	W  float64
	H  float64
}

// NewRect creates a center-form rectangle.
func NewRect(cx, cy, w, h float64) Rect {
	return Rect{CX: cx, CY: cy, W: w, H: h}
}

// Point is a 2D point in frame coordinates.
type Point struct {
	X float64
	Y float64
}

// Center returns the box center as a point.
func (r Rect) Center() Point {
	return Point{X: r.CX, Y: r.CY}
}

// IoU calculates Intersection over Union between two rectangles.
// Union is computed exactly via rectangle difference (areaA + areaB - intersection).
// Degenerate boxes (zero or negative width/height) and disjoint boxes yield 0.
func IoU(a, b Rect) float64 {
	if a.W <= 0 || a.H <= 0 || b.W <= 0 || b.H <= 0 {
		return 0.0
	}

	xA := max(a.CX-a.W/2.0, b.CX-b.W/2.0)
	yA := max(a.CY-a.H/2.0, b.CY-b.H/2.0)
	xB := min(a.CX+a.W/2.0, b.CX+b.W/2.0)
	yB := min(a.CY+a.H/2.0, b.CY+b.H/2.0)

	interArea := max(0, xB-xA) * max(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	aArea := a.W * a.H
	bArea := b.W * b.H
	return interArea / (aArea + bArea - interArea)
}
