// Package zones provides the zone index consumed by the dwell tracker and the
// anomaly engine: polygon zones with typed metadata (capacity, productivity,
// authorization) and point-to-zone resolution.
package zones

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"
)

// Type is a tagged zone category. Capacity defaults and productivity are
// derived from the type via lookup tables, not runtime string comparisons.
type Type uint8

const (
	Desk Type = iota
	MeetingRoom
	BreakArea
	Hallway
)

// fallbackCapacity applies to types missing from the capacity table.
const fallbackCapacity = 4

var typeNames = map[Type]string{
	Desk:        "desk",
	MeetingRoom: "meeting_room",
	BreakArea:   "break_area",
	Hallway:     "hallway",
}

var defaultCapacities = map[Type]int{
	Desk:        1,
	MeetingRoom: 6,
	BreakArea:   4,
	Hallway:     10,
}

// Desks and meeting rooms count toward productive time.
var productiveTypes = map[Type]bool{
	Desk:        true,
	MeetingRoom: true,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// DefaultCapacity returns the occupancy limit for the zone type.
func (t Type) DefaultCapacity() int {
	if capacity, ok := defaultCapacities[t]; ok {
		return capacity
	}
	return fallbackCapacity
}

// Productive reports whether dwell time in zones of this type counts toward
// the productivity metric.
func (t Type) Productive() bool {
	return productiveTypes[t]
}

// ParseType parses the wire name of a zone type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown zone type %q", s)
}

// Meta is the resolved metadata of a zone as seen by consumers.
type Meta struct {
	Name string
	Type Type
	// Capacity is the occupancy limit: the zone's own override when set,
	// otherwise the default for its type
	Capacity int
	// Productive reports whether dwell time here counts as productive
	Productive bool
	// Authorized identities; empty means unrestricted
	Authorized []int64
}

// Index resolves points to zones and reports zone metadata. Implementations
// must be side-effect-free; Resolve returns false when the point lies outside
// all zones.
type Index interface {
	Resolve(p r2.Vec) (string, bool)
	Metadata(id string) (Meta, bool)
	IDs() []string
}

// Zone is a polygon region of the frame with typed metadata.
type Zone struct {
	ID      string
	Name    string
	Type    Type
	Polygon []r2.Vec
	// Capacity overrides the type default when positive
	Capacity int
	// Authorized identities; empty means unrestricted
	Authorized []int64
}

// Contains reports whether the point lies inside the zone polygon
// (ray casting; boundary behavior follows the crossing parity).
func (z *Zone) Contains(p r2.Vec) bool {
	n := len(z.Polygon)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a := z.Polygon[i]
		b := z.Polygon[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			crossX := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < crossX {
				inside = !inside
			}
		}
	}
	return inside
}

func (z *Zone) meta() Meta {
	capacity := z.Capacity
	if capacity <= 0 {
		capacity = z.Type.DefaultCapacity()
	}
	authorized := make([]int64, len(z.Authorized))
	copy(authorized, z.Authorized)
	return Meta{
		Name:       z.Name,
		Type:       z.Type,
		Capacity:   capacity,
		Productive: z.Type.Productive(),
		Authorized: authorized,
	}
}
