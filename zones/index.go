package zones

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"
)

// StaticIndex is an in-memory Index over a fixed set of polygon zones.
// Resolution walks zones in insertion order and returns the first hit.
type StaticIndex struct {
	order []string
	zones map[string]*Zone
}

// NewStaticIndex creates an empty index.
func NewStaticIndex() *StaticIndex {
	return &StaticIndex{
		zones: make(map[string]*Zone),
	}
}

// Add registers a zone. Re-adding an existing id replaces its definition
// but keeps its position in the resolution order.
func (ix *StaticIndex) Add(z Zone) error {
	if z.ID == "" {
		return errors.New("zone id must not be empty")
	}
	if len(z.Polygon) < 3 {
		return errors.Errorf("zone %q needs at least 3 polygon points, got %d", z.ID, len(z.Polygon))
	}
	if _, exists := ix.zones[z.ID]; !exists {
		ix.order = append(ix.order, z.ID)
	}
	ix.zones[z.ID] = &z
	return nil
}

// Delete removes a zone by id.
func (ix *StaticIndex) Delete(id string) {
	if _, exists := ix.zones[id]; !exists {
		return
	}
	delete(ix.zones, id)
	for i, existing := range ix.order {
		if existing == id {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
}

// Resolve returns the id of the first zone containing the point.
func (ix *StaticIndex) Resolve(p r2.Vec) (string, bool) {
	for _, id := range ix.order {
		if ix.zones[id].Contains(p) {
			return id, true
		}
	}
	return "", false
}

// Metadata returns the resolved metadata of a zone.
func (ix *StaticIndex) Metadata(id string) (Meta, bool) {
	z, ok := ix.zones[id]
	if !ok {
		return Meta{}, false
	}
	return z.meta(), true
}

// IDs returns all zone ids in resolution order.
func (ix *StaticIndex) IDs() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// zoneRecord is the on-disk shape of one zone.
type zoneRecord struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Points     [][2]float64 `json:"points"`
	Capacity   int          `json:"capacity,omitempty"`
	Authorized []int64      `json:"authorized,omitempty"`
}

// LoadFile reads a zone definition file. The file maps zone id to
// {name, type, points, capacity?, authorized?}; zones are indexed in
// lexicographic id order since JSON objects carry no order.
func LoadFile(path string) (*StaticIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read zones file %s", path)
	}
	var records map[string]zoneRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrapf(err, "Can't parse zones file %s", path)
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ix := NewStaticIndex()
	for _, id := range ids {
		rec := records[id]
		zoneType, err := ParseType(rec.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't load zone %q", id)
		}
		polygon := make([]r2.Vec, len(rec.Points))
		for i, pt := range rec.Points {
			polygon[i] = r2.Vec{X: pt[0], Y: pt[1]}
		}
		err = ix.Add(Zone{
			ID:         id,
			Name:       rec.Name,
			Type:       zoneType,
			Polygon:    polygon,
			Capacity:   rec.Capacity,
			Authorized: rec.Authorized,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Can't load zone %q", id)
		}
	}
	return ix, nil
}

// SaveFile writes the zone definitions in the LoadFile format.
func (ix *StaticIndex) SaveFile(path string) error {
	records := make(map[string]zoneRecord, len(ix.zones))
	for id, z := range ix.zones {
		points := make([][2]float64, len(z.Polygon))
		for i, p := range z.Polygon {
			points[i] = [2]float64{p.X, p.Y}
		}
		records[id] = zoneRecord{
			Name:       z.Name,
			Type:       z.Type.String(),
			Points:     points,
			Capacity:   z.Capacity,
			Authorized: z.Authorized,
		}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Can't encode zones")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "Can't write zones file %s", path)
	}
	return nil
}
