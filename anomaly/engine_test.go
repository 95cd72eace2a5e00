package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/LdDl/zonewatch/dwell"
	"github.com/LdDl/zonewatch/zones"
)

var scanTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fixedEngine(limits map[string]ZoneLimits) *Engine {
	e := NewEngine(nil, DefaultConfig())
	e.SetZoneConfig(limits)
	return e
}

func person(id int64, zone string, entered time.Time) dwell.PersonView {
	return dwell.PersonView{ID: id, CurrentZone: zone, EntryTime: entered}
}

func eventsOfType(events []Event, eventType Type) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestIdleSeverity(t *testing.T) {
	e := fixedEngine(map[string]ZoneLimits{"desk1": {Name: "desk_1", Capacity: 1}})

	view := dwell.View{People: []dwell.PersonView{
		person(1, "desk1", scanTime.Add(-3601*time.Second)), // past 2x threshold
		person(2, "desk1", scanTime.Add(-1850*time.Second)), // past threshold only
		person(3, "desk1", scanTime.Add(-100*time.Second)),  // fine
		person(4, "", time.Time{}),                          // outside all zones
	}}

	idle := eventsOfType(e.Detect(view, scanTime), TypeIdle)
	require.Len(t, idle, 2)

	byPerson := map[int64]Event{}
	for _, ev := range idle {
		byPerson[ev.PersonID] = ev
	}
	assert.Equal(t, SeverityHigh, byPerson[1].Severity)
	assert.InDelta(t, 3601.0, byPerson[1].Metrics["idle_seconds"], 1e-9)
	assert.Equal(t, SeverityMedium, byPerson[2].Severity)
	assert.Equal(t, "desk1", byPerson[1].ZoneID)
	assert.Equal(t, "desk_1", byPerson[1].ZoneName)
}

func TestOvercrowdedSeverity(t *testing.T) {
	e := fixedEngine(map[string]ZoneLimits{"meet1": {Name: "Meeting", Capacity: 4}})

	crowd := func(n int) dwell.View {
		view := dwell.View{}
		for i := 0; i < n; i++ {
			view.People = append(view.People, person(int64(i+1), "meet1", scanTime.Add(-time.Minute)))
		}
		return view
	}

	// 7 occupants vs capacity 4: 7 > 4+2 -> high.
	events := eventsOfType(e.Detect(crowd(7), scanTime), TypeOvercrowded)
	require.Len(t, events, 1)
	assert.Equal(t, SeverityHigh, events[0].Severity)
	assert.InDelta(t, 7.0, events[0].Metrics["count"], 1e-9)
	assert.InDelta(t, 4.0, events[0].Metrics["capacity"], 1e-9)

	// 5 occupants: over capacity but within +2 -> medium.
	events = eventsOfType(e.Detect(crowd(5), scanTime), TypeOvercrowded)
	require.Len(t, events, 1)
	assert.Equal(t, SeverityMedium, events[0].Severity)

	// At capacity: no event.
	events = eventsOfType(e.Detect(crowd(4), scanTime), TypeOvercrowded)
	assert.Empty(t, events)
}

func TestUncachedZoneIsNotChecked(t *testing.T) {
	e := fixedEngine(map[string]ZoneLimits{})
	view := dwell.View{People: []dwell.PersonView{
		person(1, "unknown", scanTime.Add(-time.Minute)),
		person(2, "unknown", scanTime.Add(-time.Minute)),
	}}
	assert.Empty(t, eventsOfType(e.Detect(view, scanTime), TypeOvercrowded))
}

func TestUnauthorizedAccess(t *testing.T) {
	e := fixedEngine(map[string]ZoneLimits{
		"desk7": {Name: "desk_7", Capacity: 1, Authorized: []int64{7}},
		"hall1": {Name: "Hallway", Capacity: 10},
	})

	view := dwell.View{People: []dwell.PersonView{
		person(3, "desk7", scanTime.Add(-time.Second)), // not allowed
		person(7, "desk7", scanTime.Add(-time.Second)), // owner
		person(5, "hall1", scanTime.Add(-time.Second)), // unrestricted zone
	}}

	events := eventsOfType(e.Detect(view, scanTime), TypeUnauthorized)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].PersonID)
	assert.Equal(t, "desk7", events[0].ZoneID)
	assert.Equal(t, SeverityHigh, events[0].Severity)
}

func movementHistory(n int, step time.Duration, last time.Time) []dwell.Movement {
	history := make([]dwell.Movement, n)
	for i := 0; i < n; i++ {
		history[i] = dwell.Movement{
			Zone: "z",
			At:   last.Add(-time.Duration(n-1-i) * step),
		}
	}
	return history
}

func TestSuspiciousMovement(t *testing.T) {
	e := fixedEngine(nil)

	detect := func(history []dwell.Movement) []Event {
		view := dwell.View{People: []dwell.PersonView{{ID: 1, History: history}}}
		return eventsOfType(e.Detect(view, scanTime), TypeSuspiciousMovement)
	}

	// 6 samples in the window -> 5 transitions, at the threshold -> medium.
	events := detect(movementHistory(6, 10*time.Second, scanTime))
	require.Len(t, events, 1)
	assert.Equal(t, SeverityMedium, events[0].Severity)
	assert.InDelta(t, 5.0, events[0].Metrics["transitions"], 1e-9)

	// 11 samples -> 10 transitions = 2x threshold -> high.
	events = detect(movementHistory(11, 10*time.Second, scanTime))
	require.Len(t, events, 1)
	assert.Equal(t, SeverityHigh, events[0].Severity)

	// 5 samples -> 4 transitions, below threshold.
	assert.Empty(t, detect(movementHistory(5, 10*time.Second, scanTime)))

	// Plenty of samples, but all outside the 10 minute window.
	assert.Empty(t, detect(movementHistory(8, 10*time.Second, scanTime.Add(-11*time.Minute))))

	// Fewer than 2 recent samples: skipped.
	assert.Empty(t, detect(movementHistory(1, 10*time.Second, scanTime)))
}

func TestTransitionsAreSamplingBased(t *testing.T) {
	// Samples never change zone; the rule still counts pairs.
	e := fixedEngine(nil)
	history := movementHistory(6, 10*time.Second, scanTime)
	view := dwell.View{People: []dwell.PersonView{{ID: 1, History: history}}}

	events := eventsOfType(e.Detect(view, scanTime), TypeSuspiciousMovement)
	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, events[0].Metrics["unique_zones"], 1e-9)
}

func rectPolygon(x1, y1, x2, y2 float64) []r2.Vec {
	return []r2.Vec{{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2}}
}

func TestRefreshFromIndexAndDeskInference(t *testing.T) {
	ix := zones.NewStaticIndex()
	require.NoError(t, ix.Add(zones.Zone{
		ID: "desk4", Name: "desk_4", Type: zones.Desk,
		Polygon: rectPolygon(0, 0, 100, 100),
	}))

	e := NewEngine(ix, DefaultConfig())
	view := dwell.View{People: []dwell.PersonView{
		person(9, "desk4", scanTime.Add(-time.Second)),
	}}

	// First Detect populates the cache; desk_4 infers identity 4 as owner,
	// so person 9 is unauthorized.
	events := eventsOfType(e.Detect(view, scanTime), TypeUnauthorized)
	require.Len(t, events, 1)
	assert.Equal(t, int64(9), events[0].PersonID)

	// The inferred owner passes.
	ownerView := dwell.View{People: []dwell.PersonView{
		person(4, "desk4", scanTime.Add(-time.Second)),
	}}
	assert.Empty(t, eventsOfType(e.Detect(ownerView, scanTime), TypeUnauthorized))
}

func TestRefreshRetainsConfigForDeletedZone(t *testing.T) {
	ix := zones.NewStaticIndex()
	require.NoError(t, ix.Add(zones.Zone{
		ID: "meet1", Name: "Meeting", Type: zones.MeetingRoom, Capacity: 2,
		Polygon: rectPolygon(0, 0, 100, 100),
	}))

	e := NewEngine(ix, DefaultConfig())
	e.RefreshZoneConfig(scanTime)

	// Zone disappears from the index; a later refresh keeps the old entry.
	ix.Delete("meet1")
	e.RefreshZoneConfig(scanTime.Add(2 * time.Minute))

	view := dwell.View{People: []dwell.PersonView{
		person(1, "meet1", scanTime.Add(-time.Second)),
		person(2, "meet1", scanTime.Add(-time.Second)),
		person(3, "meet1", scanTime.Add(-time.Second)),
	}}
	events := eventsOfType(e.Detect(view, scanTime.Add(2*time.Minute)), TypeOvercrowded)
	require.Len(t, events, 1, "stale zone config should still drive detection")
	assert.InDelta(t, 2.0, events[0].Metrics["capacity"], 1e-9)
}

func TestRulesAreAdditive(t *testing.T) {
	e := fixedEngine(map[string]ZoneLimits{
		"desk1": {Name: "desk_1", Capacity: 1, Authorized: []int64{1}},
	})
	// One person triggers idle and unauthorized at once; both events emitted.
	view := dwell.View{People: []dwell.PersonView{
		person(2, "desk1", scanTime.Add(-2*time.Hour)),
	}}
	events := e.Detect(view, scanTime)
	assert.Len(t, eventsOfType(events, TypeIdle), 1)
	assert.Len(t, eventsOfType(events, TypeUnauthorized), 1)
}
