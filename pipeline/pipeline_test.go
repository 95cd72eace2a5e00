package pipeline

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/LdDl/zonewatch/anomaly"
	"github.com/LdDl/zonewatch/dwell"
	"github.com/LdDl/zonewatch/tracker"
	"github.com/LdDl/zonewatch/zones"
)

func testIndex(t *testing.T) *zones.StaticIndex {
	t.Helper()
	ix := zones.NewStaticIndex()
	require.NoError(t, ix.Add(zones.Zone{
		ID: "desk1", Name: "desk_1", Type: zones.Desk,
		Polygon: []r2.Vec{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 300, Y: 200}, {X: 100, Y: 200}},
	}))
	return ix
}

func testPipeline(t *testing.T, ix *zones.StaticIndex, cfg Config) *Pipeline {
	t.Helper()
	return New(
		zerolog.Nop(),
		tracker.New(5, 0.3),
		dwell.NewTracker(ix),
		anomaly.NewEngine(ix, anomaly.DefaultConfig()),
		cfg,
	)
}

func TestTickFlowsTrackerIntoDwell(t *testing.T) {
	ix := testIndex(t)
	p := testPipeline(t, ix, Config{})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deskDet := tracker.Detection{Box: tracker.NewRect(200, 150, 40, 80), Confidence: 0.9}

	tracked, err := p.Tick([]tracker.Detection{deskDet}, start)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, int64(1), tracked[0].ID)

	_, err = p.Tick([]tracker.Detection{deskDet}, start.Add(10*time.Second))
	require.NoError(t, err)

	// The subject sat in a productive desk zone for 10 seconds.
	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(&buf))
	var snap dwell.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.InDelta(t, 10.0, snap.ProductiveTime["1"], 1e-9)
}

func TestScanEmitsIdleEvent(t *testing.T) {
	ix := testIndex(t)
	p := testPipeline(t, ix, Config{})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deskDet := tracker.Detection{Box: tracker.NewRect(200, 150, 40, 80), Confidence: 0.9}

	_, err := p.Tick([]tracker.Detection{deskDet}, start)
	require.NoError(t, err)

	// No anomalies right away.
	assert.Empty(t, p.Scan(start.Add(time.Second)))

	// After 40 minutes in the same zone the subject is idle.
	events := p.Scan(start.Add(40 * time.Minute))
	require.NotEmpty(t, events)
	found := false
	for _, ev := range events {
		if ev.Type == anomaly.TypeIdle && ev.PersonID == 1 {
			found = true
			assert.Equal(t, anomaly.SeverityMedium, ev.Severity)
		}
	}
	assert.True(t, found, "expected an idle event for identity 1")
}

func TestEvictionSweep(t *testing.T) {
	ix := testIndex(t)
	p := testPipeline(t, ix, Config{EvictionGrace: 30 * time.Second, EvictEvery: time.Second})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deskDet := tracker.Detection{Box: tracker.NewRect(200, 150, 40, 80), Confidence: 0.9}

	_, err := p.Tick([]tracker.Detection{deskDet}, start)
	require.NoError(t, err)

	// The subject vanishes; after the grace period a tick sweeps its state.
	_, err = p.Tick(nil, start.Add(2*time.Minute))
	require.NoError(t, err)

	events := p.Scan(start.Add(2 * time.Minute))
	assert.Empty(t, events, "evicted identity should no longer be scanned")
}

func TestSaveSnapshot(t *testing.T) {
	ix := testIndex(t)
	p := testPipeline(t, ix, Config{})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deskDet := tracker.Detection{Box: tracker.NewRect(200, 150, 40, 80), Confidence: 0.9}
	_, err := p.Tick([]tracker.Detection{deskDet}, start)
	require.NoError(t, err)
	_, err = p.Tick(nil, start.Add(5*time.Second))
	require.NoError(t, err)

	path := t.TempDir() + "/snapshot.json"
	require.NoError(t, p.SaveSnapshot(path))

	assert.FileExists(t, path)
}
