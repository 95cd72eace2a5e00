// Package pipeline wires the tracker, dwell tracker and anomaly engine into
// the per-tick flow a driving loop invokes: detections in, tracked identities
// and anomaly events out, with periodic eviction and snapshot persistence.
package pipeline

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/LdDl/zonewatch/anomaly"
	"github.com/LdDl/zonewatch/dwell"
	"github.com/LdDl/zonewatch/tracker"
)

// Config holds driving-loop policy. The core components stay pure; anything
// touching the clock cadence or the filesystem lives here.
type Config struct {
	// EvictionGrace drops dwell state for identities unseen longer than
	// this; zero disables eviction entirely
	EvictionGrace time.Duration
	// EvictEvery bounds how often the eviction sweep runs
	EvictEvery time.Duration
}

// Pipeline owns the synchronous per-tick flow. Tick and Scan may run from
// different goroutines: the dwell tracker hands Scan an atomic view.
type Pipeline struct {
	log       zerolog.Logger
	tracks    *tracker.Tracker
	dwells    *dwell.Tracker
	engine    *anomaly.Engine
	cfg       Config
	lastEvict time.Time
}

// New assembles a pipeline from the three core components.
func New(log zerolog.Logger, tracks *tracker.Tracker, dwells *dwell.Tracker, engine *anomaly.Engine, cfg Config) *Pipeline {
	if cfg.EvictEvery <= 0 {
		cfg.EvictEvery = time.Minute
	}
	return &Pipeline{
		log:    log,
		tracks: tracks,
		dwells: dwells,
		engine: engine,
		cfg:    cfg,
	}
}

// Tick runs one frame through the tracker and the dwell tracker and returns
// the identity-annotated detections.
func (p *Pipeline) Tick(detections []tracker.Detection, now time.Time) ([]tracker.TrackedDetection, error) {
	tracked, err := p.tracks.Update(detections)
	if err != nil {
		return nil, errors.Wrap(err, "Can't update tracker")
	}

	positions := make([]dwell.Position, len(tracked))
	for i, td := range tracked {
		positions[i] = dwell.Position{ID: td.ID, X: td.Box.CX, Y: td.Box.CY}
	}
	p.dwells.Update(positions, now)

	if p.cfg.EvictionGrace > 0 && now.Sub(p.lastEvict) >= p.cfg.EvictEvery {
		if evicted := p.dwells.Evict(now, p.cfg.EvictionGrace); evicted > 0 {
			p.log.Debug().Int("evicted", evicted).Msg("dropped stale dwell state")
		}
		p.lastEvict = now
	}
	return tracked, nil
}

// Scan evaluates the anomaly rules against a dwell view, logs every event
// and returns the batch.
func (p *Pipeline) Scan(now time.Time) []anomaly.Event {
	events := p.engine.Detect(p.dwells.View(), now)
	for _, ev := range events {
		entry := p.log.Warn().
			Str("event_id", ev.ID.String()).
			Str("type", string(ev.Type)).
			Str("severity", string(ev.Severity))
		if ev.PersonID != 0 {
			entry = entry.Int64("person_id", ev.PersonID)
		}
		if ev.ZoneID != "" {
			entry = entry.Str("zone_id", ev.ZoneID)
		}
		entry.Msg("anomaly detected")
	}
	return events
}

// WriteSnapshot writes the dwell snapshot as JSON.
func (p *Pipeline) WriteSnapshot(w io.Writer) error {
	return p.dwells.Snapshot().Encode(w)
}

// SaveSnapshot persists the dwell snapshot to a file. I/O failures are the
// caller's to handle; they never feed back into core state.
func (p *Pipeline) SaveSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Can't create snapshot file %s", path)
	}
	defer f.Close()
	if err := p.WriteSnapshot(f); err != nil {
		return err
	}
	p.log.Info().Str("path", path).Msg("dwell snapshot saved")
	return nil
}
