// Command zonewatch runs the tracking/dwell/anomaly pipeline against
// synthetic subjects wandering a default office layout. It exists to exercise
// the full core without a camera or detector attached.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/LdDl/zonewatch/anomaly"
	"github.com/LdDl/zonewatch/dwell"
	"github.com/LdDl/zonewatch/pipeline"
	"github.com/LdDl/zonewatch/tracker"
	"github.com/LdDl/zonewatch/zones"
)

const (
	frameWidth  = 640.0
	frameHeight = 480.0
)

func main() {
	var (
		zonesPath = flag.String("zones", "data/zones/default_zones.json", "path to zones definition file")
		outputDir = flag.String("output", "data/output", "output directory for dwell snapshots")
		ticks     = flag.Int("ticks", 3000, "number of frames to simulate")
		fps       = flag.Float64("fps", 25.0, "simulated frames per second")
		seed      = flag.Int64("seed", 42, "random seed for the synthetic subjects")
		subjects  = flag.Int("subjects", 3, "number of synthetic subjects")
		scanEvery = flag.Duration("scan-every", 10*time.Second, "anomaly scan cadence (simulated time)")
		saveEvery = flag.Duration("save-every", 5*time.Minute, "snapshot save cadence (simulated time)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	index, err := loadOrCreateZones(*zonesPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up zones")
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("can't create output directory")
	}

	p := pipeline.New(
		log,
		tracker.New(30, 0.3, tracker.WithSmoothing(1.0 / *fps)),
		dwell.NewTracker(index),
		anomaly.NewEngine(index, anomaly.DefaultConfig()),
		pipeline.Config{EvictionGrace: 2 * time.Minute, EvictEvery: 30 * time.Second},
	)

	rng := rand.New(rand.NewSource(*seed))
	walkers := make([]*walker, *subjects)
	for i := range walkers {
		walkers[i] = newWalker(rng)
	}

	dt := time.Duration(float64(time.Second) / *fps)
	start := time.Now()
	lastScan := start
	lastSave := start
	log.Info().Int("ticks", *ticks).Float64("fps", *fps).Int("subjects", *subjects).Msg("simulation started")

	for tick := 0; tick < *ticks; tick++ {
		now := start.Add(time.Duration(tick) * dt)

		detections := make([]tracker.Detection, 0, len(walkers))
		for _, w := range walkers {
			detections = append(detections, w.step(rng))
		}

		if _, err := p.Tick(detections, now); err != nil {
			log.Error().Err(err).Int("tick", tick).Msg("tick failed")
			continue
		}

		if now.Sub(lastScan) >= *scanEvery {
			p.Scan(now)
			lastScan = now
		}
		if now.Sub(lastSave) >= *saveEvery {
			path := filepath.Join(*outputDir, fmt.Sprintf("tracking_data_%d.json", now.Unix()))
			if err := p.SaveSnapshot(path); err != nil {
				log.Error().Err(err).Msg("periodic snapshot failed")
			}
			lastSave = now
		}
	}

	finalPath := filepath.Join(*outputDir, "tracking_data_final.json")
	if err := p.SaveSnapshot(finalPath); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	}
	log.Info().Msg("simulation finished")
}

// loadOrCreateZones loads the zone file, writing the default office layout
// first when the file does not exist yet.
func loadOrCreateZones(path string, log zerolog.Logger) (*zones.StaticIndex, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("zones file missing, creating default layout")
		index := defaultZones()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := index.SaveFile(path); err != nil {
			return nil, err
		}
		return index, nil
	}
	return zones.LoadFile(path)
}

func defaultZones() *zones.StaticIndex {
	index := zones.NewStaticIndex()
	// Errors impossible here: ids and polygons are statically valid.
	_ = index.Add(zones.Zone{
		ID: "desk1", Name: "desk_1", Type: zones.Desk,
		Polygon: rect(100, 100, 300, 200),
	})
	_ = index.Add(zones.Zone{
		ID: "meeting1", Name: "Meeting Room", Type: zones.MeetingRoom,
		Polygon: rect(350, 100, 550, 200),
	})
	_ = index.Add(zones.Zone{
		ID: "break1", Name: "Break Area", Type: zones.BreakArea,
		Polygon: rect(100, 250, 300, 350),
	})
	return index
}

func rect(x1, y1, x2, y2 float64) []r2.Vec {
	return []r2.Vec{{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2}}
}

// walker is a synthetic subject doing a bounded random walk.
type walker struct {
	x, y   float64
	vx, vy float64
	w, h   float64
}

func newWalker(rng *rand.Rand) *walker {
	return &walker{
		x:  rng.Float64() * frameWidth,
		y:  rng.Float64() * frameHeight,
		vx: (rng.Float64() - 0.5) * 4,
		vy: (rng.Float64() - 0.5) * 4,
		w:  40 + rng.Float64()*20,
		h:  80 + rng.Float64()*30,
	}
}

func (w *walker) step(rng *rand.Rand) tracker.Detection {
	w.vx += (rng.Float64() - 0.5) * 0.5
	w.vy += (rng.Float64() - 0.5) * 0.5
	w.x += w.vx
	w.y += w.vy
	if w.x < 0 || w.x > frameWidth {
		w.vx = -w.vx
		w.x = min(max(w.x, 0), frameWidth)
	}
	if w.y < 0 || w.y > frameHeight {
		w.vy = -w.vy
		w.y = min(max(w.y, 0), frameHeight)
	}
	return tracker.Detection{
		Box:        tracker.NewRect(w.x, w.y, w.w, w.h),
		Confidence: 0.6 + rng.Float64()*0.4,
	}
}
