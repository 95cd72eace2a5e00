package anomaly

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LdDl/zonewatch/dwell"
	"github.com/LdDl/zonewatch/zones"
)

// Config holds the fixed rule thresholds.
type Config struct {
	// IdleThreshold is the dwell duration in a single zone beyond which a
	// subject counts as idle
	IdleThreshold time.Duration
	// MovementWindow is the trailing window for movement-rate analysis
	MovementWindow time.Duration
	// SuspiciousTransitions is the minimum number of movement samples minus
	// one inside the window to flag suspicious movement
	SuspiciousTransitions int
	// RefreshInterval bounds how often the zone config cache is rebuilt
	// from the index during evaluation
	RefreshInterval time.Duration
}

// DefaultConfig returns the stock thresholds: 30 minutes idle, 10 minute
// movement window, 5 transitions, 60 second config refresh.
func DefaultConfig() Config {
	return Config{
		IdleThreshold:         30 * time.Minute,
		MovementWindow:        10 * time.Minute,
		SuspiciousTransitions: 5,
		RefreshInterval:       time.Minute,
	}
}

// ZoneLimits is the cached per-zone configuration the rules evaluate against.
type ZoneLimits struct {
	Name     string
	Capacity int
	// Authorized identities; empty means unrestricted
	Authorized []int64
}

// Engine evaluates all rules over a dwell view. It owns no persistent state
// beyond the cached zone configuration, which is refreshed from the index at
// most every RefreshInterval of evaluation time so zone reconfiguration is
// picked up without a restart.
type Engine struct {
	index       zones.Index
	cfg         Config
	limits      map[string]ZoneLimits
	lastRefresh time.Time
	frozen      bool
}

// NewEngine creates an engine over the given zone index. The zone config
// cache is populated on the first Detect call.
func NewEngine(index zones.Index, cfg Config) *Engine {
	return &Engine{
		index:  index,
		cfg:    cfg,
		limits: make(map[string]ZoneLimits),
	}
}

// SetZoneConfig replaces the cached zone configuration with a fixed snapshot
// and disables index refreshes. Intended for deterministic evaluation against
// an injected configuration.
func (e *Engine) SetZoneConfig(limits map[string]ZoneLimits) {
	e.limits = make(map[string]ZoneLimits, len(limits))
	for id, lim := range limits {
		e.limits[id] = lim
	}
	e.frozen = true
}

// RefreshZoneConfig rebuilds the cache from the index. A zone whose metadata
// is missing or inconsistent keeps its previous cached entry, so detection
// degrades to the stale config rather than crashing the scan. Desk zones
// named like "desk_<n>" with no explicit allow-list infer identity n as the
// single authorized occupant.
func (e *Engine) RefreshZoneConfig(now time.Time) {
	for _, id := range e.index.IDs() {
		meta, ok := e.index.Metadata(id)
		if !ok {
			continue
		}
		lim := ZoneLimits{
			Name:       meta.Name,
			Capacity:   meta.Capacity,
			Authorized: meta.Authorized,
		}
		if meta.Type == zones.Desk && len(lim.Authorized) == 0 {
			if owner, found := deskOwner(meta.Name); found {
				lim.Authorized = []int64{owner}
			}
		}
		e.limits[id] = lim
	}
	e.lastRefresh = now
}

// deskOwner extracts the owner identity from desk names like "desk_12".
func deskOwner(name string) (int64, bool) {
	idx := strings.LastIndex(name, "_")
	if idx < 0 || idx == len(name)-1 {
		return 0, false
	}
	owner, err := strconv.ParseInt(name[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return owner, true
}

// Detect runs all four rules over the view and concatenates their events.
// Rules are independent; none suppresses another. Output ordering is not
// contractually meaningful.
func (e *Engine) Detect(view dwell.View, now time.Time) []Event {
	if !e.frozen && now.Sub(e.lastRefresh) >= e.cfg.RefreshInterval {
		e.RefreshZoneConfig(now)
	}
	events := e.detectIdle(view, now)
	events = append(events, e.detectOvercrowded(view, now)...)
	events = append(events, e.detectUnauthorized(view, now)...)
	events = append(events, e.detectSuspiciousMovement(view, now)...)
	return events
}

// detectIdle flags subjects dwelling in one zone past the idle threshold.
func (e *Engine) detectIdle(view dwell.View, now time.Time) []Event {
	var events []Event
	for _, person := range view.People {
		if person.CurrentZone == "" || person.EntryTime.IsZero() {
			continue
		}
		idle := now.Sub(person.EntryTime)
		if idle <= e.cfg.IdleThreshold {
			continue
		}
		severity := SeverityMedium
		if idle > 2*e.cfg.IdleThreshold {
			severity = SeverityHigh
		}
		events = append(events, Event{
			ID:        uuid.New(),
			Type:      TypeIdle,
			PersonID:  person.ID,
			ZoneID:    person.CurrentZone,
			ZoneName:  e.limits[person.CurrentZone].Name,
			Timestamp: now,
			Severity:  severity,
			Metrics: map[string]float64{
				"idle_seconds": idle.Seconds(),
			},
		})
	}
	return events
}

// detectOvercrowded flags zones whose occupant count exceeds capacity.
// Zones without a cached config entry are not checked.
func (e *Engine) detectOvercrowded(view dwell.View, now time.Time) []Event {
	counts := make(map[string]int)
	for _, person := range view.People {
		if person.CurrentZone != "" {
			counts[person.CurrentZone]++
		}
	}
	var events []Event
	for zoneID, count := range counts {
		lim, ok := e.limits[zoneID]
		if !ok || lim.Capacity <= 0 || count <= lim.Capacity {
			continue
		}
		severity := SeverityMedium
		if count > lim.Capacity+2 {
			severity = SeverityHigh
		}
		events = append(events, Event{
			ID:        uuid.New(),
			Type:      TypeOvercrowded,
			ZoneID:    zoneID,
			ZoneName:  lim.Name,
			Timestamp: now,
			Severity:  severity,
			Metrics: map[string]float64{
				"count":    float64(count),
				"capacity": float64(lim.Capacity),
			},
		})
	}
	return events
}

// detectUnauthorized flags subjects inside zones with a non-empty allow-list
// they are not a member of. Always high severity.
func (e *Engine) detectUnauthorized(view dwell.View, now time.Time) []Event {
	var events []Event
	for _, person := range view.People {
		if person.CurrentZone == "" {
			continue
		}
		lim, ok := e.limits[person.CurrentZone]
		if !ok || len(lim.Authorized) == 0 {
			continue
		}
		if containsID(lim.Authorized, person.ID) {
			continue
		}
		events = append(events, Event{
			ID:        uuid.New(),
			Type:      TypeUnauthorized,
			PersonID:  person.ID,
			ZoneID:    person.CurrentZone,
			ZoneName:  lim.Name,
			Timestamp: now,
			Severity:  SeverityHigh,
		})
	}
	return events
}

// detectSuspiciousMovement flags subjects with a high movement-sample rate
// inside the trailing window. Transitions count consecutive sample pairs
// regardless of whether the zone actually changed between them: this is the
// sampling-based definition, not a de-duplicated zone-change count.
func (e *Engine) detectSuspiciousMovement(view dwell.View, now time.Time) []Event {
	var events []Event
	for _, person := range view.People {
		recent := 0
		uniqueZones := make(map[string]struct{})
		for _, move := range person.History {
			if now.Sub(move.At) < e.cfg.MovementWindow {
				recent++
				uniqueZones[move.Zone] = struct{}{}
			}
		}
		if recent < 2 {
			continue
		}
		transitions := recent - 1
		if transitions < e.cfg.SuspiciousTransitions {
			continue
		}
		severity := SeverityMedium
		if transitions >= 2*e.cfg.SuspiciousTransitions {
			severity = SeverityHigh
		}
		events = append(events, Event{
			ID:        uuid.New(),
			Type:      TypeSuspiciousMovement,
			PersonID:  person.ID,
			Timestamp: now,
			Severity:  severity,
			Metrics: map[string]float64{
				"transitions":  float64(transitions),
				"unique_zones": float64(len(uniqueZones)),
			},
		})
	}
	return events
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
