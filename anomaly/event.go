// Package anomaly evaluates rule-based anomaly detection over dwell state:
// idle subjects, overcrowded zones, unauthorized presence and suspicious
// movement patterns.
package anomaly

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the rule that produced an event.
type Type string

const (
	TypeIdle               Type = "idle_person"
	TypeOvercrowded        Type = "overcrowded_zone"
	TypeUnauthorized       Type = "unauthorized_access"
	TypeSuspiciousMovement Type = "suspicious_movement"
)

// Severity grades an event.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is one detected anomaly. Events are immutable once created and are
// not retained by the engine beyond the evaluation that produced them.
// PersonID is 0 for zone-only events; ZoneID is empty for person-only events.
type Event struct {
	ID        uuid.UUID          `json:"id"`
	Type      Type               `json:"type"`
	PersonID  int64              `json:"person_id,omitempty"`
	ZoneID    string             `json:"zone_id,omitempty"`
	ZoneName  string             `json:"zone_name,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Severity  Severity           `json:"severity"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}
