// pkg/core/alert.go
package core

import "time"

// AlertKind identifies the transition that raised an alert.
type AlertKind string

const (
	AlertCollision     AlertKind = "collision"
	AlertProximity     AlertKind = "proximity"
	AlertHazardCleared AlertKind = "hazard_cleared"
	AlertFatigue       AlertKind = "fatigue"
	AlertOverspeed     AlertKind = "overspeed"
	AlertRiskLevel     AlertKind = "risk_level"
)

// AlertSeverity mirrors the notification classes shown to operators.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a discrete event derived from the change between two snapshots.
type Alert struct {
	SiteID   string        `json:"siteId"`
	Sequence uint64        `json:"sequence"` // snapshot that raised it
	Kind     AlertKind     `json:"kind"`
	Severity AlertSeverity `json:"severity"`
	Subject  string        `json:"subject"`
	Message  string        `json:"message"`
	Time     time.Time     `json:"time"`
}
