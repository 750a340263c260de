// pkg/core/snapshot.go
package core

import (
	"maps"
	"slices"
	"time"
)

// HazardState is the site-wide collision classification.
type HazardState string

const (
	HazardNone      HazardState = "None"
	HazardProximity HazardState = "Proximity"
	HazardCollision HazardState = "Collision"
)

// Severity orders hazard states from None (0) to Collision (2).
func (h HazardState) Severity() int {
	switch h {
	case HazardProximity:
		return 1
	case HazardCollision:
		return 2
	default:
		return 0
	}
}

// HazardPair is a pair of vehicles whose separation triggered a hazard.
type HazardPair struct {
	A        string      `json:"a"`
	B        string      `json:"b"`
	Distance float64     `json:"distance"` // planar, degrees
	Meters   float64     `json:"meters"`   // approximate, informational
	State    HazardState `json:"state"`
}

// OperationalSnapshot is the complete derived state of a site at one tick.
// A published snapshot is never modified; consumers must treat its slices
// and maps as read-only and use Clone for a private copy.
type OperationalSnapshot struct {
	SiteID        string                  `json:"siteId"`
	Sequence      uint64                  `json:"sequence"`
	Vehicles      []Vehicle               `json:"vehicles"` // ordered by ID
	HazardState   HazardState             `json:"hazardState"`
	HazardPairs   []HazardPair            `json:"hazardPairs"`
	Overspeed     []string                `json:"overspeed"`
	WorkerFatigue map[string]FatigueLevel `json:"workerFatigue"`
	AggregateRisk AggregateRisk           `json:"aggregateRisk"`
	ActiveShift   string                  `json:"activeShift"`
	GeneratedAt   time.Time               `json:"generatedAt"`
}

// Clone returns a deep copy of the snapshot.
func (s OperationalSnapshot) Clone() OperationalSnapshot {
	out := s
	out.Vehicles = slices.Clone(s.Vehicles)
	out.HazardPairs = slices.Clone(s.HazardPairs)
	out.Overspeed = slices.Clone(s.Overspeed)
	out.WorkerFatigue = maps.Clone(s.WorkerFatigue)
	return out
}
