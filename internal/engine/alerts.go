package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kavach/opsengine/pkg/core"
)

// alertTracker remembers the last published state and turns changes into alerts.
type alertTracker struct {
	hazard    core.HazardState
	fatigue   map[string]core.FatigueLevel
	overspeed map[string]bool
	risk      core.RiskLevel
}

func newAlertTracker() alertTracker {
	return alertTracker{
		hazard:    core.HazardNone,
		fatigue:   make(map[string]core.FatigueLevel),
		overspeed: make(map[string]bool),
		risk:      core.RiskLow,
	}
}

func (t *alertTracker) observe(snap core.OperationalSnapshot) []core.Alert {
	var out []core.Alert
	add := func(kind core.AlertKind, sev core.AlertSeverity, subject, msg string) {
		out = append(out, core.Alert{
			SiteID:   snap.SiteID,
			Sequence: snap.Sequence,
			Kind:     kind,
			Severity: sev,
			Subject:  subject,
			Message:  msg,
			Time:     snap.GeneratedAt,
		})
	}

	if snap.HazardState != t.hazard {
		switch snap.HazardState {
		case core.HazardCollision, core.HazardProximity:
			p := worstPair(snap.HazardPairs)
			kind, sev := core.AlertProximity, core.SeverityWarning
			if snap.HazardState == core.HazardCollision {
				kind, sev = core.AlertCollision, core.SeverityCritical
			}
			add(kind, sev, p.A+"/"+p.B,
				fmt.Sprintf("%s risk between %s and %s (%.0f m)", snap.HazardState, p.A, p.B, p.Meters))
		default:
			add(core.AlertHazardCleared, core.SeverityInfo, snap.SiteID, "All vehicles clear of each other")
		}
		t.hazard = snap.HazardState
	}

	for _, id := range slices.Sorted(maps.Keys(snap.WorkerFatigue)) {
		lvl := snap.WorkerFatigue[id]
		if lvl == core.FatigueSafe || lvl.Severity() <= t.fatigue[id].Severity() {
			continue
		}
		sev := core.SeverityWarning
		if lvl == core.FatigueCritical {
			sev = core.SeverityCritical
		}
		add(core.AlertFatigue, sev, id, fmt.Sprintf("Worker %s fatigue %s", id, lvl))
	}
	t.fatigue = maps.Clone(snap.WorkerFatigue)
	if t.fatigue == nil {
		t.fatigue = make(map[string]core.FatigueLevel)
	}

	speeds := make(map[string]float64, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		speeds[v.ID] = v.Speed
	}
	over := make(map[string]bool, len(snap.Overspeed))
	for _, id := range snap.Overspeed {
		over[id] = true
		if !t.overspeed[id] {
			add(core.AlertOverspeed, core.SeverityWarning, id,
				fmt.Sprintf("Vehicle %s overspeed at %.0f km/h", id, speeds[id]))
		}
	}
	t.overspeed = over

	if lvl := snap.AggregateRisk.Level; lvl != t.risk {
		sev := core.SeverityInfo
		switch lvl {
		case core.RiskHigh:
			sev = core.SeverityCritical
		case core.RiskMedium:
			sev = core.SeverityWarning
		}
		add(core.AlertRiskLevel, sev, snap.SiteID,
			fmt.Sprintf("Aggregate risk %s, safety score %d", lvl, snap.AggregateRisk.SafetyScore))
		t.risk = lvl
	}

	return out
}

// worstPair returns the most severe, then closest, pair.
func worstPair(pairs []core.HazardPair) core.HazardPair {
	var best core.HazardPair
	for i, p := range pairs {
		if i == 0 ||
			p.State.Severity() > best.State.Severity() ||
			(p.State == best.State && p.Distance < best.Distance) {
			best = p
		}
	}
	return best
}
