// Package fatigue classifies workers by time elapsed since their shift started.
package fatigue

import (
	"sort"
	"time"

	"github.com/kavach/opsengine/pkg/core"
)

// Elapsed-time thresholds. Both comparisons are strict, so exactly 8h is Safe
// and exactly 10h is Warning.
const (
	WarningAfter  = 8 * time.Hour
	CriticalAfter = 10 * time.Hour
)

// Classify returns the fatigue level of a shift that started at start.
// A zero or future start is rejected so the caller can exclude the worker
// instead of reporting them as Safe.
func Classify(start, now time.Time) (core.FatigueLevel, error) {
	if start.IsZero() {
		return "", core.Invalid("shiftStart", "must be set")
	}
	if start.After(now) {
		return "", core.Invalid("shiftStart", "%s is after %s", start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	elapsed := now.Sub(start)
	switch {
	case elapsed > CriticalAfter:
		return core.FatigueCritical, nil
	case elapsed > WarningAfter:
		return core.FatigueWarning, nil
	default:
		return core.FatigueSafe, nil
	}
}

// ClassifyAll classifies every worker against the same now.
// Workers that fail classification are left out of levels and returned in excluded, sorted.
func ClassifyAll(workers []core.Worker, now time.Time) (levels map[string]core.FatigueLevel, excluded []string) {
	levels = make(map[string]core.FatigueLevel, len(workers))
	for _, w := range workers {
		lvl, err := Classify(w.ShiftStart, now)
		if err != nil {
			excluded = append(excluded, w.ID)
			continue
		}
		levels[w.ID] = lvl
	}
	sort.Strings(excluded)
	return levels, excluded
}

// ShiftLabel names the rostered shift covering t: A 06:00-14:00,
// B 14:00-22:00 and C overnight.
func ShiftLabel(t time.Time) string {
	h := t.Hour()
	switch {
	case h >= 6 && h < 14:
		return "Shift A"
	case h >= 14 && h < 22:
		return "Shift B"
	default:
		return "Shift C"
	}
}
