// Package risk reduces a window of prediction history to a site risk level
// and safety score.
package risk

import (
	"github.com/kavach/opsengine/internal/util"
	"github.com/kavach/opsengine/pkg/core"
)

// Mean-score cut-offs, inclusive.
const (
	HighAt   = 75.0
	MediumAt = 40.0
)

// LevelForScore maps a mean risk score to a level.
func LevelForScore(mean float64) core.RiskLevel {
	switch {
	case mean >= HighAt:
		return core.RiskHigh
	case mean >= MediumAt:
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

// Aggregate computes the level and safety score from records. It keeps no
// state, so the result is always consistent with the records passed in.
// An empty window is Low with a perfect score.
func Aggregate(records []core.HistoryRecord) core.AggregateRisk {
	if len(records) == 0 {
		return core.AggregateRisk{Level: core.RiskLow, SafetyScore: 100}
	}

	var sum float64
	for _, r := range records {
		sum += r.Score
	}
	mean := sum / float64(len(records))

	return core.AggregateRisk{
		Level:       LevelForScore(mean),
		SafetyScore: int(util.Clamp(util.RoundHalfUp(100-mean), 0, 100)),
		MeanScore:   mean,
		Samples:     len(records),
	}
}

// Band names the colour band the dashboard uses for a safety score.
func Band(safetyScore int) string {
	switch {
	case safetyScore < 50:
		return "danger"
	case safetyScore < 80:
		return "warning"
	default:
		return "good"
	}
}
