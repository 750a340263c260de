package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kavach/opsengine/pkg/core"
)

func records(scores ...float64) []core.HistoryRecord {
	out := make([]core.HistoryRecord, len(scores))
	for i, s := range scores {
		out[i] = core.HistoryRecord{
			ID:        fmt.Sprintf("r%d", i),
			Level:     LevelForScore(s),
			Score:     s,
			Timestamp: time.Date(2026, 3, 1, 0, i, 0, 0, time.UTC),
		}
	}
	return out
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil)
	assert.Equal(t, core.AggregateRisk{Level: core.RiskLow, SafetyScore: 100}, got)
}

func TestAggregate_SingleEighty(t *testing.T) {
	got := Aggregate(records(80))
	assert.Equal(t, core.AggregateRisk{Level: core.RiskHigh, SafetyScore: 20, MeanScore: 80, Samples: 1}, got)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		level  core.RiskLevel
		safety int
	}{
		{"single low", []float64{10}, core.RiskLow, 90},
		{"mixed medium", []float64{20, 40, 90}, core.RiskMedium, 50},
		{"exactly forty", []float64{40}, core.RiskMedium, 60},
		{"just under forty", []float64{39.99}, core.RiskLow, 60},
		{"exactly seventy five", []float64{75}, core.RiskHigh, 25},
		{"all max", []float64{100, 100}, core.RiskHigh, 0},
		{"all zero", []float64{0, 0, 0}, core.RiskLow, 100},
		{"half rounds up", []float64{50.5}, core.RiskMedium, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(records(tt.scores...))
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.safety, got.SafetyScore)
			assert.Equal(t, len(tt.scores), got.Samples)
		})
	}
}

func TestAggregate_RecomputedAfterDeletion(t *testing.T) {
	window := records(90, 80, 10)
	before := Aggregate(window)
	after := Aggregate(window[2:])

	assert.Equal(t, core.RiskMedium, before.Level)
	assert.Equal(t, core.RiskLow, after.Level)
	assert.Equal(t, 90, after.SafetyScore)
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, core.RiskLow, LevelForScore(0))
	assert.Equal(t, core.RiskMedium, LevelForScore(40))
	assert.Equal(t, core.RiskMedium, LevelForScore(74.9))
	assert.Equal(t, core.RiskHigh, LevelForScore(75))
}

func TestBand(t *testing.T) {
	assert.Equal(t, "danger", Band(49))
	assert.Equal(t, "warning", Band(50))
	assert.Equal(t, "warning", Band(79))
	assert.Equal(t, "good", Band(80))
}
