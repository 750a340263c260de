// pkg/core/risk.go
package core

import "time"

// RiskLevel is the categorical output of a risk prediction.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Valid reports whether l is a known level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// HistoryRecord is one past risk prediction for a zone.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Level     RiskLevel `json:"riskLevel"`
	Score     float64   `json:"riskScore"` // [0,100]
	Zone      string    `json:"zone"`
	Timestamp time.Time `json:"timestamp"`
}

// AggregateRisk summarises a window of history records.
type AggregateRisk struct {
	Level       RiskLevel `json:"level"`
	SafetyScore int       `json:"safetyScore"` // [0,100]
	MeanScore   float64   `json:"meanScore"`
	Samples     int       `json:"samples"`
}

// GeotechnicalInput is the feature vector accepted by the external risk predictor.
type GeotechnicalInput struct {
	Zone             string  `json:"zone"`
	SlopeAngleDeg    float64 `json:"slope_angle_deg"`
	RainfallMM24h    float64 `json:"rainfall_mm_24h"`
	RockStrengthMPa  float64 `json:"rock_strength_mpa"`
	SeismicEvents24h float64 `json:"seismic_events_24h"`
	SoilMoisturePct  float64 `json:"soil_moisture_pct"`
	CrackWidthMM     float64 `json:"crack_width_mm"`
	MineDepthM       float64 `json:"mine_depth_m"`
	PastIncidents    float64 `json:"past_incidents"`
	BlastingActivity float64 `json:"blasting_activity"`
}

// Prediction is the result returned by the external risk predictor.
type Prediction struct {
	Level         RiskLevel          `json:"riskLevel"`
	Score         float64            `json:"riskScore"`
	Alert         string             `json:"alert"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Confidence    float64            `json:"confidence"`
	Timestamp     time.Time          `json:"timestamp"`
}
