// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/kavach/opsengine/internal/model"
	"github.com/kavach/opsengine/pkg/core"
)

// toJSON marshals v for a JSON column. nil and empty values become NULL.
func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" || string(data) == "{}" {
		return nil
	}
	return datatypes.JSON(data)
}

// CoreToWorker converts a core.Worker to a GORM model.Worker.
// core.Worker.ID maps to GORM Worker.WorkerID.
func CoreToWorker(site string, w core.Worker) model.Worker {
	return model.Worker{
		SiteID:     site,
		WorkerID:   w.ID,
		Name:       w.Name,
		Role:       string(w.Role),
		ShiftStart: w.ShiftStart.UTC(),
	}
}

// WorkerToCore converts a GORM model.Worker to a core.Worker.
func WorkerToCore(m model.Worker) core.Worker {
	return core.Worker{
		ID:         m.WorkerID,
		Name:       m.Name,
		Role:       core.Role(m.Role),
		ShiftStart: m.ShiftStart.UTC(),
	}
}

// CoreToPrediction converts a history record to a GORM model.Prediction.
func CoreToPrediction(site string, r core.HistoryRecord) model.Prediction {
	return model.Prediction{
		SiteID:    site,
		RecordID:  r.ID,
		RiskLevel: string(r.Level),
		RiskScore: r.Score,
		Zone:      r.Zone,
		Timestamp: r.Timestamp.UTC(),
	}
}

// PredictionToCore converts a GORM model.Prediction to a history record.
func PredictionToCore(m model.Prediction) core.HistoryRecord {
	return core.HistoryRecord{
		ID:        m.RecordID,
		Level:     core.RiskLevel(m.RiskLevel),
		Score:     m.RiskScore,
		Zone:      m.Zone,
		Timestamp: m.Timestamp.UTC(),
	}
}

// PredictorResultToPrediction keeps the predictor's inputs and class
// probabilities alongside the history record they produced.
func PredictorResultToPrediction(site string, r core.HistoryRecord, in core.GeotechnicalInput, p core.Prediction) model.Prediction {
	m := CoreToPrediction(site, r)
	m.Alert = p.Alert
	m.Confidence = p.Confidence
	if len(p.Probabilities) > 0 {
		m.Probabilities = toJSON(p.Probabilities)
	}
	m.Inputs = toJSON(in)
	return m
}

// HistoryRecordFromPrediction builds the history record for a predictor result.
func HistoryRecordFromPrediction(id string, in core.GeotechnicalInput, p core.Prediction) core.HistoryRecord {
	return core.HistoryRecord{
		ID:        id,
		Level:     p.Level,
		Score:     p.Score,
		Zone:      in.Zone,
		Timestamp: p.Timestamp.UTC(),
	}
}
