package mongostorage

import (
	"time"

	"github.com/kavach/opsengine/pkg/core"
)

type workerDoc struct {
	ID        string    `bson:"id"`
	Name      string    `bson:"name"`
	Role      string    `bson:"role"`
	StartTime time.Time `bson:"startTime"`
	MineName  string    `bson:"mine_name"`
}

func toWorkerDoc(site string, w core.Worker) workerDoc {
	return workerDoc{
		ID:        w.ID,
		Name:      w.Name,
		Role:      string(w.Role),
		StartTime: w.ShiftStart.UTC(),
		MineName:  site,
	}
}

func (d workerDoc) toCore() core.Worker {
	return core.Worker{
		ID:         d.ID,
		Name:       d.Name,
		Role:       core.Role(d.Role),
		ShiftStart: d.StartTime.UTC(),
	}
}

type predictionDoc struct {
	ID            string                  `bson:"id"`
	MineName      string                  `bson:"mine_name"`
	RiskLevel     string                  `bson:"risk_level"`
	RiskScore     float64                 `bson:"risk_score"`
	Zone          string                  `bson:"zone"`
	Alert         string                  `bson:"alert,omitempty"`
	Confidence    float64                 `bson:"confidence,omitempty"`
	Probabilities map[string]float64      `bson:"probabilities,omitempty"`
	Inputs        *core.GeotechnicalInput `bson:"inputs,omitempty"`
	Timestamp     time.Time               `bson:"timestamp"`
}

func toPredictionDoc(site string, r core.HistoryRecord) predictionDoc {
	return predictionDoc{
		ID:        r.ID,
		MineName:  site,
		RiskLevel: string(r.Level),
		RiskScore: r.Score,
		Zone:      r.Zone,
		Timestamp: r.Timestamp.UTC(),
	}
}

func (d predictionDoc) toCore() core.HistoryRecord {
	return core.HistoryRecord{
		ID:        d.ID,
		Level:     core.RiskLevel(d.RiskLevel),
		Score:     d.RiskScore,
		Zone:      d.Zone,
		Timestamp: d.Timestamp.UTC(),
	}
}

// newestFirstToRecords converts a newest-first query result into oldest-first records.
func newestFirstToRecords(docs []predictionDoc) []core.HistoryRecord {
	out := make([]core.HistoryRecord, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d.toCore()
	}
	return out
}
