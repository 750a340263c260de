package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Worker{},
	&Prediction{},
}

// Worker is a rostered worker on a site.
type Worker struct {
	ID         uint      `json:"-" gorm:"primarykey;autoIncrement"`
	SiteID     string    `json:"mine_name" gorm:"size:128;uniqueIndex:idx_worker_site_id"`
	WorkerID   string    `json:"id" gorm:"size:64;uniqueIndex:idx_worker_site_id"`
	Name       string    `json:"name" gorm:"size:128"`
	Role       string    `json:"role" gorm:"size:32"`
	ShiftStart time.Time `json:"startTime"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

func (*Worker) TableName() string {
	return "workers"
}

// Prediction is one risk prediction, either recorded from the predictor or
// appended by the feed. Inputs and Probabilities are only set for predictor results.
type Prediction struct {
	ID            uint           `json:"-" gorm:"primarykey;autoIncrement"`
	SiteID        string         `json:"mine_name" gorm:"size:128;uniqueIndex:idx_prediction_site_record;index:idx_prediction_site_time,priority:1"`
	RecordID      string         `json:"_id" gorm:"size:64;uniqueIndex:idx_prediction_site_record"`
	RiskLevel     string         `json:"risk_level" gorm:"size:16"`
	RiskScore     float64        `json:"risk_score"`
	Zone          string         `json:"zone" gorm:"size:64"`
	Alert         string         `json:"alert,omitempty" gorm:"size:255"`
	Confidence    float64        `json:"confidence,omitempty"`
	Probabilities datatypes.JSON `json:"probabilities,omitempty"`
	Inputs        datatypes.JSON `json:"inputs,omitempty"`
	Timestamp     time.Time      `json:"timestamp" gorm:"index:idx_prediction_site_time,priority:2"`
	CreatedAt     time.Time      `json:"-"`
}

func (*Prediction) TableName() string {
	return "predictions"
}
