// Package gormstorage implements storage.Backend on any GORM dialect.
// The sqlite and postgres backends embed it and only add connection handling.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kavach/opsengine/internal/database"
	"github.com/kavach/opsengine/internal/model"
	"github.com/kavach/opsengine/internal/model/convert"
	"github.com/kavach/opsengine/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Dialector.Name())
	return database.Migrate(b.deps.DB)
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveWorker inserts or updates a worker keyed by site and worker id.
func (b *Backend) SaveWorker(ctx context.Context, site string, w core.Worker) error {
	m := convert.CoreToWorker(site, w)
	err := b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "worker_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "shift_start", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("saving worker %q: %w", w.ID, err)
	}
	return nil
}

// DeleteWorker removes a worker.
func (b *Backend) DeleteWorker(ctx context.Context, site, id string) error {
	res := b.deps.DB.WithContext(ctx).
		Where("site_id = ? AND worker_id = ?", site, id).
		Delete(&model.Worker{})
	if res.Error != nil {
		return fmt.Errorf("deleting worker %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("worker %q: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListWorkers returns the roster of a site sorted by id.
func (b *Backend) ListWorkers(ctx context.Context, site string) ([]core.Worker, error) {
	var rows []model.Worker
	if err := b.deps.DB.WithContext(ctx).
		Where("site_id = ?", site).
		Order("worker_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	out := make([]core.Worker, len(rows))
	for i, r := range rows {
		out[i] = convert.WorkerToCore(r)
	}
	return out, nil
}

// AppendHistory stores records. A record whose id already exists for the site is replaced.
func (b *Backend) AppendHistory(ctx context.Context, site string, records ...core.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]model.Prediction, len(records))
	for i, r := range records {
		rows[i] = convert.CoreToPrediction(site, r)
	}
	return b.upsertPredictions(ctx, rows)
}

// RecordPrediction stores a predictor result with its inputs.
func (b *Backend) RecordPrediction(ctx context.Context, site string, r core.HistoryRecord, in core.GeotechnicalInput, p core.Prediction) error {
	row := convert.PredictorResultToPrediction(site, r, in, p)
	return b.upsertPredictions(ctx, []model.Prediction{row})
}

func (b *Backend) upsertPredictions(ctx context.Context, rows []model.Prediction) error {
	err := b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site_id"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"risk_level", "risk_score", "zone", "alert", "confidence", "probabilities", "inputs", "timestamp",
		}),
	}).CreateInBatches(&rows, 100).Error
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// DeleteHistory removes one record.
func (b *Backend) DeleteHistory(ctx context.Context, site, id string) error {
	res := b.deps.DB.WithContext(ctx).
		Where("site_id = ? AND record_id = ?", site, id).
		Delete(&model.Prediction{})
	if res.Error != nil {
		return fmt.Errorf("deleting history record %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("history record %q: %w", id, core.ErrNotFound)
	}
	return nil
}

// ClearHistory removes every record of a site.
func (b *Backend) ClearHistory(ctx context.Context, site string) (int64, error) {
	res := b.deps.DB.WithContext(ctx).Where("site_id = ?", site).Delete(&model.Prediction{})
	if res.Error != nil {
		return 0, fmt.Errorf("clearing history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListHistory returns the most recent limit records, oldest first.
func (b *Backend) ListHistory(ctx context.Context, site string, limit int) ([]core.HistoryRecord, error) {
	q := b.deps.DB.WithContext(ctx).
		Where("site_id = ?", site).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Prediction
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	out := make([]core.HistoryRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = convert.PredictionToCore(r)
	}
	return out, nil
}

// Prediction returns the stored row of one record, including predictor inputs.
func (b *Backend) Prediction(ctx context.Context, site, id string) (model.Prediction, error) {
	var row model.Prediction
	err := b.deps.DB.WithContext(ctx).
		Where("site_id = ? AND record_id = ?", site, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, fmt.Errorf("history record %q: %w", id, core.ErrNotFound)
	}
	return row, err
}

// ListSites returns every site with stored workers or history.
func (b *Backend) ListSites(ctx context.Context) ([]string, error) {
	var sites []string
	err := b.deps.DB.WithContext(ctx).Raw(
		`SELECT site_id FROM workers UNION SELECT site_id FROM predictions ORDER BY site_id`,
	).Scan(&sites).Error
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	return sites, nil
}
