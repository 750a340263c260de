// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/kavach/opsengine/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
// Workers and history records are scoped by site. Deleting an unknown id
// returns an error wrapping core.ErrNotFound.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Roster
	SaveWorker(ctx context.Context, site string, w core.Worker) error
	DeleteWorker(ctx context.Context, site, id string) error
	ListWorkers(ctx context.Context, site string) ([]core.Worker, error)

	// Risk history
	AppendHistory(ctx context.Context, site string, records ...core.HistoryRecord) error
	RecordPrediction(ctx context.Context, site string, r core.HistoryRecord, in core.GeotechnicalInput, p core.Prediction) error
	DeleteHistory(ctx context.Context, site, id string) error
	ClearHistory(ctx context.Context, site string) (int64, error)
	// ListHistory returns the most recent limit records, oldest first.
	// A limit <= 0 returns everything.
	ListHistory(ctx context.Context, site string, limit int) ([]core.HistoryRecord, error)

	// ListSites returns every site that has stored workers or history, sorted.
	ListSites(ctx context.Context) ([]string, error)
}
