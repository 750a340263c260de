// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/pkg/core"
)

// PredictionRecord keeps a predictor result next to the history record it produced.
type PredictionRecord struct {
	Record core.HistoryRecord
	Input  *core.GeotechnicalInput
	Result *core.Prediction
}

// siteRecord groups everything stored for one site.
type siteRecord struct {
	workers map[string]core.Worker
	history []PredictionRecord // append order
}

// Backend keeps rosters and history in memory and optionally exports them to JSON on Close.
type Backend struct {
	cfg   config.MemoryConfig
	sites map[string]*siteRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		sites: make(map[string]*siteRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the stored data when an output directory is configured.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

func (b *Backend) site(id string) *siteRecord {
	s, ok := b.sites[id]
	if !ok {
		s = &siteRecord{workers: make(map[string]core.Worker)}
		b.sites[id] = s
	}
	return s
}

// SaveWorker adds or replaces a worker.
func (b *Backend) SaveWorker(_ context.Context, site string, w core.Worker) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.site(site).workers[w.ID] = w
	return nil
}

// DeleteWorker removes a worker.
func (b *Backend) DeleteWorker(_ context.Context, site, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sites[site]
	if !ok {
		return fmt.Errorf("worker %q: %w", id, core.ErrNotFound)
	}
	if _, ok := s.workers[id]; !ok {
		return fmt.Errorf("worker %q: %w", id, core.ErrNotFound)
	}
	delete(s.workers, id)
	return nil
}

// ListWorkers returns the roster of a site sorted by id.
func (b *Backend) ListWorkers(_ context.Context, site string) ([]core.Worker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sites[site]
	if !ok {
		return []core.Worker{}, nil
	}
	out := make([]core.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendHistory appends records. A record whose id already exists replaces it in place.
func (b *Backend) AppendHistory(_ context.Context, site string, records ...core.HistoryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.site(site)
	for _, r := range records {
		s.put(PredictionRecord{Record: r})
	}
	return nil
}

// RecordPrediction appends a predictor result.
func (b *Backend) RecordPrediction(_ context.Context, site string, r core.HistoryRecord, in core.GeotechnicalInput, p core.Prediction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.site(site).put(PredictionRecord{Record: r, Input: &in, Result: &p})
	return nil
}

func (s *siteRecord) put(pr PredictionRecord) {
	for i, existing := range s.history {
		if existing.Record.ID == pr.Record.ID {
			s.history[i] = pr
			return
		}
	}
	s.history = append(s.history, pr)
}

// DeleteHistory removes one record.
func (b *Backend) DeleteHistory(_ context.Context, site, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sites[site]; ok {
		for i, pr := range s.history {
			if pr.Record.ID == id {
				s.history = append(s.history[:i], s.history[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("history record %q: %w", id, core.ErrNotFound)
}

// ClearHistory removes every record of a site and returns how many were removed.
func (b *Backend) ClearHistory(_ context.Context, site string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sites[site]
	if !ok {
		return 0, nil
	}
	n := int64(len(s.history))
	s.history = nil
	return n, nil
}

// ListHistory returns the most recent limit records ordered by timestamp, oldest first.
func (b *Backend) ListHistory(_ context.Context, site string, limit int) ([]core.HistoryRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sites[site]
	if !ok {
		return []core.HistoryRecord{}, nil
	}
	out := make([]core.HistoryRecord, len(s.history))
	for i, pr := range s.history {
		out[i] = pr.Record
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Predictions returns the stored predictor results of a site in append order.
func (b *Backend) Predictions(site string) []PredictionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sites[site]
	if !ok {
		return nil
	}
	var out []PredictionRecord
	for _, pr := range s.history {
		if pr.Result != nil {
			out = append(out, pr)
		}
	}
	return out
}

// ListSites returns every site with stored data.
func (b *Backend) ListSites(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.sites))
	for id, s := range b.sites {
		if len(s.workers) > 0 || len(s.history) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetExportedFilePath returns the path of the last export, if any.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
