package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/internal/model/convert"
	"github.com/kavach/opsengine/internal/parser"
	"github.com/kavach/opsengine/internal/storage"
	"github.com/kavach/opsengine/internal/store"
	"github.com/kavach/opsengine/pkg/core"
)

// ErrNoPredictor is returned by Predict when no model client is configured.
var ErrNoPredictor = errors.New("predictor not configured")

// Predictor scores geotechnical readings. *api.Client satisfies it.
type Predictor interface {
	Predict(ctx context.Context, site string, in core.GeotechnicalInput) (core.Prediction, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine    *engine.Engine
	Backend   storage.Backend
	Parser    *parser.Parser
	Predictor Predictor
	Logger    *slog.Logger
	// Now stamps predictions the model returns without a timestamp.
	Now func() time.Time
}

// Service applies feed mutations: persist first, then the live store, then recompute.
type Service struct {
	deps Dependencies

	mu     sync.Mutex
	loaded map[string]bool
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger, deps.Now)
	}
	return &Service{deps: deps, loaded: make(map[string]bool)}
}

// Parser returns the payload parser shared with the transports.
func (s *Service) Parser() *parser.Parser {
	return s.deps.Parser
}

// Engine returns the engine the service mutates.
func (s *Service) Engine() *engine.Engine {
	return s.deps.Engine
}

func (s *Service) store(site string) (*store.Store, error) {
	return s.deps.Engine.Store(site)
}

// recompute refreshes a running site. Idle and stopped sites pick the change up on start.
func (s *Service) recompute(site string) error {
	err := s.deps.Engine.RecomputeRiskAndFatigue(site)
	if errors.Is(err, core.ErrNotStarted) {
		return nil
	}
	return err
}

// LoadSite hydrates a site's roster and history window from the backend.
// Only the first call per site reads storage.
func (s *Service) LoadSite(ctx context.Context, site string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded[site] {
		return nil
	}

	st, err := s.store(site)
	if err != nil {
		return err
	}

	workers, err := s.deps.Backend.ListWorkers(ctx, site)
	if err != nil {
		return fmt.Errorf("loading workers: %w", err)
	}
	skipped := 0
	for _, w := range workers {
		if err := st.UpsertWorker(w); err != nil {
			skipped++
			s.deps.Logger.Warn("Skipping stored worker", "site", site, "id", w.ID, "error", err)
		}
	}

	history, err := s.deps.Backend.ListHistory(ctx, site, s.deps.Engine.Config().HistoryWindow)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	valid := make([]core.HistoryRecord, 0, len(history))
	for _, r := range history {
		if err := store.ValidateHistoryRecord(r); err != nil {
			skipped++
			s.deps.Logger.Warn("Skipping stored history record", "site", site, "id", r.ID, "error", err)
			continue
		}
		valid = append(valid, r)
	}
	if err := st.ReplaceHistory(valid); err != nil {
		return err
	}

	s.loaded[site] = true
	vehicles, rostered, window := st.Counts()
	s.deps.Logger.Info("Site loaded", "site", site, "vehicles", vehicles, "workers", rostered, "history", window, "skipped", skipped)
	return nil
}

// StartSite hydrates a site and starts its tick loop.
func (s *Service) StartSite(ctx context.Context, site string) error {
	if err := s.LoadSite(ctx, site); err != nil {
		return err
	}
	return s.deps.Engine.Start(site)
}

// StopSite halts a site's tick loop.
func (s *Service) StopSite(site string) error {
	return s.deps.Engine.Stop(site)
}

// Recompute publishes a fresh snapshot of a running site.
func (s *Service) Recompute(site string) error {
	return s.deps.Engine.RecomputeRiskAndFatigue(site)
}

// UpsertVehicle places or replaces a vehicle. Vehicles are live-only and not persisted.
func (s *Service) UpsertVehicle(site string, v core.Vehicle) error {
	st, err := s.store(site)
	if err != nil {
		return err
	}
	return st.UpsertVehicle(v)
}

// RemoveVehicle takes a vehicle out of the fleet.
func (s *Service) RemoveVehicle(site, id string) error {
	st, err := s.store(site)
	if err != nil {
		return err
	}
	return st.RemoveVehicle(id)
}

// Vehicles returns the current fleet of a site.
func (s *Service) Vehicles(site string) ([]core.Vehicle, error) {
	st, err := s.store(site)
	if err != nil {
		return nil, err
	}
	return st.Snapshot().Vehicles, nil
}

// Vehicle returns one vehicle of a site.
func (s *Service) Vehicle(site, id string) (core.Vehicle, error) {
	st, err := s.store(site)
	if err != nil {
		return core.Vehicle{}, err
	}
	v, ok := st.GetVehicle(id)
	if !ok {
		return core.Vehicle{}, fmt.Errorf("vehicle %q: %w", id, core.ErrNotFound)
	}
	return v, nil
}

// AddWorker starts a shift.
func (s *Service) AddWorker(ctx context.Context, site string, w core.Worker) (core.Worker, error) {
	if err := store.ValidateWorker(w); err != nil {
		return core.Worker{}, err
	}
	if err := s.LoadSite(ctx, site); err != nil {
		return core.Worker{}, err
	}
	if err := s.deps.Backend.SaveWorker(ctx, site, w); err != nil {
		return core.Worker{}, err
	}
	st, err := s.store(site)
	if err != nil {
		return core.Worker{}, err
	}
	if err := st.UpsertWorker(w); err != nil {
		return core.Worker{}, err
	}
	return w, s.recompute(site)
}

// EndShift removes a worker. A worker unknown to both the backend and the live store is not found.
func (s *Service) EndShift(ctx context.Context, site, id string) error {
	if err := s.LoadSite(ctx, site); err != nil {
		return err
	}
	stored := s.deps.Backend.DeleteWorker(ctx, site, id)
	if stored != nil && !errors.Is(stored, core.ErrNotFound) {
		return stored
	}
	st, err := s.store(site)
	if err != nil {
		return err
	}
	live := st.RemoveWorker(id)
	if stored != nil && live != nil {
		return live
	}
	return s.recompute(site)
}

// Workers returns the current roster of a site.
func (s *Service) Workers(ctx context.Context, site string) ([]core.Worker, error) {
	if err := s.LoadSite(ctx, site); err != nil {
		return nil, err
	}
	st, err := s.store(site)
	if err != nil {
		return nil, err
	}
	return st.Snapshot().Workers, nil
}

// AppendHistory records past predictions. Either every record is stored or none.
func (s *Service) AppendHistory(ctx context.Context, site string, records ...core.HistoryRecord) error {
	for _, r := range records {
		if err := store.ValidateHistoryRecord(r); err != nil {
			return err
		}
	}
	if err := s.LoadSite(ctx, site); err != nil {
		return err
	}
	if err := s.deps.Backend.AppendHistory(ctx, site, records...); err != nil {
		return err
	}
	st, err := s.store(site)
	if err != nil {
		return err
	}
	if err := st.AppendHistory(records...); err != nil {
		return err
	}
	return s.recompute(site)
}

// DeleteHistory removes one record and reloads the window so the aggregate stays correct.
func (s *Service) DeleteHistory(ctx context.Context, site, id string) error {
	if err := s.LoadSite(ctx, site); err != nil {
		return err
	}
	if err := s.deps.Backend.DeleteHistory(ctx, site, id); err != nil {
		return err
	}
	return s.reloadHistory(ctx, site)
}

// ClearHistory removes every record of a site and returns how many were deleted.
func (s *Service) ClearHistory(ctx context.Context, site string) (int64, error) {
	if err := s.LoadSite(ctx, site); err != nil {
		return 0, err
	}
	n, err := s.deps.Backend.ClearHistory(ctx, site)
	if err != nil {
		return 0, err
	}
	st, err := s.store(site)
	if err != nil {
		return n, err
	}
	if err := st.ReplaceHistory(nil); err != nil {
		return n, err
	}
	return n, s.recompute(site)
}

// History returns the stored records of a site, oldest first.
func (s *Service) History(ctx context.Context, site string, limit int) ([]core.HistoryRecord, error) {
	return s.deps.Backend.ListHistory(ctx, site, limit)
}

func (s *Service) reloadHistory(ctx context.Context, site string) error {
	records, err := s.deps.Backend.ListHistory(ctx, site, s.deps.Engine.Config().HistoryWindow)
	if err != nil {
		return fmt.Errorf("reloading history: %w", err)
	}
	st, err := s.store(site)
	if err != nil {
		return err
	}
	if err := st.ReplaceHistory(records); err != nil {
		return err
	}
	return s.recompute(site)
}

// Predict scores a zone with the model and records the result as history.
func (s *Service) Predict(ctx context.Context, site string, in core.GeotechnicalInput) (core.HistoryRecord, core.Prediction, error) {
	if s.deps.Predictor == nil {
		return core.HistoryRecord{}, core.Prediction{}, ErrNoPredictor
	}
	if in.Zone == "" {
		in.Zone = parser.DefaultZone
	}

	p, err := s.deps.Predictor.Predict(ctx, site, in)
	if err != nil {
		return core.HistoryRecord{}, core.Prediction{}, err
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.deps.Now().UTC()
	}

	r := convert.HistoryRecordFromPrediction(uuid.NewString(), in, p)
	if err := store.ValidateHistoryRecord(r); err != nil {
		return core.HistoryRecord{}, core.Prediction{}, err
	}
	if err := s.LoadSite(ctx, site); err != nil {
		return core.HistoryRecord{}, core.Prediction{}, err
	}
	if err := s.deps.Backend.RecordPrediction(ctx, site, r, in, p); err != nil {
		return core.HistoryRecord{}, core.Prediction{}, err
	}
	st, err := s.store(site)
	if err != nil {
		return r, p, err
	}
	if err := st.AppendHistory(r); err != nil {
		return r, p, err
	}

	s.deps.Logger.Info("Prediction recorded", "site", site, "zone", in.Zone, "level", p.Level, "score", p.Score)
	return r, p, s.recompute(site)
}
