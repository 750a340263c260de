// Package store holds the authoritative per-site entity state fed by the
// vehicle, worker and risk-history feeds.
package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kavach/opsengine/internal/queue"
	"github.com/kavach/opsengine/pkg/core"
)

// DefaultHistoryWindow is the number of most recent history records kept.
const DefaultHistoryWindow = 200

type vehicleEntry struct {
	vehicle core.Vehicle
	// rev changes on every feed write so tick commits can detect conflicts
	rev uint64
}

// Store caches vehicles, workers and the visible history window of one site.
// All mutations and snapshot reads are mutually exclusive.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]vehicleEntry
	workers  map[string]core.Worker
	history  *queue.Queue[core.HistoryRecord]
	rev      uint64
}

// Snapshot is a point-in-time deep copy of the store.
type Snapshot struct {
	Vehicles  []core.Vehicle // ordered by ID
	Workers   []core.Worker  // ordered by ID
	History   []core.HistoryRecord
	revisions map[string]uint64
}

// New creates an empty store keeping at most historyWindow history records.
func New(historyWindow int) *Store {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Store{
		vehicles: make(map[string]vehicleEntry),
		workers:  make(map[string]core.Worker),
		history:  queue.New[core.HistoryRecord](historyWindow),
	}
}

// UpsertVehicle inserts or replaces a vehicle by ID.
func (s *Store) UpsertVehicle(v core.Vehicle) error {
	if err := ValidateVehicle(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.vehicles[v.ID] = vehicleEntry{vehicle: v, rev: s.rev}
	return nil
}

// RemoveVehicle deletes a vehicle. Unknown ids return core.ErrNotFound.
func (s *Store) RemoveVehicle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[id]; !ok {
		return fmt.Errorf("vehicle %q: %w", id, core.ErrNotFound)
	}
	delete(s.vehicles, id)
	return nil
}

// GetVehicle returns a copy of the vehicle with the given id.
func (s *Store) GetVehicle(id string) (core.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vehicles[id]
	return e.vehicle, ok
}

// UpsertWorker inserts or replaces a worker by ID.
func (s *Store) UpsertWorker(w core.Worker) error {
	if err := ValidateWorker(w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

// RemoveWorker deletes a worker, ending their shift. Unknown ids return core.ErrNotFound.
func (s *Store) RemoveWorker(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[id]; !ok {
		return fmt.Errorf("worker %q: %w", id, core.ErrNotFound)
	}
	delete(s.workers, id)
	return nil
}

// AppendHistory adds records to the window, evicting the oldest by timestamp
// when it is full. Either all records are accepted or none.
func (s *Store) AppendHistory(records ...core.HistoryRecord) error {
	for _, r := range records {
		if err := ValidateHistoryRecord(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushHistoryLocked(records)
	return nil
}

// ReplaceHistory swaps the whole window, e.g. after a deletion in the backing store.
func (s *Store) ReplaceHistory(records []core.HistoryRecord) error {
	for _, r := range records {
		if err := ValidateHistoryRecord(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
	s.pushHistoryLocked(records)
	return nil
}

// pushHistoryLocked keeps the window as the newest records by timestamp,
// oldest first. Equal timestamps keep arrival order. Storage backends list
// history by the same rule, so a reload yields the same window.
func (s *Store) pushHistoryLocked(records []core.HistoryRecord) {
	merged := append(s.history.Items(), records...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	s.history.Clear()
	s.history.Push(merged...)
}

// Snapshot returns a consistent copy of all entities.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Vehicles:  make([]core.Vehicle, 0, len(s.vehicles)),
		Workers:   make([]core.Worker, 0, len(s.workers)),
		History:   s.history.Items(),
		revisions: make(map[string]uint64, len(s.vehicles)),
	}
	for id, e := range s.vehicles {
		snap.Vehicles = append(snap.Vehicles, e.vehicle)
		snap.revisions[id] = e.rev
	}
	for _, w := range s.workers {
		snap.Workers = append(snap.Workers, w)
	}
	sortVehicles(snap.Vehicles)
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].ID < snap.Workers[j].ID })
	return snap
}

// CommitPositions writes simulated vehicles back, resolving conflicts with
// feed writes made since base was taken: removed vehicles stay removed and
// re-upserted vehicles keep the feed's value. Returns the committed vehicles
// ordered by ID.
func (s *Store) CommitPositions(base Snapshot, moved []core.Vehicle) []core.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Vehicle, 0, len(moved))
	for _, v := range moved {
		e, ok := s.vehicles[v.ID]
		if !ok {
			continue
		}
		if e.rev != base.revisions[v.ID] {
			out = append(out, e.vehicle)
			continue
		}
		e.vehicle = v
		s.vehicles[v.ID] = e
		out = append(out, v)
	}
	sortVehicles(out)
	return out
}

// Counts returns the number of vehicles, workers and history records held.
func (s *Store) Counts() (vehicles, workers, history int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles), len(s.workers), s.history.Len()
}

func sortVehicles(vs []core.Vehicle) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
}

// ValidateVehicle checks ids, enums and numeric ranges of a vehicle.
func ValidateVehicle(v core.Vehicle) error {
	if strings.TrimSpace(v.ID) == "" {
		return core.Invalid("id", "must not be empty")
	}
	if !v.Kind.Valid() {
		return core.Invalid("type", "unknown vehicle type %q", v.Kind)
	}
	if !v.Status.Valid() {
		return core.Invalid("status", "unknown status %q", v.Status)
	}
	if err := ValidatePosition(v.Position); err != nil {
		return err
	}
	if math.IsNaN(v.Heading) || v.Heading < 0 || v.Heading >= 360 {
		return core.Invalid("heading", "%v outside [0,360)", v.Heading)
	}
	if math.IsNaN(v.Speed) || v.Speed < core.MinSpeed || v.Speed > core.MaxSpeed {
		return core.Invalid("speed", "%v outside [%v,%v]", v.Speed, core.MinSpeed, core.MaxSpeed)
	}
	return nil
}

// ValidatePosition checks latitude and longitude ranges.
func ValidatePosition(p core.Position) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return core.Invalid("lat", "%v outside [-90,90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return core.Invalid("lng", "%v outside [-180,180]", p.Lng)
	}
	return nil
}

// ValidateWorker checks the id, role and shift start of a worker.
func ValidateWorker(w core.Worker) error {
	if strings.TrimSpace(w.ID) == "" {
		return core.Invalid("id", "must not be empty")
	}
	if strings.TrimSpace(w.Name) == "" {
		return core.Invalid("name", "must not be empty")
	}
	if !w.Role.Valid() {
		return core.Invalid("role", "unknown role %q", w.Role)
	}
	if w.ShiftStart.IsZero() {
		return core.Invalid("shiftStart", "must be set")
	}
	return nil
}

// ValidateHistoryRecord checks the level, score and timestamp of a record.
func ValidateHistoryRecord(r core.HistoryRecord) error {
	if strings.TrimSpace(r.ID) == "" {
		return core.Invalid("id", "must not be empty")
	}
	if !r.Level.Valid() {
		return core.Invalid("riskLevel", "unknown level %q", r.Level)
	}
	if math.IsNaN(r.Score) || r.Score < 0 || r.Score > 100 {
		return core.Invalid("riskScore", "%v outside [0,100]", r.Score)
	}
	if r.Timestamp.IsZero() {
		return core.Invalid("timestamp", "must be set")
	}
	return nil
}
