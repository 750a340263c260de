package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/kavach/opsengine/internal/fatigue"
	"github.com/kavach/opsengine/internal/hazard"
	"github.com/kavach/opsengine/internal/risk"
	"github.com/kavach/opsengine/internal/sim"
	"github.com/kavach/opsengine/internal/store"
	"github.com/kavach/opsengine/pkg/core"
)

// SiteState is the lifecycle state of a site.
type SiteState int

const (
	StateIdle SiteState = iota
	StateRunning
	StateStopped
)

func (s SiteState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

type site struct {
	id       string
	engine   *Engine
	store    *store.Store
	sim      *sim.Simulator
	detector *hazard.Detector

	// mu serialises ticks, recomputes, lifecycle changes and subscriber
	// changes, so a snapshot is either fully published or not at all.
	mu     sync.Mutex
	state  SiteState
	seq    uint64
	stopCh chan struct{}
	done   chan struct{}
	subs   map[string]*Subscription
	alerts alertTracker
	closed bool

	current atomic.Pointer[core.OperationalSnapshot]
}

func newSite(id string, e *Engine) *site {
	// thresholds were validated by New
	det, _ := hazard.NewDetector(e.cfg.Thresholds)
	return &site{
		id:       id,
		engine:   e,
		store:    store.New(e.cfg.HistoryWindow),
		sim:      sim.New(e.cfg.NewSource(id)),
		detector: det,
		subs:     make(map[string]*Subscription),
		alerts:   newAlertTracker(),
	}
}

func (s *site) getState() SiteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *site) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("site %q: %w", s.id, ErrClosed)
	}
	s.startLocked()
	return nil
}

func (s *site) startLocked() {
	if s.state == StateRunning {
		return
	}
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	s.publishLocked(s.deriveLocked(false))

	go s.run(s.engine.cfg.TickInterval, s.stopCh, s.done)
	s.engine.logger.Info("site started", "site", s.id, "interval", s.engine.cfg.TickInterval)
}

func (s *site) stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.engine.logger.Info("site stopped", "site", s.id)
}

func (s *site) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *site) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a stop that raced this tick wins; nothing is published
	if s.state != StateRunning {
		return
	}
	s.publishLocked(s.deriveLocked(true))
}

func (s *site) step() (core.OperationalSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return core.OperationalSnapshot{}, fmt.Errorf("site %q: %w", s.id, core.ErrNotStarted)
	}
	return s.publishLocked(s.deriveLocked(true)), nil
}

func (s *site) recompute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return fmt.Errorf("site %q: %w", s.id, core.ErrNotStarted)
	}
	s.publishLocked(s.deriveLocked(false))
	return nil
}

// deriveLocked builds the next snapshot. When move is set the simulator
// advances vehicles and the result is committed to the store first, so
// hazards are always evaluated on committed positions. A failed derivation
// keeps the previous snapshot's value; after a hazard failure HazardState and
// HazardPairs lag Vehicles by at least one sequence.
func (s *site) deriveLocked(move bool) core.OperationalSnapshot {
	start := time.Now()
	now := s.engine.cfg.Clock()
	base := s.store.Snapshot()
	prev := s.current.Load()

	vehicles := base.Vehicles
	if move {
		var moved []core.Vehicle
		var pc panics.Catcher
		pc.Try(func() { moved = s.sim.Step(base.Vehicles) })
		if r := pc.Recovered(); r != nil {
			s.engine.logger.Error("simulation panicked, holding positions", "site", s.id, "panic", r.Value)
		} else {
			vehicles = s.store.CommitPositions(base, moved)
		}
	}

	var (
		hz       hazard.Result
		levels   map[string]core.FatigueLevel
		excluded []string
		agg      core.AggregateRisk
	)
	failed := s.parallel(map[string]func(){
		"hazard":  func() { hz = s.detector.Detect(vehicles) },
		"fatigue": func() { levels, excluded = fatigue.ClassifyAll(base.Workers, now) },
		"risk":    func() { agg = risk.Aggregate(base.History) },
	})

	if failed["hazard"] {
		// the carried state describes the previous positions, not vehicles
		hz = hazard.Result{State: core.HazardNone}
		if prev != nil {
			hz = hazard.Result{State: prev.HazardState, Pairs: prev.HazardPairs}
			s.engine.logger.Warn("hazard fields are stale for this snapshot", "site", s.id, "from_sequence", prev.Sequence)
		}
	}
	if failed["fatigue"] {
		levels = map[string]core.FatigueLevel{}
		if prev != nil {
			levels = prev.WorkerFatigue
		}
	}
	if failed["risk"] {
		agg = risk.Aggregate(nil)
		if prev != nil {
			agg = prev.AggregateRisk
		}
	}
	if len(excluded) > 0 {
		s.engine.logger.Warn("workers excluded from fatigue", "site", s.id, "workers", excluded)
	}

	var overspeed []string
	for _, v := range vehicles {
		if v.Overspeed(s.engine.cfg.OverspeedLimit) {
			overspeed = append(overspeed, v.ID)
		}
	}

	s.engine.metrics.recordTick(s.id, move, time.Since(start))

	return core.OperationalSnapshot{
		SiteID:        s.id,
		Vehicles:      vehicles,
		HazardState:   hz.State,
		HazardPairs:   hz.Pairs,
		Overspeed:     overspeed,
		WorkerFatigue: levels,
		AggregateRisk: agg,
		ActiveShift:   fatigue.ShiftLabel(now),
		GeneratedAt:   now,
	}
}

// parallel runs the independent derivations concurrently. A panic in one is
// recovered and reported so the caller can fall back for that component only.
func (s *site) parallel(tasks map[string]func()) map[string]bool {
	var (
		wg     conc.WaitGroup
		mu     sync.Mutex
		failed = make(map[string]bool)
	)
	for name, fn := range tasks {
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(fn)
			if r := pc.Recovered(); r != nil {
				mu.Lock()
				failed[name] = true
				mu.Unlock()
				s.engine.logger.Error("derivation panicked", "site", s.id, "component", name, "panic", r.Value)
			}
		})
	}
	wg.Wait()
	return failed
}

func (s *site) publishLocked(snap core.OperationalSnapshot) core.OperationalSnapshot {
	s.seq++
	snap.Sequence = s.seq

	alerts := s.alerts.observe(snap)
	s.current.Store(&snap)

	var droppedSnaps, droppedAlerts int64
	for _, sub := range s.subs {
		ds, da := sub.deliver(snap, alerts)
		droppedSnaps += int64(ds)
		droppedAlerts += int64(da)
	}
	s.engine.metrics.recordPublish(context.Background(), s.id, len(alerts), droppedSnaps, droppedAlerts)

	for _, a := range alerts {
		s.engine.logger.Info("alert raised", "site", s.id, "kind", a.Kind, "severity", a.Severity, "subject", a.Subject)
	}
	s.engine.logger.Debug("snapshot published", "site", s.id, "sequence", snap.Sequence,
		"vehicles", len(snap.Vehicles), "hazard", snap.HazardState, "risk", snap.AggregateRisk.Level)
	return snap
}

func (s *site) subscribe() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("site %q: %w", s.id, ErrClosed)
	}

	sub := newSubscription(uuid.NewString(), s, s.engine.cfg.SnapshotBuffer, s.engine.cfg.AlertBuffer)
	s.subs[sub.id] = sub
	s.engine.logger.Debug("subscriber attached", "site", s.id, "subscription", sub.id)

	if s.state == StateIdle {
		s.startLocked()
		return sub, nil
	}
	if cur := s.current.Load(); cur != nil {
		sub.deliver(*cur, nil)
	}
	return sub, nil
}

// unsubscribe detaches a subscriber. The site keeps running.
func (s *site) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	sub.closeChannels()
	s.engine.logger.Debug("subscriber detached", "site", s.id, "subscription", id)
}

// shutdown closes every subscription and stops the loop. Once it has taken
// the lock no later start or subscribe can succeed.
func (s *site) shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, sub := range s.subs {
		sub.closeChannels()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.stop()
}

func (s *site) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
