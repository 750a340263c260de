// Package engine runs one live operational state loop per site and publishes
// snapshots and alerts to subscribers.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kavach/opsengine/internal/hazard"
	"github.com/kavach/opsengine/internal/sim"
	"github.com/kavach/opsengine/internal/store"
	"github.com/kavach/opsengine/pkg/core"
)

// ErrClosed is returned for operations on a closed engine.
var ErrClosed = errors.New("engine closed")

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config controls tick cadence, buffering and derivation thresholds.
type Config struct {
	TickInterval   time.Duration
	SnapshotBuffer int
	AlertBuffer    int
	HistoryWindow  int
	Thresholds     hazard.Thresholds
	OverspeedLimit float64

	// Clock returns the wall time used for fatigue and timestamps.
	Clock func() time.Time
	// NewSource returns the random source for a site's simulator.
	NewSource func(siteID string) sim.Source
}

// DefaultConfig returns a one-second tick with the standard thresholds.
func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Second,
		SnapshotBuffer: 8,
		AlertBuffer:    64,
		HistoryWindow:  store.DefaultHistoryWindow,
		Thresholds:     hazard.DefaultThresholds,
		OverspeedLimit: core.OverspeedLimit,
		Clock:          time.Now,
		NewSource: func(string) sim.Source {
			return sim.NewSeeded(uint64(time.Now().UnixNano()))
		},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.SnapshotBuffer <= 0 {
		c.SnapshotBuffer = def.SnapshotBuffer
	}
	if c.AlertBuffer <= 0 {
		c.AlertBuffer = def.AlertBuffer
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.Thresholds == (hazard.Thresholds{}) {
		c.Thresholds = def.Thresholds
	}
	if c.OverspeedLimit <= 0 {
		c.OverspeedLimit = def.OverspeedLimit
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.NewSource == nil {
		c.NewSource = def.NewSource
	}
}

// Engine owns every site. Sites are created lazily on first reference.
type Engine struct {
	cfg     Config
	logger  Logger
	metrics *metrics

	mu     sync.Mutex
	sites  map[string]*site
	closed bool
}

// New creates an Engine. Zero fields in cfg fall back to DefaultConfig.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(cfg Config, logger Logger) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("hazard thresholds: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		sites:  make(map[string]*site),
	}

	m, err := newMetrics(e.subscriberCount)
	if err != nil {
		return nil, err
	}
	e.metrics = m
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) site(siteID string) (*site, error) {
	if siteID == "" {
		return nil, core.Invalid("site", "must not be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	s, ok := e.sites[siteID]
	if !ok {
		s = newSite(siteID, e)
		e.sites[siteID] = s
		e.logger.Debug("site created", "site", siteID)
	}
	return s, nil
}

func (e *Engine) lookup(siteID string) (*site, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sites[siteID]
	return s, ok
}

// Store returns the entity store of a site, creating the site if needed.
// Feed mutations go through this handle.
func (e *Engine) Store(siteID string) (*store.Store, error) {
	s, err := e.site(siteID)
	if err != nil {
		return nil, err
	}
	return s.store, nil
}

// Start moves a site to Running and publishes an initial snapshot.
// Starting a running site is a no-op.
func (e *Engine) Start(siteID string) error {
	s, err := e.site(siteID)
	if err != nil {
		return err
	}
	return s.start()
}

// Stop halts a site's tick loop after any in-flight tick has published.
// Stopping an unknown, idle or stopped site is a no-op.
func (e *Engine) Stop(siteID string) error {
	s, ok := e.lookup(siteID)
	if !ok {
		return nil
	}
	s.stop()
	return nil
}

// Subscribe attaches a subscriber to a site, starting the site if it is idle.
func (e *Engine) Subscribe(siteID string) (*Subscription, error) {
	s, err := e.site(siteID)
	if err != nil {
		return nil, err
	}
	return s.subscribe()
}

// RecomputeRiskAndFatigue publishes a fresh snapshot without moving vehicles.
// Returns core.ErrNotStarted unless the site is running.
func (e *Engine) RecomputeRiskAndFatigue(siteID string) error {
	s, ok := e.lookup(siteID)
	if !ok {
		return fmt.Errorf("site %q: %w", siteID, core.ErrNotStarted)
	}
	return s.recompute()
}

// Step runs one tick synchronously. Returns core.ErrNotStarted unless the site is running.
func (e *Engine) Step(siteID string) (core.OperationalSnapshot, error) {
	s, ok := e.lookup(siteID)
	if !ok {
		return core.OperationalSnapshot{}, fmt.Errorf("site %q: %w", siteID, core.ErrNotStarted)
	}
	return s.step()
}

// CurrentSnapshot returns the latest published snapshot of a site.
func (e *Engine) CurrentSnapshot(siteID string) (core.OperationalSnapshot, error) {
	s, ok := e.lookup(siteID)
	if !ok {
		return core.OperationalSnapshot{}, fmt.Errorf("site %q: %w", siteID, core.ErrNotStarted)
	}
	snap := s.current.Load()
	if snap == nil {
		return core.OperationalSnapshot{}, fmt.Errorf("site %q: %w", siteID, core.ErrNotStarted)
	}
	return *snap, nil
}

// State returns the lifecycle state of a site. Unknown sites are Idle.
func (e *Engine) State(siteID string) SiteState {
	s, ok := e.lookup(siteID)
	if !ok {
		return StateIdle
	}
	return s.getState()
}

// Sites returns the ids of every known site, sorted.
func (e *Engine) Sites() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sites))
	for id := range e.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every site and closes all subscriptions.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sites := make([]*site, 0, len(e.sites))
	for _, s := range e.sites {
		sites = append(sites, s)
	}
	e.mu.Unlock()

	for _, s := range sites {
		s.shutdown()
	}
	e.logger.Info("engine closed", "sites", len(sites))
}

func (e *Engine) subscriberCount() map[string]int {
	e.mu.Lock()
	sites := make([]*site, 0, len(e.sites))
	for _, s := range e.sites {
		sites = append(sites, s)
	}
	e.mu.Unlock()

	out := make(map[string]int, len(sites))
	for _, s := range sites {
		out[s.id] = s.subscriberCount()
	}
	return out
}
