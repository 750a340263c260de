// Package monitor forwards the snapshots and alerts of selected sites to
// external sinks such as InfluxDB and Redis.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/pkg/core"
)

// Sink receives every snapshot and alert of the monitored sites.
type Sink interface {
	Name() string
	WriteSnapshot(ctx context.Context, snap core.OperationalSnapshot) error
	WriteAlert(ctx context.Context, a core.Alert) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine      *engine.Engine
	Sinks       []Sink
	Sites       []string
	Logger      *slog.Logger
	SinkTimeout time.Duration // per write, default 5s
}

// SiteStatus counts what was forwarded for one site.
type SiteStatus struct {
	Snapshots    uint64 `json:"snapshots"`
	Alerts       uint64 `json:"alerts"`
	SinkErrors   uint64 `json:"sinkErrors"`
	LastSequence uint64 `json:"lastSequence"`
}

type siteCounters struct {
	snapshots, alerts, errors, lastSeq atomic.Uint64
}

// Service manages sink forwarding
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	cancel    context.CancelFunc
	subs      []*engine.Subscription
	wg        *conc.WaitGroup
	counters  map[string]*siteCounters
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SinkTimeout <= 0 {
		deps.SinkTimeout = 5 * time.Second
	}
	counters := make(map[string]*siteCounters, len(deps.Sites))
	for _, site := range deps.Sites {
		counters[site] = &siteCounters{}
	}
	return &Service{deps: deps, counters: counters}
}

// IsRunning returns whether the forwarders are running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start subscribes to every configured site, starting idle ones, and
// forwards until Stop. With no sinks or sites it does nothing.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning || len(s.deps.Sinks) == 0 || len(s.deps.Sites) == 0 {
		return nil
	}

	subs := make([]*engine.Subscription, 0, len(s.deps.Sites))
	for _, site := range s.deps.Sites {
		sub, err := s.deps.Engine.Subscribe(site)
		if err != nil {
			for _, prev := range subs {
				prev.Close()
			}
			return err
		}
		subs = append(subs, sub)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.subs = subs
	s.wg = conc.NewWaitGroup()
	for _, sub := range subs {
		s.wg.Go(func() { s.forward(ctx, sub) })
	}
	s.isRunning = true
	s.deps.Logger.Info("Monitor started", "sites", s.deps.Sites, "sinks", len(s.deps.Sinks))
	return nil
}

// Stop detaches from all sites and waits for in-flight writes.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	subs, wg := s.subs, s.wg
	s.subs, s.wg = nil, nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	wg.Wait()
	s.deps.Logger.Info("Monitor stopped")
}

// Status returns per-site forwarding counters.
func (s *Service) Status() map[string]SiteStatus {
	out := make(map[string]SiteStatus, len(s.counters))
	for site, c := range s.counters {
		out[site] = SiteStatus{
			Snapshots:    c.snapshots.Load(),
			Alerts:       c.alerts.Load(),
			SinkErrors:   c.errors.Load(),
			LastSequence: c.lastSeq.Load(),
		}
	}
	return out
}

func (s *Service) forward(ctx context.Context, sub *engine.Subscription) {
	site := sub.SiteID()
	c := s.counters[site]
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			c.snapshots.Add(1)
			c.lastSeq.Store(snap.Sequence)
			s.each(ctx, site, c, func(ctx context.Context, sink Sink) error {
				return sink.WriteSnapshot(ctx, snap)
			})
		case a, ok := <-sub.Alerts():
			if !ok {
				return
			}
			c.alerts.Add(1)
			s.each(ctx, site, c, func(ctx context.Context, sink Sink) error {
				return sink.WriteAlert(ctx, a)
			})
		}
	}
}

func (s *Service) each(ctx context.Context, site string, c *siteCounters, write func(context.Context, Sink) error) {
	for _, sink := range s.deps.Sinks {
		wctx, cancel := context.WithTimeout(ctx, s.deps.SinkTimeout)
		err := write(wctx, sink)
		cancel()
		if err != nil {
			c.errors.Add(1)
			s.deps.Logger.Warn("Sink write failed", "site", site, "sink", sink.Name(), "error", err)
		}
	}
}
