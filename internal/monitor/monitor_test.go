package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/internal/sim"
	"github.com/kavach/opsengine/pkg/core"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu        sync.Mutex
	name      string
	err       error
	snapshots []core.OperationalSnapshot
	alerts    []core.Alert
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) WriteSnapshot(_ context.Context, snap core.OperationalSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
	return r.err
}

func (r *recordingSink) WriteAlert(_ context.Context, a core.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots), len(r.alerts)
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		TickInterval: time.Hour,
		Clock:        func() time.Time { return testNow },
		NewSource:    func(string) sim.Source { return sim.Sequence(0.5) },
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestService_ForwardsToAllSinks(t *testing.T) {
	e := newTestEngine(t)
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("unreachable")}

	svc := NewService(Dependencies{
		Engine: e,
		Sinks:  []Sink{good, bad},
		Sites:  []string{"Jharia"},
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, svc.Start())
	defer svc.Stop()
	assert.True(t, svc.IsRunning())
	assert.Equal(t, engine.StateRunning, e.State("Jharia"))

	// initial snapshot from auto-start
	require.Eventually(t, func() bool { n, _ := good.counts(); return n == 1 }, 2*time.Second, 10*time.Millisecond)

	st, err := e.Store("Jharia")
	require.NoError(t, err)
	require.NoError(t, st.UpsertVehicle(core.Vehicle{ID: "D-1", Kind: core.KindDumper, Position: core.Position{Lat: 23, Lng: 86}, Status: core.StatusActive}))
	require.NoError(t, st.UpsertVehicle(core.Vehicle{ID: "D-2", Kind: core.KindDumper, Position: core.Position{Lat: 23.0001, Lng: 86}, Status: core.StatusActive}))
	require.NoError(t, e.RecomputeRiskAndFatigue("Jharia"))

	require.Eventually(t, func() bool {
		snaps, alerts := good.counts()
		return snaps == 2 && alerts == 1
	}, 2*time.Second, 10*time.Millisecond)

	good.mu.Lock()
	assert.Equal(t, core.AlertCollision, good.alerts[0].Kind)
	assert.Equal(t, uint64(2), good.snapshots[1].Sequence)
	good.mu.Unlock()

	require.Eventually(t, func() bool {
		snaps, alerts := bad.counts()
		return snaps == 2 && alerts == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Status()["Jharia"].SinkErrors == 3 }, 2*time.Second, 10*time.Millisecond)
	status := svc.Status()["Jharia"]
	assert.Equal(t, uint64(2), status.Snapshots)
	assert.Equal(t, uint64(1), status.Alerts)
	assert.Equal(t, uint64(2), status.LastSequence)
}

func TestService_StopDetaches(t *testing.T) {
	e := newTestEngine(t)
	sink := &recordingSink{name: "rec"}
	svc := NewService(Dependencies{Engine: e, Sinks: []Sink{sink}, Sites: []string{"Jharia"}})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())
	require.Eventually(t, func() bool { n, _ := sink.counts(); return n == 1 }, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())

	require.NoError(t, e.RecomputeRiskAndFatigue("Jharia"))
	time.Sleep(50 * time.Millisecond)
	n, _ := sink.counts()
	assert.Equal(t, 1, n)
}

func TestService_NothingToDo(t *testing.T) {
	e := newTestEngine(t)

	svc := NewService(Dependencies{Engine: e, Sites: []string{"Jharia"}})
	require.NoError(t, svc.Start())
	assert.False(t, svc.IsRunning())
	assert.Equal(t, engine.StateIdle, e.State("Jharia"))

	svc = NewService(Dependencies{Engine: e, Sinks: []Sink{&recordingSink{}}})
	require.NoError(t, svc.Start())
	assert.False(t, svc.IsRunning())
}

func TestService_StartFailsForInvalidSite(t *testing.T) {
	e := newTestEngine(t)
	svc := NewService(Dependencies{Engine: e, Sinks: []Sink{&recordingSink{}}, Sites: []string{"Jharia", ""}})

	err := svc.Start()
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.False(t, svc.IsRunning())
}

func TestService_EngineCloseEndsForwarders(t *testing.T) {
	e := newTestEngine(t)
	sink := &recordingSink{name: "rec"}
	svc := NewService(Dependencies{Engine: e, Sinks: []Sink{sink}, Sites: []string{"Jharia"}})
	require.NoError(t, svc.Start())

	e.Close()

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after engine close")
	}
}
