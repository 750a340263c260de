// Package dispatcher routes feed commands to registered handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kavach/opsengine/internal/dispatcher"

// ErrUnknownCommand is returned for events no handler is registered for.
var ErrUnknownCommand = errors.New("unknown command")

// Event is one command addressed to a site.
type Event struct {
	Command   string
	Site      string
	Payload   []byte
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(context.Context, Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*route)

type route struct {
	serialized bool
	logged     bool
}

// Serialized runs events of the command one at a time per site, in the order
// they acquire the site's lane. All serialized commands share the lane.
func Serialized() Option {
	return func(r *route) { r.serialized = true }
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	lanes    map[string]chan struct{}
	inflight map[string]int64
	logger   Logger

	events   metric.Int64Counter
	duration metric.Float64Histogram
	pending  metric.Int64ObservableGauge
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		lanes:    make(map[string]chan struct{}),
		inflight: make(map[string]int64),
		logger:   logger,
	}

	m := otel.Meter(instrumentationName)

	var err error
	d.events, err = m.Int64Counter(
		"dispatcher.events",
		metric.WithDescription("Events handled, by command and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	d.duration, err = m.Float64Histogram(
		"dispatcher.event.duration",
		metric.WithDescription("Handler latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	d.pending, err = m.Int64ObservableGauge(
		"dispatcher.events.inflight",
		metric.WithDescription("Events currently inside a handler or waiting for their site lane"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inflight gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for cmd, n := range d.inflight {
				o.ObserveInt64(d.pending, n, metric.WithAttributes(attribute.String("command", cmd)))
			}
			return nil
		},
		d.pending,
	)
	if err != nil {
		return nil, fmt.Errorf("registering inflight callback: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command, replacing any previous one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{}
	for _, opt := range opts {
		opt(r)
	}

	handler := d.withMetrics(command, h)
	if r.logged {
		handler = d.withLogging(command, handler)
	}
	if r.serialized {
		handler = d.withLane(handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler. A zero timestamp is
// stamped with the current time.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.track(e.Command, 1)
	defer d.track(e.Command, -1)
	return h(ctx, e)
}

// Commands returns every registered command, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	d.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (d *Dispatcher) track(command string, delta int64) {
	d.mu.Lock()
	d.inflight[command] += delta
	d.mu.Unlock()
}

// lane returns the single-slot semaphore of a site. Lanes live as long as
// the dispatcher.
func (d *Dispatcher) lane(site string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lanes[site]
	if !ok {
		l = make(chan struct{}, 1)
		d.lanes[site] = l
	}
	return l
}

func (d *Dispatcher) withLane(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		l := d.lane(e.Site)
		select {
		case l <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-l }()
		return h(ctx, e)
	}
}

func (d *Dispatcher) withMetrics(command string, h HandlerFunc) HandlerFunc {
	cmdAttr := attribute.String("command", command)
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		result, err := h(ctx, e)

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.events.Add(ctx, 1, metric.WithAttributes(cmdAttr, attribute.String("outcome", outcome)))
		d.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(cmdAttr))
		return result, err
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "site", e.Site, "bytes", len(e.Payload))

		result, err := h(ctx, e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "site", e.Site, "duration", time.Since(start), "error", err)
			return nil, err
		}
		d.logger.Debug("event complete", "command", command, "site", e.Site, "duration", time.Since(start))
		return result, nil
	}
}
