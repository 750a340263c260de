package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kavach/opsengine/internal/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	ticks            metric.Int64Counter
	tickDuration     metric.Float64Histogram
	alerts           metric.Int64Counter
	droppedSnapshots metric.Int64Counter
	droppedAlerts    metric.Int64Counter
	subscribers      metric.Int64ObservableGauge
}

func newMetrics(counts func() map[string]int) (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error

	out.ticks, err = m.Int64Counter(
		"engine.ticks",
		metric.WithDescription("Total snapshots derived"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	out.tickDuration, err = m.Float64Histogram(
		"engine.tick.duration",
		metric.WithDescription("Time spent deriving one snapshot"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	out.alerts, err = m.Int64Counter(
		"engine.alerts",
		metric.WithDescription("Total alerts raised"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating alerts counter: %w", err)
	}

	out.droppedSnapshots, err = m.Int64Counter(
		"engine.snapshots.dropped",
		metric.WithDescription("Snapshots discarded for slow subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped snapshots counter: %w", err)
	}

	out.droppedAlerts, err = m.Int64Counter(
		"engine.alerts.dropped",
		metric.WithDescription("Alerts discarded for slow subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped alerts counter: %w", err)
	}

	out.subscribers, err = m.Int64ObservableGauge(
		"engine.subscribers",
		metric.WithDescription("Current number of subscribers per site"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscribers gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			for site, n := range counts() {
				o.ObserveInt64(out.subscribers, int64(n),
					metric.WithAttributes(attribute.String("site", site)))
			}
			return nil
		},
		out.subscribers,
	)
	if err != nil {
		return nil, fmt.Errorf("registering subscribers callback: %w", err)
	}

	return out, nil
}

func (m *metrics) recordTick(site string, move bool, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("site", site), attribute.Bool("move", move))
	m.ticks.Add(ctx, 1, attrs)
	m.tickDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

func (m *metrics) recordPublish(ctx context.Context, site string, alerts int, droppedSnapshots, droppedAlerts int64) {
	attrs := metric.WithAttributes(attribute.String("site", site))
	if alerts > 0 {
		m.alerts.Add(ctx, int64(alerts), attrs)
	}
	if droppedSnapshots > 0 {
		m.droppedSnapshots.Add(ctx, droppedSnapshots, attrs)
	}
	if droppedAlerts > 0 {
		m.droppedAlerts.Add(ctx, droppedAlerts, attrs)
	}
}
