// Package otel builds the OpenTelemetry providers: logs for the slog bridge
// and metrics for the engine and dispatcher instruments.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/kavach/opsengine/internal/config"
)

// ErrNoExporter is returned when OTel is enabled with nowhere to export to.
var ErrNoExporter = errors.New("otel enabled but no log writer or endpoint configured")

const (
	defaultServiceName    = "opsengine"
	defaultBatchTimeout   = 5 * time.Second
	defaultMetricInterval = 30 * time.Second
)

// Config selects the exporters. Records and metrics go to Writer and, when
// Endpoint is set, to an OTLP/HTTP collector.
type Config struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Writer         io.Writer
	Endpoint       string
	Insecure       bool
}

// ConfigFrom maps the service configuration onto provider settings.
func ConfigFrom(c config.OTelConfig, w io.Writer) Config {
	return Config{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		BatchTimeout:   c.BatchTimeout,
		MetricInterval: c.MetricInterval,
		Writer:         w,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
	}
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = defaultMetricInterval
	}
	return c
}

// Provider holds the log and meter providers of one process.
type Provider struct {
	logProvider   *sdklog.LoggerProvider
	meterProvider *sdkmetric.MeterProvider
}

// New builds both providers and installs the meter provider globally, so
// instruments created through otel.Meter start exporting. A disabled config
// yields an inert provider.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.Writer == nil && cfg.Endpoint == "" {
		return nil, ErrNoExporter
	}
	cfg = cfg.withDefaults()

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logOpts, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	readers, err := metricReaders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		logProvider:   sdklog.NewLoggerProvider(append(logOpts, sdklog.WithResource(res))...),
		meterProvider: sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...),
	}
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

func logProcessors(ctx context.Context, cfg Config) ([]sdklog.LoggerProviderOption, error) {
	var opts []sdklog.LoggerProviderOption
	if cfg.Writer != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.Writer), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
	}
	if cfg.Endpoint != "" {
		httpOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
	}
	return opts, nil
}

func metricReaders(ctx context.Context, cfg Config) ([]sdkmetric.Option, error) {
	var opts []sdkmetric.Option
	every := sdkmetric.WithInterval(cfg.MetricInterval)
	if cfg.Writer != nil {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create file metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, every)))
	}
	if cfg.Endpoint != "" {
		httpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, every)))
	}
	return opts, nil
}

// LoggerProvider returns the log provider for the otelslog bridge, or nil.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Flush exports pending logs and metrics.
func (p *Provider) Flush(ctx context.Context) error {
	var errs []error
	if p.logProvider != nil {
		if err := p.logProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush failed: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric flush failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.logProvider != nil {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
