package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName tags records sent through the OTel bridge and Graylog.
const ServiceName = "opsengine"

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// osStdout is swapped in tests.
var osStdout = os.Stdout

// SlogManager owns the service logger. The console gets text records, a
// session file gets JSON records, and the OTel bridge and any extra handlers
// see the same stream.
type SlogManager struct {
	logger  *slog.Logger
	level   slog.LevelVar
	context ContextProvider

	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel maps DEBUG, INFO, WARN and ERROR in any case. Anything else
// is INFO.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetContextProvider attaches attributes computed at log time to every record.
// Takes effect on the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup (re)builds the logger. With a file, records go there as JSON and
// stdout stays quiet. A nil provider disables the OTel bridge.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	m.level.Set(parseLevel(level))
	m.logProvider = provider

	opts := &slog.HandlerOptions{Level: &m.level, ReplaceAttr: utcTime}

	var primary slog.Handler
	if file != nil {
		primary = slog.NewJSONHandler(file, opts)
	} else {
		primary = slog.NewTextHandler(osStdout, opts)
	}

	handlers := append([]slog.Handler{primary}, extra...)
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if m.context != nil {
		h = NewContextHandler(h, m.context)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// utcTime renders record times in UTC with millisecond precision.
func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(timeFormat))
		}
	}
	return a
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
