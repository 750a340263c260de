package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/logging"
	intOtel "github.com/kavach/opsengine/internal/otel"
)

// telemetry owns the service loggers and their outputs.
type telemetry struct {
	manager *logging.SlogManager
	logger  *slog.Logger
	logPath string
	logFile *os.File
	otel    *intOtel.Provider
	graylog io.Closer
}

// setupTelemetry logs to stdout until the session log file is open, then
// re-runs Setup with the file, the OTel bridge and Graylog when enabled.
// Failures of optional outputs are logged, never fatal.
func setupTelemetry(sessionStart time.Time, attrs ...slog.Attr) *telemetry {
	level := config.GetString("logLevel")
	t := &telemetry{manager: logging.NewSlogManager()}
	t.manager.Setup(nil, level, nil)
	t.logger = t.manager.Logger()

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	} else {
		t.logPath = logging.LogFilePath(logsDir, appName, sessionStart)
		if _, err := os.Stat(t.logPath); err == nil {
			_ = os.Rename(t.logPath, t.logPath+".old")
		}
		f, err := os.OpenFile(t.logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			t.logger.Error("Failed to create/open log file!", "error", err, "path", t.logPath)
		} else {
			t.logFile = f
		}
	}

	var file io.Writer
	if t.logFile != nil {
		file = t.logFile
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.ConfigFrom(otelCfg, file))
		if err != nil {
			t.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			t.otel = p
			t.logger.Info("OTel provider initialized", "file", t.logPath, "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGraylogHandler(gl.Address, level)
		if err != nil {
			t.logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, h)
			t.graylog = closer
		}
	}

	var provider *sdklog.LoggerProvider
	if t.otel != nil {
		provider = t.otel.LoggerProvider()
	}
	if len(attrs) > 0 {
		t.manager.SetContextProvider(func() []slog.Attr { return attrs })
	}
	t.manager.Setup(file, level, provider, extra...)
	t.logger = t.manager.Logger()
	if t.logFile != nil {
		t.logger.Info("Logging to file", "path", t.logPath)
	}
	return t
}

// Close flushes and releases every output.
func (t *telemetry) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.manager.Flush(ctx); err != nil {
		t.logger.Warn("Failed to flush logs", "error", err)
	}
	if t.otel != nil {
		if err := t.otel.Shutdown(ctx); err != nil {
			t.logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if t.graylog != nil {
		_ = t.graylog.Close()
	}
	if t.logFile != nil {
		_ = t.logFile.Close()
	}
}
