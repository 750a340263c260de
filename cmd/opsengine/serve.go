package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kavach/opsengine/internal/api"
	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/dispatcher"
	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/internal/handlers"
	"github.com/kavach/opsengine/internal/hazard"
	"github.com/kavach/opsengine/internal/influx"
	"github.com/kavach/opsengine/internal/logging"
	"github.com/kavach/opsengine/internal/monitor"
	"github.com/kavach/opsengine/internal/redisbus"
	"github.com/kavach/opsengine/internal/server"
	"github.com/kavach/opsengine/internal/sim"
	"github.com/kavach/opsengine/internal/storage/factory"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	*rootOptions
	demoSite string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the REST API and snapshot stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.run(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.demoSite, "demo-site", "", `seed the demo fleet and crew into a catalogue mine, e.g. "Jharia Coal Mine"`)
	return cmd
}

// engineConfig maps the engine settings. A non-zero seed makes every site's
// simulation reproducible.
func engineConfig(c config.EngineConfig) engine.Config {
	cfg := engine.Config{
		TickInterval:   c.TickInterval,
		SnapshotBuffer: c.SnapshotBuffer,
		AlertBuffer:    c.AlertBuffer,
		HistoryWindow:  c.HistoryWindow,
		Thresholds:     hazard.Thresholds{Collision: c.CollisionThreshold, Proximity: c.ProximityThreshold},
		OverspeedLimit: c.OverspeedLimit,
	}
	if c.Seed != 0 {
		seed := c.Seed
		cfg.NewSource = func(string) sim.Source { return sim.NewSeeded(seed) }
	}
	return cfg
}

func (o *serveOptions) run(ctx context.Context) error {
	sessionStart := time.Now()
	storageCfg := config.GetStorageConfig()

	tel := setupTelemetry(sessionStart,
		slog.String("version", Version),
		slog.String("storage", storageCfg.Type),
	)
	defer tel.Close()
	logger := tel.logger
	logger.Info("Starting up...", "version", Version, "build", BuildDate)

	level := config.GetString("logLevel")
	zlog := logging.NewZerolog(os.Stdout, level)

	backend, err := factory.NewBackend(storageCfg, logger, zlog)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close storage backend", "error", err)
			return
		}
		if e, ok := backend.(interface{ GetExportedFilePath() string }); ok {
			if path := e.GetExportedFilePath(); path != "" {
				logger.Info("Memory state exported", "path", path)
			}
		}
	}()
	logger.Info("Storage backend initialized", "type", storageCfg.Type)

	eng, err := engine.New(engineConfig(config.GetEngineConfig()), logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	deps := handlers.Dependencies{Engine: eng, Backend: backend, Logger: logger}
	if pc := config.GetPredictorConfig(); pc.URL != "" {
		client := api.New(pc.URL, pc.APIKey, pc.Timeout)
		if err := client.Healthcheck(ctx); err != nil {
			logger.Warn("Predictor is offline", "url", pc.URL, "error", err)
		} else {
			logger.Info("Predictor is online", "url", pc.URL)
		}
		deps.Predictor = client
	}
	svc := handlers.NewService(deps)

	disp, err := dispatcher.New(logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	svc.Register(disp)

	stored, err := backend.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("listing stored sites: %w", err)
	}
	for _, site := range stored {
		if err := svc.LoadSite(ctx, site); err != nil {
			logger.Error("Failed to load site", "site", site, "error", err)
		}
	}

	if o.demoSite != "" {
		site, err := seedDemo(ctx, svc, o.demoSite, time.Now())
		if err != nil {
			return err
		}
		if err := svc.StartSite(ctx, site); err != nil {
			return err
		}
		logger.Info("Demo site seeded and started", "site", site)
	}

	sinks, closeSinks := openSinks(ctx, logger, zlog, sessionStart)
	defer closeSinks()

	monitored := config.GetMonitorConfig().Sites
	for _, site := range monitored {
		if err := svc.LoadSite(ctx, site); err != nil {
			return fmt.Errorf("loading monitored site %q: %w", site, err)
		}
	}
	mon := monitor.NewService(monitor.Dependencies{
		Engine: eng,
		Sinks:  sinks,
		Sites:  monitored,
		Logger: logger,
	})
	if err := mon.Start(); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer mon.Stop()
	if mon.IsRunning() {
		logger.Info("Forwarding snapshots to sinks", "sinks", len(sinks), "sites", monitored)
	}

	srvCfg := config.GetServerConfig()
	apiServer := server.New(svc, disp, logger, server.Options{
		WriteTimeout:   srvCfg.WriteTimeout,
		PingInterval:   srvCfg.PingInterval,
		AllowedOrigins: srvCfg.AllowedOrigins,
	})
	// no server-wide write timeout: streams set their own deadlines
	httpSrv := &http.Server{
		Addr:              srvCfg.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: srvCfg.ReadTimeout,
		IdleTimeout:       2 * srvCfg.PingInterval,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "address", srvCfg.Address)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		mon.Stop()
		// closing the engine ends every open stream
		eng.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openSinks connects the enabled snapshot sinks. A sink that fails to
// connect is logged and left out.
func openSinks(ctx context.Context, logger *slog.Logger, zlog zerolog.Logger, sessionStart time.Time) ([]monitor.Sink, func()) {
	var (
		sinks   []monitor.Sink
		closers []io.Closer
	)

	if ic := config.GetInfluxConfig(); ic.Enabled {
		backupPath := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s_influx_%s.lp.gz", appName, sessionStart.Format("20060102_150405")))
		m := influx.NewManager(ic, zlog, backupPath)
		if err := m.Connect(ctx); err != nil {
			logger.Error("Failed to set up InfluxDB sink", "error", err)
		} else {
			if !m.IsValid() {
				logger.Warn("InfluxDB unreachable, writing points to backup file", "path", backupPath)
			}
			sinks = append(sinks, m)
			closers = append(closers, m)
		}
	}

	if rc := config.GetRedisConfig(); rc.Enabled {
		p, err := redisbus.New(ctx, rc, logger)
		if err != nil {
			logger.Error("Failed to set up Redis sink", "error", err, "addr", rc.Addr)
		} else {
			sinks = append(sinks, p)
			closers = append(closers, p)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close sink", "error", err)
			}
		}
	}
}
