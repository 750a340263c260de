// Package influx writes site state and alerts to InfluxDB, falling back to a
// gzip line-protocol file while the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/pkg/core"
)

// Measurement names.
const (
	MeasurementState  = "site_state"
	MeasurementAlerts = "site_alerts"
)

// ErrDisabled is returned by Connect when the sink is switched off.
var ErrDisabled = errors.New("influx sink disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg        config.InfluxConfig
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupPath string
	backupFile *os.File
	backup     *gzip.Writer
	valid      bool
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		backupPath: backupPath,
		log:        log,
	}
}

// Name identifies the sink in logs.
func (m *Manager) Name() string { return "influx" }

// IsValid reports whether points go to the server rather than the backup file.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Connect pings InfluxDB and prepares the org and bucket. When the server is
// unreachable the backup file is opened instead and Connect succeeds.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.log.Warn().Err(err).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.log.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.mu.Lock()
	m.valid = true
	m.mu.Unlock()
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup != nil {
		return nil
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	if _, err := m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.log.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// SnapshotPoint converts a snapshot into a site_state point.
func SnapshotPoint(snap core.OperationalSnapshot) *influxdb2_write.Point {
	var warning, critical int
	for _, level := range snap.WorkerFatigue {
		switch level {
		case core.FatigueWarning:
			warning++
		case core.FatigueCritical:
			critical++
		}
	}
	return influxdb2.NewPoint(MeasurementState,
		map[string]string{
			"site":       snap.SiteID,
			"shift":      snap.ActiveShift,
			"hazard":     string(snap.HazardState),
			"risk_level": string(snap.AggregateRisk.Level),
		},
		map[string]any{
			"sequence":         int64(snap.Sequence),
			"safety_score":     int64(snap.AggregateRisk.SafetyScore),
			"mean_score":       snap.AggregateRisk.MeanScore,
			"samples":          int64(snap.AggregateRisk.Samples),
			"vehicles":         int64(len(snap.Vehicles)),
			"overspeeding":     int64(len(snap.Overspeed)),
			"hazard_pairs":     int64(len(snap.HazardPairs)),
			"workers":          int64(len(snap.WorkerFatigue)),
			"fatigue_warning":  int64(warning),
			"fatigue_critical": int64(critical),
		},
		snap.GeneratedAt,
	)
}

// AlertPoint converts an alert into a site_alerts point.
func AlertPoint(a core.Alert) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementAlerts,
		map[string]string{
			"site":     a.SiteID,
			"kind":     string(a.Kind),
			"severity": string(a.Severity),
		},
		map[string]any{
			"sequence": int64(a.Sequence),
			"subject":  a.Subject,
			"message":  a.Message,
		},
		a.Time,
	)
}

// WriteSnapshot records a snapshot.
func (m *Manager) WriteSnapshot(ctx context.Context, snap core.OperationalSnapshot) error {
	return m.WritePoint(ctx, SnapshotPoint(snap))
}

// WriteAlert records an alert.
func (m *Manager) WriteAlert(ctx context.Context, a core.Alert) error {
	return m.WritePoint(ctx, AlertPoint(a))
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(_ context.Context, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if line == "" {
		return fmt.Errorf("encoding %s point", point.Name())
	}
	if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.valid = false

	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
