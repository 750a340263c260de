package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/pkg/core"
)

var genAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() core.OperationalSnapshot {
	return core.OperationalSnapshot{
		SiteID:      "Jharia",
		Sequence:    12,
		Vehicles:    []core.Vehicle{{ID: "D-1"}, {ID: "D-2"}},
		HazardState: core.HazardProximity,
		HazardPairs: []core.HazardPair{{A: "D-1", B: "D-2", State: core.HazardProximity}},
		Overspeed:   []string{"D-2"},
		WorkerFatigue: map[string]core.FatigueLevel{
			"W-1": core.FatigueSafe,
			"W-2": core.FatigueWarning,
			"W-3": core.FatigueCritical,
		},
		AggregateRisk: core.AggregateRisk{Level: core.RiskMedium, SafetyScore: 55, MeanScore: 45, Samples: 4},
		ActiveShift:   "Shift A",
		GeneratedAt:   genAt,
	}
}

func TestSnapshotPoint(t *testing.T) {
	p := SnapshotPoint(testSnapshot())
	assert.Equal(t, MeasurementState, p.Name())
	assert.Equal(t, genAt, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"site": "Jharia", "shift": "Shift A", "hazard": "Proximity", "risk_level": "Medium",
	}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(12), fields["sequence"])
	assert.Equal(t, int64(55), fields["safety_score"])
	assert.Equal(t, 45.0, fields["mean_score"])
	assert.Equal(t, int64(2), fields["vehicles"])
	assert.Equal(t, int64(1), fields["overspeeding"])
	assert.Equal(t, int64(1), fields["hazard_pairs"])
	assert.Equal(t, int64(3), fields["workers"])
	assert.Equal(t, int64(1), fields["fatigue_warning"])
	assert.Equal(t, int64(1), fields["fatigue_critical"])
}

func TestAlertPoint_LineProtocol(t *testing.T) {
	p := AlertPoint(core.Alert{
		SiteID: "Jharia", Sequence: 3, Kind: core.AlertCollision, Severity: core.SeverityCritical,
		Subject: "D-1/D-2", Message: "collision risk", Time: genAt,
	})
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "site_alerts,kind=collision,severity=critical,site=Jharia "), line)
	assert.Contains(t, line, `subject="D-1/D-2"`)
	assert.Contains(t, line, "sequence=3i")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.Error(t, m.WriteSnapshot(context.Background(), testSnapshot()))
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	u, err := url.Parse(down.URL)
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(config.InfluxConfig{
		Enabled: true, Protocol: "http", Host: u.Hostname(), Port: u.Port(),
		Token: "t", Org: "kavach", Bucket: "opsengine",
	}, zerolog.Nop(), backupPath)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid())
	assert.Equal(t, "influx", m.Name())

	ctx := context.Background()
	require.NoError(t, m.WriteSnapshot(ctx, testSnapshot()))
	require.NoError(t, m.WriteAlert(ctx, core.Alert{SiteID: "Jharia", Kind: core.AlertOverspeed, Severity: core.SeverityWarning, Subject: "D-2", Time: genAt}))
	require.NoError(t, m.Close())

	f, err := os.Open(backupPath)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementState+","))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementAlerts+","))
	_, err = io.Copy(io.Discard, zr)
	assert.NoError(t, err)
}
