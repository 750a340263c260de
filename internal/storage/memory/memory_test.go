// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/storage"
	"github.com/kavach/opsengine/internal/storage/storagetest"
	"github.com/kavach/opsengine/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	require.NotNil(t, b)
	assert.Equal(t, "/tmp/test", b.cfg.OutputDir)
	assert.True(t, b.cfg.CompressOutput)
	assert.NotNil(t, b.sites)
}

func TestBackendContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b := New(config.MemoryConfig{})
		require.NoError(t, b.Init())
		return b
	})
}

func TestPredictions(t *testing.T) {
	b := New(config.MemoryConfig{})
	ctx := context.Background()

	require.NoError(t, b.AppendHistory(ctx, "pit-1", storagetest.Record("h1", 10, 1)))
	in := core.GeotechnicalInput{Zone: "Zone 1", SlopeAngleDeg: 40}
	p := core.Prediction{Level: core.RiskLow, Score: 12}
	require.NoError(t, b.RecordPrediction(ctx, "pit-1", storagetest.Record("p1", 12, 2), in, p))

	got := b.Predictions("pit-1")
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Record.ID)
	assert.Equal(t, in, *got[0].Input)
	assert.Nil(t, b.Predictions("nowhere"))
}

func TestAppendHistory_ReplacesDuplicateID(t *testing.T) {
	b := New(config.MemoryConfig{})
	ctx := context.Background()

	require.NoError(t, b.AppendHistory(ctx, "pit-1", storagetest.Record("h1", 10, 1)))
	require.NoError(t, b.AppendHistory(ctx, "pit-1", storagetest.Record("h1", 90, 1)))

	got, err := b.ListHistory(ctx, "pit-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 90.0, got[0].Score)
}

func TestClose_NoOutputDirSkipsExport(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Close())
	assert.Empty(t, b.GetExportedFilePath())
}

func TestClose_ExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	ctx := context.Background()

	require.NoError(t, b.SaveWorker(ctx, "pit-1", storagetest.Worker("W-1", 3)))
	require.NoError(t, b.AppendHistory(ctx, "pit-1", storagetest.Record("h1", 45, 1)))
	require.NoError(t, b.Close())

	path := b.GetExportedFilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export Export
	require.NoError(t, json.Unmarshal(data, &export))
	require.Contains(t, export.Sites, "pit-1")
	assert.Len(t, export.Sites["pit-1"].Workers, 1)
	assert.Equal(t, "h1", export.Sites["pit-1"].History[0].ID)
}

func TestClose_ExportsGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	ctx := context.Background()

	in := core.GeotechnicalInput{Zone: "Zone 3", SlopeAngleDeg: 70}
	p := core.Prediction{Level: core.RiskHigh, Score: 95}
	require.NoError(t, b.RecordPrediction(ctx, "pit-1", storagetest.Record("p1", 95, 1), in, p))
	require.NoError(t, b.Close())

	path := b.GetExportedFilePath()
	require.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export Export
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	preds := export.Sites["pit-1"].Predictions
	require.Len(t, preds, 1)
	assert.Equal(t, "Zone 3", preds[0].Input.Zone)
	assert.Equal(t, core.RiskHigh, preds[0].Result.Level)
}
