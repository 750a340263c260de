// Package storagetest holds behaviour tests shared by every storage.Backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/internal/storage"
	"github.com/kavach/opsengine/pkg/core"
)

var base = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

// Worker returns a worker that started its shift hoursAgo before base+12h.
func Worker(id string, hoursAgo float64) core.Worker {
	return core.Worker{
		ID:         id,
		Name:       "Worker " + id,
		Role:       core.RoleTransport,
		ShiftStart: base.Add(12*time.Hour - time.Duration(hoursAgo*float64(time.Hour))),
	}
}

// Record returns a history record minute minutes after base.
func Record(id string, score float64, minute int) core.HistoryRecord {
	lvl := core.RiskLow
	switch {
	case score >= 75:
		lvl = core.RiskHigh
	case score >= 40:
		lvl = core.RiskMedium
	}
	return core.HistoryRecord{
		ID:        id,
		Level:     lvl,
		Score:     score,
		Zone:      "Zone 1",
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
	}
}

// Run exercises b through the full Backend contract. newBackend must return
// an initialised, empty backend; Run closes it.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Run("Workers", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		require.NoError(t, b.SaveWorker(ctx, "pit-1", Worker("W-2", 9)))
		require.NoError(t, b.SaveWorker(ctx, "pit-1", Worker("W-1", 2)))
		require.NoError(t, b.SaveWorker(ctx, "pit-2", Worker("W-9", 1)))

		got, err := b.ListWorkers(ctx, "pit-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "W-1", got[0].ID)
		assert.Equal(t, "W-2", got[1].ID)
		assert.True(t, Worker("W-2", 9).ShiftStart.Equal(got[1].ShiftStart))
		assert.Equal(t, core.RoleTransport, got[1].Role)

		// save is an upsert
		updated := Worker("W-2", 11)
		updated.Name = "Renamed"
		require.NoError(t, b.SaveWorker(ctx, "pit-1", updated))
		got, err = b.ListWorkers(ctx, "pit-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Renamed", got[1].Name)

		require.NoError(t, b.DeleteWorker(ctx, "pit-1", "W-1"))
		assert.ErrorIs(t, b.DeleteWorker(ctx, "pit-1", "W-1"), core.ErrNotFound)
		assert.ErrorIs(t, b.DeleteWorker(ctx, "pit-1", "W-9"), core.ErrNotFound)

		got, err = b.ListWorkers(ctx, "nowhere")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("History", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		require.NoError(t, b.AppendHistory(ctx, "pit-1",
			Record("h3", 90, 3),
			Record("h1", 10, 1),
			Record("h2", 50, 2),
		))
		require.NoError(t, b.AppendHistory(ctx, "pit-2", Record("x1", 20, 1)))

		got, err := b.ListHistory(ctx, "pit-1", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"h1", "h2", "h3"}, ids(got))
		assert.Equal(t, core.RiskMedium, got[1].Level)
		assert.True(t, Record("h1", 10, 1).Timestamp.Equal(got[0].Timestamp))

		got, err = b.ListHistory(ctx, "pit-1", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"h2", "h3"}, ids(got))

		require.NoError(t, b.DeleteHistory(ctx, "pit-1", "h2"))
		assert.ErrorIs(t, b.DeleteHistory(ctx, "pit-1", "h2"), core.ErrNotFound)

		got, err = b.ListHistory(ctx, "pit-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"h1", "h3"}, ids(got))

		n, err := b.ClearHistory(ctx, "pit-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err = b.ListHistory(ctx, "pit-1", 0)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = b.ListHistory(ctx, "pit-2", 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("LargeWindow", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		records := make([]core.HistoryRecord, 250)
		for i := range records {
			records[i] = Record(fmt.Sprintf("r%03d", i), float64(i%100), i)
		}
		require.NoError(t, b.AppendHistory(ctx, "pit-1", records...))

		got, err := b.ListHistory(ctx, "pit-1", 200)
		require.NoError(t, err)
		require.Len(t, got, 200)
		assert.Equal(t, "r050", got[0].ID)
		assert.Equal(t, "r249", got[199].ID)
	})

	t.Run("RecordPrediction", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		in := core.GeotechnicalInput{Zone: "Zone 2", SlopeAngleDeg: 62, RainfallMM24h: 140}
		p := core.Prediction{
			Level:         core.RiskHigh,
			Score:         88,
			Alert:         "High Risk! Immediate inspection required!",
			Probabilities: map[string]float64{"High": 0.88, "Low": 0.02, "Medium": 0.1},
			Confidence:    88,
			Timestamp:     base,
		}
		r := core.HistoryRecord{ID: "p1", Level: p.Level, Score: p.Score, Zone: in.Zone, Timestamp: base}
		require.NoError(t, b.RecordPrediction(ctx, "pit-1", r, in, p))

		got, err := b.ListHistory(ctx, "pit-1", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p1", got[0].ID)
		assert.Equal(t, "Zone 2", got[0].Zone)
		assert.Equal(t, core.RiskHigh, got[0].Level)
	})

	t.Run("ListSites", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := context.Background()

		require.NoError(t, b.SaveWorker(ctx, "pit-b", Worker("W-1", 1)))
		require.NoError(t, b.AppendHistory(ctx, "pit-a", Record("h1", 10, 1)))

		sites, err := b.ListSites(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"pit-a", "pit-b"}, sites)
	})
}

func ids(rs []core.HistoryRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
