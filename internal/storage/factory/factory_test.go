package factory

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/storage/memory"
	mongostorage "github.com/kavach/opsengine/internal/storage/mongo"
	"github.com/kavach/opsengine/internal/storage/postgres"
	sqlitestorage "github.com/kavach/opsengine/internal/storage/sqlite"
)

func TestNewBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		typ     string
		check   func(t *testing.T, b any)
		wantErr string
	}{
		{name: "default", typ: "", check: func(t *testing.T, b any) { assert.IsType(t, &memory.Backend{}, b) }},
		{name: "memory", typ: "memory", check: func(t *testing.T, b any) { assert.IsType(t, &memory.Backend{}, b) }},
		{name: "sqlite", typ: "sqlite", check: func(t *testing.T, b any) { assert.IsType(t, &sqlitestorage.Backend{}, b) }},
		{name: "postgres", typ: "postgres", check: func(t *testing.T, b any) { assert.IsType(t, &postgres.Backend{}, b) }},
		{name: "mongo", typ: "mongo", check: func(t *testing.T, b any) { assert.IsType(t, &mongostorage.Backend{}, b) }},
		{name: "unknown", typ: "cassandra", wantErr: "unknown storage type: cassandra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(config.StorageConfig{Type: tt.typ}, logger, zerolog.Nop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, b)
			// nothing is connected before Init, except the sqlite handle
			if s, ok := b.(*sqlitestorage.Backend); ok {
				require.NoError(t, s.Backend.Close())
			}
		})
	}
}

func TestNewBackend_AutoFallsBackToSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Type:     "auto",
		Postgres: config.PostgresConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d"},
		SQLite:   config.SQLiteConfig{DumpPath: filepath.Join(t.TempDir(), "fallback.db")},
	}
	b, err := NewBackend(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &sqlitestorage.Backend{}, b)

	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.FileExists(t, cfg.SQLite.DumpPath)
}
