// Package factory builds the configured storage backend.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/database"
	"github.com/kavach/opsengine/internal/storage"
	"github.com/kavach/opsengine/internal/storage/memory"
	mongostorage "github.com/kavach/opsengine/internal/storage/mongo"
	"github.com/kavach/opsengine/internal/storage/postgres"
	sqlitestorage "github.com/kavach/opsengine/internal/storage/sqlite"
)

func postgresConfig(c config.PostgresConfig) database.Config {
	return database.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
	}
}

// NewBackend creates a storage backend based on configuration.
// The caller runs Init. "auto" tries Postgres and falls back to an in-memory
// SQLite database dumped to the sqlite dump path.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, logger)
	case "postgres":
		return postgres.New(postgresConfig(cfg.Postgres), logger), nil
	case "auto":
		m := database.NewManager(zlog)
		if err := m.Connect(postgresConfig(cfg.Postgres)); err != nil {
			return nil, err
		}
		if m.ShouldSaveLocal {
			return sqlitestorage.NewWithDB(m.DB, sqlitestorage.Config{
				DumpInterval: cfg.SQLite.DumpInterval,
				DumpPath:     cfg.SQLite.DumpPath,
			}, logger), nil
		}
		return postgres.NewWithDB(m.DB, logger), nil
	case "mongo", "mongodb":
		return mongostorage.New(cfg.Mongo, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
