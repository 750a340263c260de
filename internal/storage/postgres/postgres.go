// Package postgres implements the storage.Backend interface on PostgreSQL
// through the shared GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/kavach/opsengine/internal/database"
	gormstorage "github.com/kavach/opsengine/internal/storage/gorm"
)

// Backend wraps the GORM backend with Postgres connection handling.
type Backend struct {
	*gormstorage.Backend
	cfg    database.Config
	logger *slog.Logger
}

// New creates a Postgres backend. The connection is opened by Init.
func New(cfg database.Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger}
}

// NewWithDB wraps an existing connection, e.g. one opened by database.Manager.
func NewWithDB(db *gorm.DB, logger *slog.Logger) *Backend {
	b := New(database.Config{}, logger)
	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.logger})
	return b
}

// Init connects when needed, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	if b.Backend == nil {
		db, err := database.GetPostgresDB(b.cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.logger})
		b.logger.Info("Connected to Postgres", "host", b.cfg.Host, "database", b.cfg.Database)
	}
	return b.Backend.Init()
}

// Close releases the connection pool. Safe before Init.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
