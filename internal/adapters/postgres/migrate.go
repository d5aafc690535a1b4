package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres/migrations"
)

// SchemaVersion is the applied migration version and its dirty flag
type SchemaVersion struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Migrator applies the embedded schema migrations to the target database
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// NewMigrator opens the embedded migration source against databaseURL
func NewMigrator(databaseURL string, logger *zap.Logger) (*Migrator, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("initialize migrations: %w", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. No pending migrations is not an error.
func (r *Migrator) Up() error {
	if err := r.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Target schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.logger.Info("Target schema migrations applied")
	return nil
}

// Down rolls back the most recent migration
func (r *Migrator) Down() error {
	if err := r.m.Steps(-1); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// Version reports the applied version. A database with no migrations reports version 0.
func (r *Migrator) Version() (SchemaVersion, error) {
	version, dirty, err := r.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return SchemaVersion{}, nil
		}
		return SchemaVersion{}, fmt.Errorf("read migration version: %w", err)
	}
	return SchemaVersion{Version: version, Dirty: dirty}, nil
}

// Close releases the source and database handles
func (r *Migrator) Close() {
	if sourceErr, dbErr := r.m.Close(); sourceErr != nil || dbErr != nil {
		r.logger.Warn("Failed to close migration resources",
			zap.NamedError("source_error", sourceErr),
			zap.NamedError("database_error", dbErr),
		)
	}
}

// migrateURL rewrites a postgres URL to the pgx5 driver scheme
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
