package sqlite

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/example/fooddb/internal/persistence"
	"github.com/example/fooddb/internal/persistence/sqlite/migration"
	"github.com/example/fooddb/migrations"
)

// Storage bundles a SQLite connection pool with the migration runner and the
// food description repository.
type Storage struct {
	*FoodDescriptionRepository

	pool      *ConnectionPool
	manager   migration.MigrationManager
	inspector *migration.Inspector
}

var _ persistence.FoodDescriptionRepository = (*Storage)(nil)

// Options configures Open.
type Options struct {
	// Migration controls the migration runner. An empty MigrationDir selects
	// the migrations embedded in the binary.
	Migration migration.MigrationConfig
	Retry     RetryConfig
	Logger    *slog.Logger

	// Now stamps applied migrations; nil means time.Now.
	Now func() time.Time
	// NewRunID labels migration runs; nil means a random UUID.
	NewRunID func() string
}

// DefaultOptions returns options using the embedded migrations.
func DefaultOptions() Options {
	return Options{
		Migration: migration.DefaultMigrationConfig(""),
		Retry:     DefaultRetryConfig(),
	}
}

// Open connects to the database described by config. The schema is not
// touched until Migrate is called.
func Open(config migration.SQLiteConfig, opts Options) (*Storage, error) {
	if err := migration.ValidateMigrationConfig(opts.Migration); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	fsys, root := migrationSource(opts.Migration.MigrationDir)
	scanner := migration.NewFileScanner(fsys, root)
	executor := migration.NewSQLiteExecutorWithClock(pool.DB().DB, opts.Now)

	return &Storage{
		FoodDescriptionRepository: NewFoodDescriptionRepository(pool, opts.Retry),
		pool:                      pool,
		manager:                   migration.NewMigrationManagerWithRunIDs(scanner, executor, opts.Migration, opts.Logger, opts.NewRunID),
		inspector:                 migration.NewInspector(pool.DB().DB),
	}, nil
}

func migrationSource(dir string) (fs.FS, string) {
	if dir == "" {
		return migrations.FS, migrations.Root
	}
	return os.DirFS(dir), "."
}

// Migrate applies every pending migration.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.manager.RunMigrations(ctx)
}

// Migrations exposes the migration runner for rollbacks and status reports.
func (s *Storage) Migrations() migration.MigrationManager {
	return s.manager
}

// Inspector exposes schema inspection over the storage connection.
func (s *Storage) Inspector() *migration.Inspector {
	return s.inspector
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}
