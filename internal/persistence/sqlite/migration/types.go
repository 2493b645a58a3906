package migration

import (
	"context"
	"time"
)

// Direction selects which half of a migration is executed.
type Direction int

const (
	// Up applies the forward SQL of a migration.
	Up Direction = iota
	// Down applies the reverse SQL of a migration.
	Down
)

// String returns "up" or "down".
func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Migration represents a versioned schema change with its forward and reverse SQL.
type Migration struct {
	Version     string    // Version identifier (e.g., "001", "002")
	Description string    // Human-readable description of the migration
	Revision    string    // Opaque revision id from the "-- Revision:" header, if any
	Revises     string    // Revision this one follows, empty for a root revision
	SQL         string    // Forward SQL statements
	DownSQL     string    // Reverse SQL statements, empty when irreversible
	FilePath    string    // Path to the forward migration file
	DownPath    string    // Path to the reverse migration file, if any
	Checksum    string    // sha256 of the forward SQL
	AppliedAt   time.Time // Timestamp when migration was applied (for tracking)
}

// Reversible reports whether the migration carries reverse SQL.
func (m Migration) Reversible() bool {
	return m.DownSQL != ""
}

// MigrationManager orchestrates the migration process
type MigrationManager interface {
	// RunMigrations executes all pending migrations in sequential order
	RunMigrations(ctx context.Context) error

	// Rollback reverses the most recently applied migrations, newest first
	Rollback(ctx context.Context, steps int) error

	// MigrateTo applies or reverses migrations until version is current.
	// Version "0" reverses every applied migration.
	MigrateTo(ctx context.Context, version string) error

	// GetAppliedVersions returns list of migration versions that have been applied
	GetAppliedVersions(ctx context.Context) ([]string, error)

	// GetPendingMigrations returns list of migrations that need to be applied
	GetPendingMigrations(ctx context.Context) ([]Migration, error)

	// GetMigrationStatus returns status information about migrations
	GetMigrationStatus(ctx context.Context) (*MigrationStatus, error)

	// ListAppliedMigrations returns all applied migrations with timestamps and execution details
	ListAppliedMigrations(ctx context.Context) ([]AppliedMigration, error)

	// LogCurrentSchemaVersion logs the current database schema version
	LogCurrentSchemaVersion(ctx context.Context) error

	// LogPendingMigrations logs information about pending migrations before execution
	LogPendingMigrations(ctx context.Context) error
}

// FileScanner handles scanning and parsing migration files from a file system
type FileScanner interface {
	// ScanMigrations scans the migration root for migration files
	ScanMigrations() ([]Migration, error)

	// ValidateFileName checks if migration file follows naming convention
	ValidateFileName(filename string) error

	// ParseMigrationFile reads and parses a single forward migration file
	ParseMigrationFile(filePath string) (*Migration, error)
}

// Executor handles the actual execution of migrations against the database
type Executor interface {
	// ExecuteMigration runs one direction of a migration and records or
	// removes its schema_migrations row in the same transaction. runID tags
	// the row written by a forward run.
	ExecuteMigration(ctx context.Context, migration Migration, direction Direction, runID string) error

	// InitializeVersionTable creates the schema_migrations table if it doesn't exist
	InitializeVersionTable(ctx context.Context) error

	// GetAppliedVersions returns all applied migration versions with timestamps
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}

// MigrationStatus provides information about the current migration state
type MigrationStatus struct {
	CurrentVersion    string             // Latest applied migration version
	PendingCount      int                // Number of pending migrations
	AppliedMigrations []AppliedMigration // List of applied migrations
	PendingMigrations []Migration        // List of pending migrations
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       string        // Migration version
	Description   string        // Description at the time it was applied
	Revision      string        // Revision id, if the file carried one
	AppliedAt     time.Time     // When the migration was applied
	ExecutionTime time.Duration // How long the migration took to execute
	Checksum      string        // Checksum of the migration file when applied
	RunID         string        // Identifier shared by migrations applied in one run
}
