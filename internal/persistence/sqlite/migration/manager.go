package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/fooddb/internal/logging"
)

// migrationManagerImpl implements the MigrationManager interface
type migrationManagerImpl struct {
	scanner  FileScanner
	executor Executor
	config   MigrationConfig
	logger   *slog.Logger
	newRunID func() string
}

// NewMigrationManager creates a new MigrationManager implementation.
// A nil logger falls back to slog.Default.
func NewMigrationManager(scanner FileScanner, executor Executor, config MigrationConfig, logger *slog.Logger) MigrationManager {
	return NewMigrationManagerWithRunIDs(scanner, executor, config, logger, uuid.NewString)
}

// NewMigrationManagerWithRunIDs creates a MigrationManager that labels each
// run with an id from newRunID instead of a random UUID.
func NewMigrationManagerWithRunIDs(scanner FileScanner, executor Executor, config MigrationConfig, logger *slog.Logger, newRunID func() string) MigrationManager {
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &migrationManagerImpl{
		scanner:  scanner,
		executor: executor,
		config:   config,
		logger:   logger,
		newRunID: newRunID,
	}
}

func (m *migrationManagerImpl) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, m.logger, "migration", operation, attrs...)
}

// RunMigrations executes all pending migrations in sequential order
func (m *migrationManagerImpl) RunMigrations(ctx context.Context) error {
	logger := m.log(ctx, "up", "migration_dir", m.config.MigrationDir)
	startTime := time.Now()

	logger.Info("initializing version tracking table")
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		logger.Error("failed to initialize schema_migrations table", "error", err)
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	if err := m.LogCurrentSchemaVersion(ctx); err != nil {
		logger.Warn("could not log current schema version", "error", err)
	}

	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		logger.Error("failed to scan for pending migrations", "error", err)
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	m.logPending(logger, pendingMigrations)
	if len(pendingMigrations) == 0 {
		return nil
	}

	if err := m.apply(ctx, logger, pendingMigrations); err != nil {
		return err
	}

	logger.Info("all migrations completed",
		"applied_count", len(pendingMigrations),
		"duration", time.Since(startTime))

	if err := m.LogCurrentSchemaVersion(ctx); err != nil {
		logger.Warn("could not log final migration status", "error", err)
	}

	return nil
}

// apply runs the forward half of each migration in order.
// Every migration applied by one call shares a run id.
func (m *migrationManagerImpl) apply(ctx context.Context, logger *slog.Logger, migrations []Migration) error {
	runID := m.newRunID()
	logger = logger.With("run_id", runID)

	for i, migration := range migrations {
		migrationStartTime := time.Now()

		logger.Info("executing migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", i+1,
			"total", len(migrations),
			"file", migration.FilePath,
			"checksum", migration.Checksum)

		if err := m.execute(ctx, migration, Up, runID); err != nil {
			logger.Error("migration failed", "version", migration.Version, "file", migration.FilePath, "error", err)
			return NewMigrationError(migration.Version, migration.FilePath,
				"execute migration", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}

		logger.Info("migration completed", "version", migration.Version, "duration", time.Since(migrationStartTime))
	}

	return nil
}

// execute runs one direction of a migration bounded by TimeoutPerFile.
func (m *migrationManagerImpl) execute(ctx context.Context, migration Migration, direction Direction, runID string) error {
	if m.config.TimeoutPerFile > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.TimeoutPerFile)
		defer cancel()
	}

	err := m.executor.ExecuteMigration(ctx, migration, direction, runID)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded %v: %w", ErrMigrationTimeout, migration.Version, m.config.TimeoutPerFile, err)
	}
	return err
}

// Rollback reverses the most recently applied migrations, newest first.
// A steps value larger than the number of applied migrations reverses all of them.
func (m *migrationManagerImpl) Rollback(ctx context.Context, steps int) error {
	logger := m.log(ctx, "down", "steps", steps)

	if steps <= 0 {
		return fmt.Errorf("%w: rollback steps must be positive, got %d", ErrInvalidVersion, steps)
	}

	appliedMigrations, err := m.ListAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(appliedMigrations) == 0 {
		logger.Info("no applied migrations to roll back")
		return ErrNothingToRollback
	}

	if steps > len(appliedMigrations) {
		logger.Warn("rollback steps exceed applied migrations, reversing all",
			"applied_count", len(appliedMigrations))
		steps = len(appliedMigrations)
	}

	targets := make([]AppliedMigration, steps)
	copy(targets, appliedMigrations[len(appliedMigrations)-steps:])
	return m.revert(ctx, logger, targets)
}

// revert runs the reverse half of each applied migration, newest first.
func (m *migrationManagerImpl) revert(ctx context.Context, logger *slog.Logger, targets []AppliedMigration) error {
	available, err := m.scanner.ScanMigrations()
	if err != nil {
		logger.Error("failed to scan migration directory", "error", err)
		return fmt.Errorf("failed to scan migrations: %w", err)
	}

	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		version, err := strconv.Atoi(migration.Version)
		if err != nil {
			return NewMigrationError(migration.Version, migration.FilePath, "rollback",
				fmt.Errorf("%w: version '%s' is not numeric", ErrInvalidVersion, migration.Version))
		}
		byVersion[version] = migration
	}

	sort.Slice(targets, func(i, j int) bool {
		return versionNumber(targets[i].Version) > versionNumber(targets[j].Version)
	})

	for i, applied := range targets {
		migration, ok := byVersion[versionNumber(applied.Version)]
		if !ok {
			logger.Error("applied migration has no file", "version", applied.Version)
			return NewMigrationError(applied.Version, "", "rollback",
				fmt.Errorf("%w: applied migration %s not found in available migrations", ErrMigrationNotFound, applied.Version))
		}

		startTime := time.Now()
		logger.Info("reverting migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", i+1,
			"total", len(targets),
			"file", migration.DownPath)

		if err := m.execute(ctx, migration, Down, ""); err != nil {
			logger.Error("rollback failed", "version", migration.Version, "error", err)
			return NewMigrationError(migration.Version, migration.DownPath,
				"rollback migration", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}

		logger.Info("migration reverted", "version", migration.Version, "duration", time.Since(startTime))
	}

	return nil
}

// MigrateTo applies or reverses migrations until version is the current one
func (m *migrationManagerImpl) MigrateTo(ctx context.Context, version string) error {
	logger := m.log(ctx, "to", "target", version)

	target, err := strconv.Atoi(version)
	if err != nil || target < 0 {
		return fmt.Errorf("%w: target version '%s' is not a non-negative number", ErrInvalidVersion, version)
	}

	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	if target > 0 {
		available, err := m.scanner.ScanMigrations()
		if err != nil {
			return fmt.Errorf("failed to scan migrations: %w", err)
		}
		found := false
		for _, migration := range available {
			if versionNumber(migration.Version) == target {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: target version %s", ErrMigrationNotFound, version)
		}
	}

	appliedMigrations, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var toRevert []AppliedMigration
	for _, applied := range appliedMigrations {
		if versionNumber(applied.Version) > target {
			toRevert = append(toRevert, applied)
		}
	}
	if len(toRevert) > 0 {
		return m.revert(ctx, logger, toRevert)
	}

	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	var toApply []Migration
	for _, migration := range pendingMigrations {
		if versionNumber(migration.Version) <= target {
			toApply = append(toApply, migration)
		}
	}
	if len(toApply) == 0 {
		logger.Info("database already at target version")
		return nil
	}

	return m.apply(ctx, logger, toApply)
}

// GetAppliedVersions returns list of migration versions that have been applied
func (m *migrationManagerImpl) GetAppliedVersions(ctx context.Context) ([]string, error) {
	appliedMigrations, err := m.ListAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	versions := make([]string, len(appliedMigrations))
	for i, migration := range appliedMigrations {
		versions[i] = migration.Version
	}

	return versions, nil
}

// GetPendingMigrations returns list of migrations that need to be applied
func (m *migrationManagerImpl) GetPendingMigrations(ctx context.Context) ([]Migration, error) {
	logger := m.log(ctx, "pending")

	availableMigrations, err := m.scanner.ScanMigrations()
	if err != nil {
		logger.Error("failed to scan migration directory", "error", err)
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	appliedMigrations, err := m.ListAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	logger.Debug("compared migration files with version table",
		"available_count", len(availableMigrations),
		"applied_count", len(appliedMigrations))

	if err := m.validateMigrationSequence(availableMigrations, appliedMigrations); err != nil {
		logger.Error("migration sequence validation failed", "error", err)
		return nil, fmt.Errorf("migration sequence validation failed: %w", err)
	}

	appliedMap := make(map[string]bool, len(appliedMigrations))
	for _, applied := range appliedMigrations {
		appliedMap[applied.Version] = true
	}

	var pendingMigrations []Migration
	for _, migration := range availableMigrations {
		if !appliedMap[migration.Version] {
			pendingMigrations = append(pendingMigrations, migration)
		}
	}

	sort.Slice(pendingMigrations, func(i, j int) bool {
		return versionNumber(pendingMigrations[i].Version) < versionNumber(pendingMigrations[j].Version)
	})

	return pendingMigrations, nil
}

// GetMigrationStatus returns status information about migrations
func (m *migrationManagerImpl) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	appliedMigrations, err := m.ListAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	return &MigrationStatus{
		CurrentVersion:    currentVersion(appliedMigrations),
		PendingCount:      len(pendingMigrations),
		AppliedMigrations: appliedMigrations,
		PendingMigrations: pendingMigrations,
	}, nil
}

// validateMigrationSequence ensures there are no gaps in migration version numbers,
// every applied version still has a file, nothing pending sorts below the current
// version, and, when enabled, applied checksums still match their files.
func (m *migrationManagerImpl) validateMigrationSequence(availableMigrations []Migration, appliedMigrations []AppliedMigration) error {
	if len(availableMigrations) == 0 && len(appliedMigrations) == 0 {
		return nil
	}

	available := make(map[int]Migration, len(availableMigrations))
	availableVersions := make([]int, 0, len(availableMigrations))
	for _, migration := range availableMigrations {
		version, err := strconv.Atoi(migration.Version)
		if err != nil {
			return NewMigrationError(migration.Version, migration.FilePath,
				"validate sequence", fmt.Errorf("%w: version '%s' is not numeric", ErrInvalidVersion, migration.Version))
		}
		available[version] = migration
		availableVersions = append(availableVersions, version)
	}
	sort.Ints(availableVersions)

	if len(availableVersions) > 0 {
		minVersion := availableVersions[0]
		maxVersion := availableVersions[len(availableVersions)-1]
		for version := minVersion; version <= maxVersion; version++ {
			if _, ok := available[version]; !ok {
				return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, version)
			}
		}
	}

	highestApplied := 0
	applied := make(map[int]bool, len(appliedMigrations))
	for _, record := range appliedMigrations {
		version, err := strconv.Atoi(record.Version)
		if err != nil {
			return NewDatabaseError(record.Version, "", "validate sequence",
				fmt.Errorf("%w: applied version '%s' is not numeric", ErrVersionTableCorrupt, record.Version))
		}
		applied[version] = true
		if version > highestApplied {
			highestApplied = version
		}

		migration, ok := available[version]
		if !ok {
			return fmt.Errorf("%w: applied migration %03d not found in available migrations",
				ErrVersionConflict, version)
		}

		if m.config.VerifyChecksum && record.Checksum != "" && record.Checksum != migration.Checksum {
			return NewMigrationError(migration.Version, migration.FilePath, "verify checksum",
				fmt.Errorf("%w: recorded %s, file %s", ErrChecksumMismatch, record.Checksum, migration.Checksum))
		}
	}

	for _, version := range availableVersions {
		if version < highestApplied && !applied[version] {
			return fmt.Errorf("%w: migration %03d is pending but %03d is already applied",
				ErrVersionConflict, version, highestApplied)
		}
	}

	return nil
}

// ListAppliedMigrations returns all applied migrations with timestamps and execution details
func (m *migrationManagerImpl) ListAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize version table: %w", err)
	}

	appliedMigrations, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	return appliedMigrations, nil
}

// LogCurrentSchemaVersion logs the current database schema version
func (m *migrationManagerImpl) LogCurrentSchemaVersion(ctx context.Context) error {
	logger := m.log(ctx, "status")

	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if status.CurrentVersion == "" {
		logger.Info("database schema has no migrations applied")
	} else {
		for _, migration := range status.AppliedMigrations {
			if migration.Version == status.CurrentVersion {
				logger.Info("database schema version",
					"version", migration.Version,
					"applied_at", migration.AppliedAt.Format(time.RFC3339),
					"execution_time", migration.ExecutionTime)
				break
			}
		}
	}

	if status.PendingCount > 0 {
		logger.Info("database schema has pending migrations", "pending_count", status.PendingCount)
	} else {
		logger.Info("database schema is up to date")
	}

	return nil
}

// LogPendingMigrations logs information about pending migrations before execution
func (m *migrationManagerImpl) LogPendingMigrations(ctx context.Context) error {
	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	m.logPending(m.log(ctx, "pending"), pendingMigrations)
	return nil
}

func (m *migrationManagerImpl) logPending(logger *slog.Logger, pendingMigrations []Migration) {
	if len(pendingMigrations) == 0 {
		logger.Info("no pending migrations")
		return
	}

	logger.Info("pending migrations found", "pending_count", len(pendingMigrations))
	for i, migration := range pendingMigrations {
		logger.Debug("pending migration",
			"position", i+1,
			"version", migration.Version,
			"description", migration.Description,
			"file", migration.FilePath,
			"reversible", migration.Reversible())
	}
}

// currentVersion returns the highest numeric version among applied migrations.
func currentVersion(appliedMigrations []AppliedMigration) string {
	current := ""
	maxVersion := -1
	for _, migration := range appliedMigrations {
		if version, err := strconv.Atoi(migration.Version); err == nil && version > maxVersion {
			maxVersion = version
			current = migration.Version
		}
	}
	return current
}

// versionNumber parses a version, treating malformed values as zero; callers
// validate versions before relying on the ordering.
func versionNumber(version string) int {
	n, _ := strconv.Atoi(version)
	return n
}
