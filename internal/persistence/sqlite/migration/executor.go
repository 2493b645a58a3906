package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// versionTableName is the bookkeeping table owned by the runner.
const versionTableName = "schema_migrations"

// SQLiteExecutor implements the Executor interface for SQLite databases
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return NewSQLiteExecutorWithClock(db, time.Now)
}

// NewSQLiteExecutorWithClock creates an executor that stamps applied_at using now.
func NewSQLiteExecutorWithClock(db *sql.DB, now func() time.Time) *SQLiteExecutor {
	if now == nil {
		now = time.Now
	}
	return &SQLiteExecutor{
		db:  db,
		now: now,
	}
}

// ExecuteMigration runs one direction of a migration and updates
// schema_migrations in the same transaction. Up inserts the tracking row
// stamped with runID, Down deletes it. Any failing statement or bookkeeping
// write rolls back the whole migration.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration, direction Direction, runID string) (err error) {
	content, filePath := migration.SQL, migration.FilePath
	if direction == Down {
		if !migration.Reversible() {
			return NewMigrationError(migration.Version, migration.FilePath, "execute down",
				fmt.Errorf("%w: no down SQL for version %s", ErrIrreversibleMigration, migration.Version))
		}
		content, filePath = migration.DownSQL, migration.DownPath
	}

	statements, err := splitStatements(content)
	if err != nil {
		return NewMigrationError(migration.Version, filePath, "parse SQL", err)
	}
	if len(statements) == 0 {
		return NewMigrationError(migration.Version, filePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found in migration", ErrInvalidMigrationFile))
	}

	startTime := time.Now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(migration.Version, "", "begin transaction", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				err = multierr.Append(err, fmt.Errorf("rollback migration %s: %w", migration.Version, rollbackErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, createVersionTableSQL); err != nil {
		return NewDatabaseError(migration.Version, createVersionTableSQL, "create schema_migrations table", err)
	}

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return NewDatabaseError(migration.Version, stmt,
				fmt.Sprintf("execute %s statement %d", direction, i+1), execErr)
		}
	}

	if direction == Up {
		err = e.recordMigration(ctx, tx, AppliedMigration{
			Version:       migration.Version,
			Description:   migration.Description,
			Revision:      migration.Revision,
			ExecutionTime: time.Since(startTime),
			Checksum:      migration.Checksum,
			RunID:         runID,
		})
	} else {
		err = removeMigration(ctx, tx, migration.Version)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return NewDatabaseError(migration.Version, "", "commit transaction", err)
	}

	return nil
}

const createVersionTableSQL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		description TEXT,
		revision TEXT,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		checksum TEXT,
		execution_time_ms INTEGER,
		run_id TEXT
	)
`

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, createVersionTableSQL); err != nil {
		return NewDatabaseError("", createVersionTableSQL, "create schema_migrations table", err)
	}

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// recordMigration inserts the tracking row for applied.
// A zero AppliedAt is replaced with the executor clock.
func (e *SQLiteExecutor) recordMigration(ctx context.Context, q execer, applied AppliedMigration) error {
	insertSQL := `
		INSERT INTO schema_migrations (version, description, revision, applied_at, checksum, execution_time_ms, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	appliedAt := applied.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = e.now()
	}

	_, err := q.ExecContext(ctx, insertSQL,
		applied.Version,
		applied.Description,
		applied.Revision,
		appliedAt.UTC().Format(time.RFC3339),
		applied.Checksum,
		applied.ExecutionTime.Milliseconds(),
		applied.RunID,
	)
	if err != nil {
		return NewDatabaseError(applied.Version, insertSQL, "record migration", err)
	}

	return nil
}

// removeMigration deletes the tracking row whose version is numerically
// equal to version.
func removeMigration(ctx context.Context, q execer, version string) error {
	deleteSQL := `DELETE FROM schema_migrations WHERE CAST(version AS INTEGER) = ?`

	number, err := strconv.Atoi(version)
	if err != nil {
		return NewDatabaseError(version, deleteSQL, "remove migration",
			fmt.Errorf("%w: version '%s' is not numeric", ErrInvalidVersion, version))
	}

	result, err := q.ExecContext(ctx, deleteSQL, number)
	if err != nil {
		return NewDatabaseError(version, deleteSQL, "remove migration", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return NewDatabaseError(version, deleteSQL, "remove migration", err)
	}
	if affected == 0 {
		return NewDatabaseError(version, deleteSQL, "remove migration",
			fmt.Errorf("%w: version %s is not recorded", ErrVersionTableCorrupt, version))
	}

	return nil
}

// GetAppliedVersions returns all applied migration versions ordered by numeric version
func (e *SQLiteExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	querySQL := `
		SELECT version, COALESCE(description, ''), COALESCE(revision, ''), applied_at,
		       COALESCE(execution_time_ms, 0), COALESCE(checksum, ''), COALESCE(run_id, '')
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC, version ASC
	`

	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var appliedMigrations []AppliedMigration

	for rows.Next() {
		var applied AppliedMigration
		var appliedAtStr string
		var executionTimeMs int64

		if err := rows.Scan(&applied.Version, &applied.Description, &applied.Revision,
			&appliedAtStr, &executionTimeMs, &applied.Checksum, &applied.RunID); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied migration", err)
		}

		appliedAt, parseErr := parseAppliedAt(appliedAtStr)
		if parseErr != nil {
			return nil, NewDatabaseError(applied.Version, querySQL, "parse applied_at",
				fmt.Errorf("%w: %v", ErrVersionTableCorrupt, parseErr))
		}
		applied.AppliedAt = appliedAt
		applied.ExecutionTime = time.Duration(executionTimeMs) * time.Millisecond

		appliedMigrations = append(appliedMigrations, applied)
	}

	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}

	return appliedMigrations, nil
}

// parseAppliedAt accepts RFC3339 and the CURRENT_TIMESTAMP column default.
func parseAppliedAt(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
