package migration

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned (wrapped) by the scanner, executor and manager.
// Match them with errors.Is.
var (
	ErrMigrationFailed       = errors.New("migration execution failed")
	ErrInvalidMigrationFile  = errors.New("invalid migration file format")
	ErrMigrationNotFound     = errors.New("migration file not found")
	ErrVersionConflict       = errors.New("migration version conflict")
	ErrInvalidVersion        = errors.New("invalid migration version")
	ErrDuplicateVersion      = errors.New("duplicate migration version")
	ErrMigrationTimeout      = errors.New("migration execution timeout")
	ErrVersionTableCorrupt   = errors.New("schema_migrations table is corrupted")
	ErrChecksumMismatch      = errors.New("migration checksum mismatch")
	ErrIrreversibleMigration = errors.New("migration is irreversible")
	ErrNothingToRollback     = errors.New("no applied migrations to roll back")
)

// MigrationError attaches the version and file of a migration to a failure
// raised while scanning, applying or reverting it.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	b.WriteString("migration")
	if e.Version != "" {
		b.WriteString(" " + e.Version)
	}
	if e.FilePath != "" {
		b.WriteString(" (" + e.FilePath + ")")
	}
	fmt.Fprintf(&b, ": %s: %v", e.Operation, e.Err)
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.Err }

// NewMigrationError returns a MigrationError for version and filePath.
func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FilePath: filePath, Operation: operation, Err: err}
}

// FileSystemError reports a failure reading the migration source.
type FileSystemError struct {
	Path      string
	Operation string
	Err       error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("migration source %s: %s: %v", e.Path, e.Operation, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// NewFileSystemError returns a FileSystemError for path.
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{Path: path, Operation: operation, Err: err}
}

// DatabaseError reports an engine failure. Query holds the failing statement
// when one is known; engine messages such as "table already exists" are kept
// intact in Err.
type DatabaseError struct {
	Version   string
	Query     string
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("database: %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("database: migration %s: %s: %v", e.Version, e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NewDatabaseError returns a DatabaseError for version.
func NewDatabaseError(version, query, operation string, err error) *DatabaseError {
	return &DatabaseError{Version: version, Query: query, Operation: operation, Err: err}
}
