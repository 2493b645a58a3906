package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// SQLiteConfig describes how to open and tune a SQLite database. Empty mode
// strings leave the engine default in place.
type SQLiteConfig struct {
	DSN               string        // file path, "file:" URI or ":memory:"
	BusyTimeout       time.Duration // wait on locked databases before SQLITE_BUSY
	EnableForeignKeys bool
	JournalMode       string // one of journalModes
	Synchronous       string // one of synchronousModes
	CacheSize         int    // PRAGMA cache_size: pages when positive, KiB when negative

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MigrationConfig controls the migration runner.
type MigrationConfig struct {
	// MigrationDir is an on-disk directory of migration files. Empty selects
	// the migrations embedded in the binary.
	MigrationDir string

	// TimeoutPerFile bounds each migration's transaction.
	TimeoutPerFile time.Duration

	// VerifyChecksum fails the run when an applied migration's file no
	// longer matches the recorded checksum.
	VerifyChecksum bool
}

// ConnectionManager opens SQLite handles configured from a SQLiteConfig.
type ConnectionManager interface {
	// GetConnection validates the config, creates the database file if needed
	// and returns an open, pinged handle.
	GetConnection() (*sql.DB, error)

	// CreateDatabaseFile creates the database directory and file. It is a
	// no-op for in-memory databases.
	CreateDatabaseFile() error

	// ValidateConfig reports the first invalid setting.
	ValidateConfig() error
}

var (
	journalModes     = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	synchronousModes = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
)

type sqliteConnectionManager struct {
	config SQLiteConfig
}

// NewConnectionManager returns a ConnectionManager for config.
func NewConnectionManager(config SQLiteConfig) ConnectionManager {
	return &sqliteConnectionManager{config: config}
}

func (cm *sqliteConnectionManager) GetConnection() (*sql.DB, error) {
	if err := cm.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}
	if err := cm.CreateDatabaseFile(); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	// PRAGMAs travel in the DSN so the driver applies them to every pooled
	// connection, not only the first one.
	db, err := sql.Open(DriverName, cm.connectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	cfg := cm.config
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}

// pragmas lists the settings as name/value pairs in application order.
func (cm *sqliteConnectionManager) pragmas() [][2]string {
	cfg := cm.config
	out := [][2]string{{"busy_timeout", fmt.Sprint(cfg.BusyTimeout.Milliseconds())}}
	if cfg.JournalMode != "" {
		out = append(out, [2]string{"journal_mode", cfg.JournalMode})
	}
	if cfg.Synchronous != "" {
		out = append(out, [2]string{"synchronous", cfg.Synchronous})
	}
	if cfg.EnableForeignKeys {
		out = append(out, [2]string{"foreign_keys", "ON"})
	}
	if cfg.CacheSize != 0 {
		out = append(out, [2]string{"cache_size", fmt.Sprint(cfg.CacheSize)})
	}
	return out
}

// connectionString appends the PRAGMAs to the DSN as _pragma parameters
// understood by modernc.org/sqlite.
func (cm *sqliteConnectionManager) connectionString() string {
	params := make(url.Values)
	for _, p := range cm.pragmas() {
		params.Add("_pragma", fmt.Sprintf("%s(%s)", p[0], p[1]))
	}

	sep := "?"
	if strings.Contains(cm.config.DSN, "?") {
		sep = "&"
	}
	return cm.config.DSN + sep + params.Encode()
}

func (cm *sqliteConnectionManager) CreateDatabaseFile() error {
	dbPath, ok := filePath(cm.config.DSN)
	if !ok {
		return nil
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(dbPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file %s: %w", dbPath, err)
	}
	return file.Close()
}

// filePath extracts the on-disk path from a DSN. It reports false for
// in-memory databases.
func filePath(dsn string) (string, bool) {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return "", false
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return "", false
	}
	return path, true
}

func (cm *sqliteConnectionManager) ValidateConfig() error {
	cfg := cm.config
	switch {
	case cfg.DSN == "":
		return errors.New("DSN cannot be empty")
	case cfg.BusyTimeout < 0:
		return errors.New("BusyTimeout cannot be negative")
	case cfg.JournalMode != "" && !slices.Contains(journalModes, cfg.JournalMode):
		return fmt.Errorf("invalid journal mode: %s", cfg.JournalMode)
	case cfg.Synchronous != "" && !slices.Contains(synchronousModes, cfg.Synchronous):
		return fmt.Errorf("invalid synchronous mode: %s", cfg.Synchronous)
	case cfg.MaxOpenConns < 0:
		return errors.New("MaxOpenConns cannot be negative")
	case cfg.MaxIdleConns < 0:
		return errors.New("MaxIdleConns cannot be negative")
	case cfg.ConnMaxLifetime < 0:
		return errors.New("ConnMaxLifetime cannot be negative")
	}
	return nil
}

// DefaultSQLiteConfig returns a WAL-mode profile suitable for the CLI.
func DefaultSQLiteConfig(databasePath string) SQLiteConfig {
	return SQLiteConfig{
		DSN:               databasePath,
		BusyTimeout:       30 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		CacheSize:         -2000, // 2000 KiB
		MaxOpenConns:      25,
		MaxIdleConns:      5,
		ConnMaxLifetime:   5 * time.Minute,
	}
}

// DefaultMigrationConfig returns the production runner settings.
func DefaultMigrationConfig(migrationDir string) MigrationConfig {
	return MigrationConfig{
		MigrationDir:   migrationDir,
		TimeoutPerFile: 5 * time.Minute,
		VerifyChecksum: true,
	}
}

// TestMigrationConfig shortens the per-file timeout for tests.
func TestMigrationConfig(migrationDir string) MigrationConfig {
	return MigrationConfig{
		MigrationDir:   migrationDir,
		TimeoutPerFile: 30 * time.Second,
		VerifyChecksum: true,
	}
}

// testSQLiteConfig trades durability for speed and pins the pool to one
// connection.
func testSQLiteConfig(dsn string) SQLiteConfig {
	return SQLiteConfig{
		DSN:               dsn,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "MEMORY",
		Synchronous:       "OFF",
		CacheSize:         -1000,
		MaxOpenConns:      1,
		MaxIdleConns:      1,
	}
}

// InMemoryTestSQLiteConfig returns a profile over ":memory:". The single
// connection never expires: each new connection would see an empty database.
func InMemoryTestSQLiteConfig() SQLiteConfig {
	return testSQLiteConfig(":memory:")
}

// TempFileTestSQLiteConfig returns a test profile backed by a file at path.
func TempFileTestSQLiteConfig(path string) SQLiteConfig {
	config := testSQLiteConfig(path)
	config.ConnMaxLifetime = time.Minute
	return config
}

// ValidateMigrationConfig checks the per-file timeout and, when set, that
// MigrationDir is an existing directory.
func ValidateMigrationConfig(config MigrationConfig) error {
	if config.TimeoutPerFile <= 0 {
		return errors.New("TimeoutPerFile must be positive")
	}
	if config.MigrationDir == "" {
		return nil
	}

	info, err := os.Stat(config.MigrationDir)
	switch {
	case err != nil:
		return fmt.Errorf("migration directory does not exist: %s", config.MigrationDir)
	case !info.IsDir():
		return fmt.Errorf("migration path is not a directory: %s", config.MigrationDir)
	}
	return nil
}
