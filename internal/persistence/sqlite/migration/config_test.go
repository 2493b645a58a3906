package migration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSQLiteConfig(t *testing.T) {
	config := DefaultSQLiteConfig("/tmp/fooddb.db")

	if config.DSN != "/tmp/fooddb.db" {
		t.Errorf("Expected DSN '/tmp/fooddb.db', got '%s'", config.DSN)
	}
	if config.BusyTimeout != 30*time.Second {
		t.Errorf("Expected BusyTimeout 30s, got %v", config.BusyTimeout)
	}
	if !config.EnableForeignKeys {
		t.Error("Expected foreign keys to be enabled")
	}
	if config.JournalMode != "WAL" || config.Synchronous != "NORMAL" {
		t.Errorf("Expected WAL/NORMAL, got %s/%s", config.JournalMode, config.Synchronous)
	}
	if config.MaxOpenConns != 25 || config.MaxIdleConns != 5 {
		t.Errorf("Unexpected pool sizing: open=%d idle=%d", config.MaxOpenConns, config.MaxIdleConns)
	}
	if err := NewConnectionManager(config).ValidateConfig(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestMigrationConfigProfiles(t *testing.T) {
	def := DefaultMigrationConfig("/migrations")
	if def.MigrationDir != "/migrations" || def.TimeoutPerFile != 5*time.Minute || !def.VerifyChecksum {
		t.Errorf("Unexpected default migration config: %+v", def)
	}

	test := TestMigrationConfig("")
	if test.TimeoutPerFile != 30*time.Second || !test.VerifyChecksum {
		t.Errorf("Unexpected test migration config: %+v", test)
	}
	if err := ValidateMigrationConfig(test); err != nil {
		t.Errorf("Test migration config with embedded migrations should be valid: %v", err)
	}
}

func TestTestSQLiteProfiles(t *testing.T) {
	memory := InMemoryTestSQLiteConfig()
	if memory.DSN != ":memory:" {
		t.Errorf("Expected in-memory DSN, got %s", memory.DSN)
	}
	if memory.MaxOpenConns != 1 || memory.ConnMaxLifetime != 0 {
		t.Errorf("In-memory profile must pin a single connection: %+v", memory)
	}

	temp := TempFileTestSQLiteConfig("/tmp/test.db")
	if temp.DSN != "/tmp/test.db" || temp.ConnMaxLifetime != time.Minute {
		t.Errorf("Unexpected temp file profile: %+v", temp)
	}

	for _, config := range []SQLiteConfig{memory, temp} {
		if err := NewConnectionManager(config).ValidateConfig(); err != nil {
			t.Errorf("Profile %s should be valid: %v", config.DSN, err)
		}
	}
}

func TestSQLiteConfig_ValidateConfig(t *testing.T) {
	tests := []struct {
		name          string
		config        SQLiteConfig
		errorContains string
	}{
		{name: "valid configuration", config: DefaultSQLiteConfig("test.db")},
		{name: "empty DSN", config: SQLiteConfig{}, errorContains: "DSN cannot be empty"},
		{name: "negative busy timeout", config: SQLiteConfig{DSN: "x.db", BusyTimeout: -time.Second}, errorContains: "BusyTimeout cannot be negative"},
		{name: "invalid journal mode", config: SQLiteConfig{DSN: "x.db", JournalMode: "INVALID"}, errorContains: "invalid journal mode: INVALID"},
		{name: "invalid synchronous mode", config: SQLiteConfig{DSN: "x.db", Synchronous: "SOMETIMES"}, errorContains: "invalid synchronous mode: SOMETIMES"},
		{name: "negative max open", config: SQLiteConfig{DSN: "x.db", MaxOpenConns: -1}, errorContains: "MaxOpenConns cannot be negative"},
		{name: "negative max idle", config: SQLiteConfig{DSN: "x.db", MaxIdleConns: -1}, errorContains: "MaxIdleConns cannot be negative"},
		{name: "negative lifetime", config: SQLiteConfig{DSN: "x.db", ConnMaxLifetime: -time.Second}, errorContains: "ConnMaxLifetime cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConnectionManager(tt.config).ValidateConfig()
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error containing %q, got %v", tt.errorContains, err)
			}
		})
	}
}

func TestAllValidModes(t *testing.T) {
	for _, mode := range []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"} {
		if err := NewConnectionManager(SQLiteConfig{DSN: "x.db", JournalMode: mode}).ValidateConfig(); err != nil {
			t.Errorf("Journal mode %s should be valid: %v", mode, err)
		}
	}
	for _, mode := range []string{"OFF", "NORMAL", "FULL", "EXTRA"} {
		if err := NewConnectionManager(SQLiteConfig{DSN: "x.db", Synchronous: mode}).ValidateConfig(); err != nil {
			t.Errorf("Synchronous mode %s should be valid: %v", mode, err)
		}
	}
}

func TestValidateMigrationConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir.sql")
	if err := os.WriteFile(file, []byte("SELECT 1;"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tests := []struct {
		name          string
		config        MigrationConfig
		errorContains string
	}{
		{name: "existing directory", config: DefaultMigrationConfig(dir)},
		{name: "embedded migrations", config: DefaultMigrationConfig("")},
		{name: "zero timeout", config: MigrationConfig{MigrationDir: dir}, errorContains: "TimeoutPerFile must be positive"},
		{name: "missing directory", config: DefaultMigrationConfig(filepath.Join(dir, "missing")), errorContains: "migration directory does not exist"},
		{name: "path is a file", config: DefaultMigrationConfig(file), errorContains: "migration path is not a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMigrationConfig(tt.config)
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error containing %q, got %v", tt.errorContains, err)
			}
		})
	}
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		onDisk bool
	}{
		{dsn: "fooddb.db", path: "fooddb.db", onDisk: true},
		{dsn: "file:/var/lib/fooddb.db", path: "/var/lib/fooddb.db", onDisk: true},
		{dsn: "file:data/food.db?_pragma=busy_timeout(5000)", path: "data/food.db", onDisk: true},
		{dsn: ":memory:"},
		{dsn: "file::memory:?cache=shared"},
		{dsn: "file:food?mode=memory&cache=shared"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			path, onDisk := filePath(tt.dsn)
			if onDisk != tt.onDisk || path != tt.path {
				t.Errorf("filePath(%q) = (%q, %v), want (%q, %v)", tt.dsn, path, onDisk, tt.path, tt.onDisk)
			}
		})
	}
}

func TestConnectionManager_CreateDatabaseFile(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "nested", "dir", "food.db")
	cm := NewConnectionManager(SQLiteConfig{DSN: "file:" + dbPath})

	if err := cm.CreateDatabaseFile(); err != nil {
		t.Fatalf("Failed to create database file: %v", err)
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("Database file was not created: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("Expected file permissions 0644, got %v", info.Mode().Perm())
	}

	dirInfo, err := os.Stat(filepath.Dir(dbPath))
	if err != nil {
		t.Fatalf("Failed to stat database directory: %v", err)
	}
	if dirInfo.Mode().Perm() != 0755 {
		t.Errorf("Expected directory permissions 0755, got %v", dirInfo.Mode().Perm())
	}

	if err := cm.CreateDatabaseFile(); err != nil {
		t.Errorf("Creating existing database file should not error: %v", err)
	}

	if err := NewConnectionManager(SQLiteConfig{DSN: ":memory:"}).CreateDatabaseFile(); err != nil {
		t.Errorf("Creating in-memory database should not error: %v", err)
	}
}

func TestConnectionManager_GetConnection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "food.db")
	config := DefaultSQLiteConfig(dbPath)
	config.BusyTimeout = time.Second

	db, err := NewConnectionManager(config).GetConnection()
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	defer db.Close()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to read journal mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}

	if _, err := db.Exec("CREATE TABLE parent (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file on disk: %v", err)
	}
}

func TestConnectionManager_GetConnection_InMemory(t *testing.T) {
	db, err := NewConnectionManager(InMemoryTestSQLiteConfig()).GetConnection()
	if err != nil {
		t.Fatalf("Failed to get in-memory connection: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE food (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	// The single pooled connection keeps the table visible across calls.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM food").Scan(&count); err != nil {
		t.Fatalf("Table not visible on later query: %v", err)
	}
}

func TestConnectionManager_GetConnection_InvalidConfig(t *testing.T) {
	_, err := NewConnectionManager(SQLiteConfig{}).GetConnection()
	if err == nil || !strings.Contains(err.Error(), "invalid SQLite configuration") {
		t.Fatalf("Expected invalid configuration error, got %v", err)
	}
}

func TestConnectionManager_ConnectionString(t *testing.T) {
	cm := &sqliteConnectionManager{config: SQLiteConfig{
		DSN:               "food.db",
		BusyTimeout:       2 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
	}}

	got := cm.connectionString()
	for _, want := range []string{"food.db?", "busy_timeout%282000%29", "journal_mode%28WAL%29", "foreign_keys%28ON%29"} {
		if !strings.Contains(got, want) {
			t.Errorf("connection string %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "synchronous") {
		t.Errorf("unset synchronous mode should not be encoded: %q", got)
	}

	cm.config.DSN = "file:food.db?mode=rwc"
	if got := cm.connectionString(); !strings.HasPrefix(got, "file:food.db?mode=rwc&_pragma=") {
		t.Errorf("expected pragmas appended to existing query, got %q", got)
	}
}

func TestConnectionManager_PragmasApplyToEveryConnection(t *testing.T) {
	config := TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "food.db"))
	config.MaxOpenConns = 2
	config.BusyTimeout = 1500 * time.Millisecond

	db, err := NewConnectionManager(config).GetConnection()
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire first connection: %v", err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire second connection: %v", err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout, foreignKeys int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("connection %d: read busy_timeout: %v", i, err)
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("connection %d: read foreign_keys: %v", i, err)
		}
		if timeout != 1500 || foreignKeys != 1 {
			t.Errorf("connection %d: busy_timeout=%d foreign_keys=%d", i, timeout, foreignKeys)
		}
	}
}
