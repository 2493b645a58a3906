package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/fooddb/internal/persistence"
	"github.com/example/fooddb/internal/persistence/sqlite"
	"github.com/example/fooddb/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides a migrated, file-backed storage with a deterministic
// clock and run id sequence for integration-style persistence tests.
type SQLiteHarness struct {
	Storage   *sqlite.Storage
	Foods     persistence.FoodDescriptionRepository
	Migration migration.MigrationManager
	Clock     *Clock
	RunIDs    *RunIDSequence

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness over a temporary database file
// migrated with the embedded migrations. Cleanup is registered with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()
	return newHarness(tb, true)
}

// NewUnmigratedSQLiteHarness is like NewSQLiteHarness but leaves the schema empty.
func NewUnmigratedSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()
	return newHarness(tb, false)
}

func newHarness(tb testing.TB, migrate bool) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fooddb.db")
	clock := NewTickingClock(ReferenceTime(), time.Second)
	runIDs := NewRunIDSequence()

	opts := sqlite.DefaultOptions()
	opts.Migration = migration.TestMigrationConfig("")
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Now = clock.NowFunc()
	opts.NewRunID = runIDs.NextFunc()

	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), opts)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if migrate {
		if err := storage.Migrate(context.Background()); err != nil {
			_ = storage.Close()
			tb.Fatalf("failed to migrate storage: %v", err)
		}
	}

	harness := &SQLiteHarness{
		Storage:   storage,
		Foods:     storage,
		Migration: storage.Migrations(),
		Clock:     clock,
		RunIDs:    runIDs,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
