// Package migration provides a versioned, reversible migration system for SQLite databases.
//
// It supports:
//
//   - Sequential forward execution with version tracking
//   - Reverse execution of the most recent migrations (rollback) and migrating to a target version
//   - One transaction per migration, bookkeeping included, rolled back on failure
//   - Migrations read from any fs.FS, including embedded files
//   - Checksum verification of applied migrations
//   - Schema inspection for verifying the resulting table shapes
//
// Migration files follow the naming convention {version}_{description}.up.sql with
// an optional {version}_{description}.down.sql holding the reverse statements.
// A plain {version}_{description}.sql is accepted as an irreversible migration.
// A leading comment block may carry "-- Description:", "-- Revision:" and
// "-- Revises:" headers.
//
// The migration system maintains a schema_migrations table to track applied
// migrations and prevent duplicate execution. A migration's statements and its
// schema_migrations row are written in the same transaction.
//
// Statements are split on semicolons outside quoted text and comments, so
// literals such as 'BUTTER; SALTED' are safe. Quotes are escaped by doubling
// them. Statements with semicolons in their body, such as trigger
// definitions, cannot be expressed in a migration file.
//
// Example usage:
//
//	scanner := NewFileScanner(migrations.FS, migrations.Root)
//	manager := NewMigrationManager(scanner, NewSQLiteExecutor(db), DefaultMigrationConfig(""), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
