package migration

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Column describes one column as reported by PRAGMA table_info.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey int // 1-based position in the primary key, 0 when not part of it
}

// Nullable reports whether the column accepts NULL. SQLite allows NULL in
// non-INTEGER primary key columns unless NOT NULL is declared, so only the
// declared constraint and INTEGER PRIMARY KEY rowid aliases are considered.
func (c Column) Nullable() bool {
	if c.NotNull {
		return false
	}
	return !(c.PrimaryKey > 0 && strings.EqualFold(c.Type, "INTEGER"))
}

// Table is the inspected shape of one table.
type Table struct {
	Name    string
	Columns []Column
}

// Snapshot is a comparable description of every user table in a database.
type Snapshot map[string]Table

// Inspector reads schema information from a SQLite database.
type Inspector struct {
	db *sql.DB
}

// NewInspector creates an Inspector over db.
func NewInspector(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

// TableExists reports whether a table named name exists.
func (i *Inspector) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, NewDatabaseError("", "", "check table exists", err)
	}
	return count > 0, nil
}

// ListTables returns user table names in lexical order, excluding SQLite internals.
func (i *Inspector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, NewDatabaseError("", "", "list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, NewDatabaseError("", "", "scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "", "iterate tables", err)
	}
	return names, nil
}

// TableColumns returns the columns of name in declaration order.
// A missing table yields an empty slice.
func (i *Inspector) TableColumns(ctx context.Context, name string) ([]Column, error) {
	// table_info does not accept bound parameters
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(name))

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError("", query, "table info", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid       int
			column    Column
			notNull   int
			dfltValue sql.NullString
		)
		if err := rows.Scan(&cid, &column.Name, &column.Type, &notNull, &dfltValue, &column.PrimaryKey); err != nil {
			return nil, NewDatabaseError("", query, "scan column", err)
		}
		column.NotNull = notNull != 0
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", query, "iterate columns", err)
	}
	return columns, nil
}

// Snapshot captures every user table except those named in exclude.
func (i *Inspector) Snapshot(ctx context.Context, exclude ...string) (Snapshot, error) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	names, err := i.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(Snapshot, len(names))
	for _, name := range names {
		if skip[name] {
			continue
		}
		columns, err := i.TableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		snapshot[name] = Table{Name: name, Columns: columns}
	}
	return snapshot, nil
}

// UserSnapshot captures every table except the runner's own bookkeeping table.
func (i *Inspector) UserSnapshot(ctx context.Context) (Snapshot, error) {
	return i.Snapshot(ctx, versionTableName)
}

// TableNames returns the snapshot's table names in lexical order.
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
