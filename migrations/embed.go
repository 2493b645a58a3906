// Package migrations embeds the versioned schema changes shipped with fooddb.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS

// Root is the directory inside FS that holds the migration files.
const Root = "."
