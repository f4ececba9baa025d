package database

import (
	"embed"
	"io/fs"
)

// EmbeddedMigrations holds the SQLite migrations (migrations/*.sql).
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS

// PostgresMigrations holds the golang-migrate files for PostgreSQL
// (postgres/<version>_<name>.up.sql / .down.sql).
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS

// SQLiteMigrations returns the SQLite migrations rooted at their directory,
// ready for New.
func SQLiteMigrations() fs.FS {
	sub, err := fs.Sub(EmbeddedMigrations, "migrations")
	if err != nil {
		// Only fails on an invalid literal path.
		panic(err)
	}
	return sub
}
