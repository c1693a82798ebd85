// Package migrations embeds the SQLite schema so the relay can migrate
// its database without the .sql files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
